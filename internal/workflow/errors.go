package workflow

import "fmt"

// ConfigurationError reports a problem that must stop the whole run
// before any model call is attempted (missing credentials, bad paths).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// DataUnavailableError reports a dataset that could not be read.
// Fatal for its request only.
type DataUnavailableError struct {
	Dataset string
	Case    string
	Err     error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("dataset unavailable (dataset=%s case=%s): %v", e.Dataset, e.Case, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// GenerationFailure reports a failed or unusable V1 generation.
// Fatal for its request; the evaluator is never invoked.
type GenerationFailure struct {
	Dataset string
	Case    string
	Model   string
	Err     error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failed (dataset=%s case=%s model=%s): %v", e.Dataset, e.Case, e.Model, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// EvaluationFailure reports a failed reflection pass. Non-fatal: the
// request degrades to V1-only.
type EvaluationFailure struct {
	Dataset string
	Case    string
	Model   string
	Err     error
}

func (e *EvaluationFailure) Error() string {
	return fmt.Sprintf("evaluation failed (dataset=%s case=%s model=%s): %v", e.Dataset, e.Case, e.Model, e.Err)
}

func (e *EvaluationFailure) Unwrap() error { return e.Err }

// PathConflictError reports an output file that already exists from a
// prior run. Overwriting prior comparison baselines silently would
// lose them, so the writer refuses unless the request opts in.
type PathConflictError struct {
	Path string
}

func (e *PathConflictError) Error() string {
	return fmt.Sprintf("output file already exists (pass --overwrite to replace): %s", e.Path)
}
