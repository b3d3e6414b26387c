// Package workflow implements the generate-then-reflect chart workflow:
// a generation model produces a V1 artifact from a dataset and an
// instruction, a reflection model critiques it and produces a V2.
package workflow

import (
	"path/filepath"
	"strings"
	"time"
)

// ArtifactVersion identifies which pass produced an artifact.
type ArtifactVersion int

const (
	VersionV1 ArtifactVersion = 1
	VersionV2 ArtifactVersion = 2
)

func (v ArtifactVersion) String() string {
	switch v {
	case VersionV1:
		return "v1"
	case VersionV2:
		return "v2"
	default:
		return "v?"
	}
}

// WorkflowRequest is one unit of work: a dataset + instruction pair.
// Immutable once submitted; always passed by value.
type WorkflowRequest struct {
	DatasetPath     string
	Instruction     string // empty means "suggest one from the dataset"
	GenerationModel string
	ReflectionModel string
	OutputDir       string
	Group           string // output subdirectory, defaults to "default"
	CaseLabel       string // defaults to "case"
	Overwrite       bool   // allow clobbering prior outputs
}

// DatasetStem returns the dataset filename without extension.
func (r WorkflowRequest) DatasetStem() string {
	base := filepath.Base(r.DatasetPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// group returns the output subdirectory for this request.
func (r WorkflowRequest) group() string {
	if r.Group != "" {
		return r.Group
	}
	return "default"
}

// caseLabel returns the case label used in artifact names.
func (r WorkflowRequest) caseLabel() string {
	if r.CaseLabel != "" {
		return r.CaseLabel
	}
	return "case"
}

// Artifact is a generated output produced by a model call. Produced
// once per version and never mutated after creation.
type Artifact struct {
	Version     ArtifactVersion
	Payload     []byte
	MIMEType    string
	Description string // model-supplied one-line description

	// Back-reference to the originating request
	DatasetStem string
	CaseLabel   string
}

// Ext returns the file extension for the artifact's MIME type.
func (a *Artifact) Ext() string {
	switch a.MIMEType {
	case "image/svg+xml":
		return "svg"
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	default:
		return "bin"
	}
}

// Critique is structured evaluator feedback about a V1 artifact.
// It justifies the V2 artifact and is not persisted independently.
type Critique struct {
	Target   *Artifact
	Findings []string // ordered observations, most important first
	Accepted bool     // whether V1 already meets the instruction
}

// Status classifies the outcome of one workflow request.
type Status int

const (
	// StatusSuccess - both V1 and V2 produced and persisted.
	StatusSuccess Status = iota
	// StatusDegradedNoV2 - V1 produced but the reflection pass failed;
	// V1 stands as the final artifact.
	StatusDegradedNoV2
	// StatusFailed - no usable artifact; generation or persistence failed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDegradedNoV2:
		return "degraded_no_v2"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WorkflowResult records the outcome of one request. Every submitted
// request yields exactly one result; failures are recorded here, never
// raised out of the batch.
type WorkflowResult struct {
	RunID    string
	Request  WorkflowRequest
	V1       *Artifact
	V2       *Artifact
	Critique *Critique
	V1Path   string
	V2Path   string
	Status   Status
	Err      error
	Duration time.Duration
}
