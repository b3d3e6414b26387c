package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"chartflow/internal/config"
	"chartflow/internal/dataset"
	"chartflow/internal/logging"
	"chartflow/internal/model"
)

// ModelFactory builds a ContentModel for a model identifier.
// Injectable so tests can supply fakes.
type ModelFactory func(cfg *config.UserConfig, name string) (model.ContentModel, error)

// RunRecorder receives completed results, e.g. for the run ledger.
type RunRecorder interface {
	RecordResult(res *WorkflowResult) error
}

// Orchestrator sequences Generator then Evaluator for each request,
// persists both artifact versions, and reports per-request status.
// Requests run concurrently; a shared semaphore bounds concurrent
// model calls across all of them.
type Orchestrator struct {
	cfg         *config.UserConfig
	generator   *Generator
	evaluator   *Evaluator
	newModel    ModelFactory
	sem         *semaphore.Weighted
	callTimeout time.Duration
	recorder    RunRecorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModelFactory overrides how ContentModels are constructed.
func WithModelFactory(f ModelFactory) Option {
	return func(o *Orchestrator) { o.newModel = f }
}

// WithRecorder attaches a run ledger.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithCallTimeout overrides the per-model-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// WithMaxModelCalls overrides the concurrent model call bound.
func WithMaxModelCalls(n int64) Option {
	return func(o *Orchestrator) { o.sem = semaphore.NewWeighted(n) }
}

// New creates an Orchestrator from user config.
func New(cfg *config.UserConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		generator:   NewGenerator(),
		evaluator:   NewEvaluator(),
		newModel:    model.NewForModel,
		sem:         semaphore.NewWeighted(int64(cfg.ModelCallBound())),
		callTimeout: cfg.CallTimeout(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Preflight verifies credentials for every model a batch references.
// It must pass before any model call is attempted.
func (o *Orchestrator) Preflight(reqs []WorkflowRequest) error {
	if len(reqs) == 0 {
		return &ConfigurationError{Reason: "no workflow requests supplied"}
	}
	for _, req := range reqs {
		for _, name := range []string{req.GenerationModel, req.ReflectionModel} {
			provider := model.ProviderForModel(name)
			if provider == "" {
				active, _ := o.cfg.GetActiveProvider()
				if active == "" {
					return &ConfigurationError{Reason: "no API key configured; set GEMINI_API_KEY, OPENAI_API_KEY, or ANTHROPIC_API_KEY, or .chartflow/config.json"}
				}
				provider = model.Provider(active)
			}
			if o.cfg.APIKeyFor(string(provider)) == "" {
				return &ConfigurationError{Reason: "no API key configured for provider " + string(provider) + " (model " + name + ")"}
			}
		}
	}
	return nil
}

// Run executes every request and returns one result per request, in
// submission order. A single request's failure is recorded in its
// result and never aborts the batch.
func (o *Orchestrator) Run(ctx context.Context, reqs []WorkflowRequest) []WorkflowResult {
	results := make([]WorkflowResult, len(reqs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		eg.Go(func() error {
			results[i] = o.runOne(egCtx, req)
			return nil
		})
	}
	eg.Wait() // tasks never return errors; Wait is for completion only

	return results
}

// callModel runs fn under the shared model-call slot and the per-call
// timeout. Generator and Evaluator calls of all in-flight requests
// contend for the same slots.
func (o *Orchestrator) callModel(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return fn(callCtx)
}

// runOne drives a single request through both passes sequentially.
func (o *Orchestrator) runOne(ctx context.Context, req WorkflowRequest) (res WorkflowResult) {
	start := time.Now()
	res = WorkflowResult{
		RunID:   uuid.NewString(),
		Request: req,
		Status:  StatusFailed,
	}
	defer func() {
		res.Duration = time.Since(start)
		o.record(&res)
	}()

	logging.Workflow("Run start: dataset=%s case=%s group=%s", req.DatasetStem(), req.caseLabel(), req.group())

	table, err := dataset.Load(req.DatasetPath)
	if err != nil {
		res.Err = &DataUnavailableError{Dataset: req.DatasetStem(), Case: req.caseLabel(), Err: err}
		logging.WorkflowError("Run: %v", res.Err)
		return
	}

	// The result carries the request exactly as submitted; instruction
	// suggestion applies to a working copy only.
	work := req
	if work.Instruction == "" {
		work.Instruction = dataset.SuggestInstruction(table)
		logging.WorkflowDebug("Run: suggested instruction for %s: %.80s", work.DatasetStem(), work.Instruction)
	}

	genModel, err := o.newModel(o.cfg, work.GenerationModel)
	if err != nil {
		res.Err = &GenerationFailure{Dataset: work.DatasetStem(), Case: work.caseLabel(), Model: work.GenerationModel, Err: err}
		return
	}

	var v1 *Artifact
	err = o.callModel(ctx, func(cctx context.Context) error {
		var gerr error
		v1, gerr = o.generator.Generate(cctx, work, table, genModel)
		return gerr
	})
	if err != nil {
		if _, ok := err.(*GenerationFailure); !ok {
			err = &GenerationFailure{Dataset: work.DatasetStem(), Case: work.caseLabel(), Model: work.GenerationModel, Err: err}
		}
		res.Err = err
		logging.WorkflowError("Run: %v", err)
		return
	}
	res.V1 = v1

	v1Path, err := persistArtifact(work, v1)
	if err != nil {
		res.Err = err
		logging.WorkflowError("Run: persist v1 failed: %v", err)
		return
	}
	res.V1Path = v1Path

	reflModel, err := o.newModel(o.cfg, work.ReflectionModel)
	if err != nil {
		res.Status = StatusDegradedNoV2
		res.Err = &EvaluationFailure{Dataset: work.DatasetStem(), Case: work.caseLabel(), Model: work.ReflectionModel, Err: err}
		return
	}

	var critique *Critique
	var v2 *Artifact
	err = o.callModel(ctx, func(cctx context.Context) error {
		var rerr error
		critique, v2, rerr = o.evaluator.Reflect(cctx, work, table, v1, reflModel)
		return rerr
	})
	if err != nil {
		if _, ok := err.(*EvaluationFailure); !ok {
			err = &EvaluationFailure{Dataset: work.DatasetStem(), Case: work.caseLabel(), Model: work.ReflectionModel, Err: err}
		}
		res.Status = StatusDegradedNoV2
		res.Err = err
		logging.WorkflowError("Run: degraded to v1-only: %v", err)
		return
	}
	res.Critique = critique
	res.V2 = v2

	v2Path, err := persistArtifact(work, v2)
	if err != nil {
		res.Status = StatusDegradedNoV2
		res.Err = &EvaluationFailure{Dataset: work.DatasetStem(), Case: work.caseLabel(), Model: work.ReflectionModel, Err: err}
		logging.WorkflowError("Run: persist v2 failed: %v", err)
		return
	}
	res.V2Path = v2Path
	res.Status = StatusSuccess

	logging.Workflow("Run complete: dataset=%s case=%s status=%s findings=%d",
		work.DatasetStem(), work.caseLabel(), res.Status, len(critique.Findings))
	return
}

// record hands a finished result to the ledger, if one is attached.
func (o *Orchestrator) record(res *WorkflowResult) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordResult(res); err != nil {
		logging.WorkflowError("record: ledger write failed for run %s: %v", res.RunID, err)
	}
}

// AnyFailed reports whether a batch contains a Failed result.
// DegradedNoV2 does not count as failure.
func AnyFailed(results []WorkflowResult) bool {
	for _, res := range results {
		if res.Status == StatusFailed {
			return true
		}
	}
	return false
}
