package workflow

import (
	"bytes"
	"context"
	"fmt"

	"chartflow/internal/dataset"
	"chartflow/internal/logging"
	"chartflow/internal/model"
)

// Evaluator runs the reflection pass: it shows the V1 artifact to a
// (possibly different) model and asks for deficiencies plus a revised
// artifact.
type Evaluator struct {
	SampleRows int
}

// NewEvaluator returns an Evaluator with default prompt tuning.
func NewEvaluator() *Evaluator {
	return &Evaluator{SampleRows: defaultSampleRows}
}

// Reflect critiques v1 against the original instruction and produces a
// V2 artifact. Both are returned in memory; nothing is persisted here.
func (e *Evaluator) Reflect(ctx context.Context, req WorkflowRequest, table *dataset.Table, v1 *Artifact, m model.ContentModel) (*Critique, *Artifact, error) {
	sampleRows := e.SampleRows
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}

	sampleJSON, err := table.SampleJSON(sampleRows)
	if err != nil {
		return nil, nil, &EvaluationFailure{
			Dataset: req.DatasetStem(), Case: req.caseLabel(), Model: m.Name(), Err: err,
		}
	}

	prompt := buildReflectionPrompt(req.Instruction, table.SchemaText(), sampleJSON, v1.Description)
	logging.Evaluator("Reflect: dataset=%s case=%s model=%s v1_size=%d", req.DatasetStem(), req.caseLabel(), m.Name(), len(v1.Payload))

	content, err := m.CompleteWithArtifact(ctx, prompt, v1.MIMEType, v1.Payload)
	if err != nil {
		logging.EvaluatorError("Reflect: model call failed dataset=%s case=%s: %v", req.DatasetStem(), req.caseLabel(), err)
		return nil, nil, &EvaluationFailure{
			Dataset: req.DatasetStem(), Case: req.caseLabel(), Model: m.Name(), Err: err,
		}
	}

	findings, accepted, description, svg, err := parseReflectionResponse(content)
	if err != nil {
		return nil, nil, &EvaluationFailure{
			Dataset: req.DatasetStem(), Case: req.caseLabel(), Model: m.Name(),
			Err: fmt.Errorf("unusable payload: %w", err),
		}
	}
	if len(bytes.TrimSpace(svg)) == 0 {
		return nil, nil, &EvaluationFailure{
			Dataset: req.DatasetStem(), Case: req.caseLabel(), Model: m.Name(),
			Err: fmt.Errorf("unusable payload: empty image"),
		}
	}

	critique := &Critique{
		Target:   v1,
		Findings: findings,
		Accepted: accepted,
	}
	v2 := &Artifact{
		Version:     VersionV2,
		Payload:     svg,
		MIMEType:    "image/svg+xml",
		Description: description,
		DatasetStem: req.DatasetStem(),
		CaseLabel:   req.caseLabel(),
	}
	return critique, v2, nil
}
