package workflow

import (
	"bytes"
	"context"
	"fmt"

	"chartflow/internal/dataset"
	"chartflow/internal/logging"
	"chartflow/internal/model"
)

// defaultSampleRows is how many head rows are serialized into prompts.
const defaultSampleRows = 5

// Generator produces the V1 artifact for a request. It holds no state
// beyond prompt tuning; persistence belongs to the orchestrator.
type Generator struct {
	SampleRows int
}

// NewGenerator returns a Generator with default prompt tuning.
func NewGenerator() *Generator {
	return &Generator{SampleRows: defaultSampleRows}
}

// Generate builds the generation prompt from the table summary and the
// instruction, calls the model, and parses the response into a V1
// artifact. The artifact is returned in memory only.
func (g *Generator) Generate(ctx context.Context, req WorkflowRequest, table *dataset.Table, m model.ContentModel) (*Artifact, error) {
	sampleRows := g.SampleRows
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}

	sampleJSON, err := table.SampleJSON(sampleRows)
	if err != nil {
		return nil, &GenerationFailure{
			Dataset: req.DatasetStem(), Case: req.caseLabel(), Model: m.Name(), Err: err,
		}
	}

	prompt := buildGenerationPrompt(req.Instruction, table.SchemaText(), sampleJSON)
	logging.Generator("Generate: dataset=%s case=%s model=%s", req.DatasetStem(), req.caseLabel(), m.Name())

	content, err := m.Complete(ctx, prompt)
	if err != nil {
		logging.GeneratorError("Generate: model call failed dataset=%s case=%s: %v", req.DatasetStem(), req.caseLabel(), err)
		return nil, &GenerationFailure{
			Dataset: req.DatasetStem(), Case: req.caseLabel(), Model: m.Name(), Err: err,
		}
	}

	description, svg, err := parseGenerationResponse(content)
	if err != nil {
		return nil, &GenerationFailure{
			Dataset: req.DatasetStem(), Case: req.caseLabel(), Model: m.Name(),
			Err: fmt.Errorf("unusable payload: %w", err),
		}
	}
	if len(bytes.TrimSpace(svg)) == 0 {
		return nil, &GenerationFailure{
			Dataset: req.DatasetStem(), Case: req.caseLabel(), Model: m.Name(),
			Err: fmt.Errorf("unusable payload: empty image"),
		}
	}

	return &Artifact{
		Version:     VersionV1,
		Payload:     svg,
		MIMEType:    "image/svg+xml",
		Description: description,
		DatasetStem: req.DatasetStem(),
		CaseLabel:   req.caseLabel(),
	}, nil
}
