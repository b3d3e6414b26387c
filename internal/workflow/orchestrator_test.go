package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chartflow/internal/config"
	"chartflow/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	genResponse = `{"description": "Bar chart of sales by coffee type."}
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><rect width="100" height="100" fill="white"/><text>v1</text></svg>`

	reflResponse = `{"findings": ["Axis labels overlap.", "Bars are not sorted."], "accepted": false, "description": "Sorted bar chart with rotated labels."}
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><rect width="100" height="100" fill="white"/><text>v2</text></svg>`
)

// fakeModel is a canned ContentModel that counts its calls.
type fakeModel struct {
	name          string
	response      string
	err           error
	completes     atomic.Int64
	withArtifacts atomic.Int64
}

func (f *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	f.completes.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeModel) CompleteWithArtifact(ctx context.Context, prompt, mimeType string, payload []byte) (string, error) {
	f.withArtifacts.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeModel) Name() string { return f.name }

// fakeRecorder captures results handed to the ledger.
type fakeRecorder struct {
	results []*WorkflowResult
}

func (r *fakeRecorder) RecordResult(res *WorkflowResult) error {
	r.results = append(r.results, res)
	return nil
}

func writeDataset(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "coffee_sales.csv")
	csv := "coffee_name,money,cash_type\nLatte,38.7,card\nAmericano,28.9,card\nCortado,25.0,cash\nLatte,38.7,card\nMocha,33.8,cash\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))
	return path
}

func testOrchestrator(t *testing.T, gen, refl *fakeModel) *Orchestrator {
	t.Helper()
	cfg := &config.UserConfig{GeminiAPIKey: "test-key"}
	factory := func(cfg *config.UserConfig, name string) (model.ContentModel, error) {
		switch name {
		case gen.name:
			return gen, nil
		case refl.name:
			return refl, nil
		}
		return nil, fmt.Errorf("unexpected model %q", name)
	}
	return New(cfg, WithModelFactory(factory), WithCallTimeout(5*time.Second))
}

func testRequest(t *testing.T, datasetPath, outputDir string) WorkflowRequest {
	t.Helper()
	return WorkflowRequest{
		DatasetPath:     datasetPath,
		Instruction:     "Plot total sales per coffee type as a bar chart",
		GenerationModel: "gen-model",
		ReflectionModel: "refl-model",
		OutputDir:       outputDir,
		Group:           "sales",
		CaseLabel:       "by-type",
	}
}

func TestRunSuccess(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeModel{name: "gen-model", response: genResponse}
	refl := &fakeModel{name: "refl-model", response: reflResponse}
	orch := testOrchestrator(t, gen, refl)

	req := testRequest(t, writeDataset(t, dir), filepath.Join(dir, "charts"))
	results := orch.Run(context.Background(), []WorkflowRequest{req})

	require.Len(t, results, 1)
	res := results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.NotEmpty(t, res.RunID)
	assert.Greater(t, res.Duration, time.Duration(0))

	// The result carries the request exactly as submitted.
	assert.Empty(t, cmp.Diff(req, res.Request))

	// Exactly one call per pass.
	assert.Equal(t, int64(1), gen.completes.Load())
	assert.Equal(t, int64(1), refl.withArtifacts.Load())
	assert.Zero(t, gen.withArtifacts.Load())
	assert.Zero(t, refl.completes.Load())

	// Both artifacts persisted under the deterministic layout.
	assert.Equal(t, filepath.Join(dir, "charts", "sales", "coffee_sales_by-type_v1.svg"), res.V1Path)
	assert.Equal(t, filepath.Join(dir, "charts", "sales", "coffee_sales_by-type_v2.svg"), res.V2Path)
	v1Data, err := os.ReadFile(res.V1Path)
	require.NoError(t, err)
	v2Data, err := os.ReadFile(res.V2Path)
	require.NoError(t, err)
	assert.NotEqual(t, v1Data, v2Data)
	assert.Equal(t, res.V1.Payload, v1Data)
	assert.Equal(t, res.V2.Payload, v2Data)

	require.NotNil(t, res.Critique)
	assert.Equal(t, []string{"Axis labels overlap.", "Bars are not sorted."}, res.Critique.Findings)
	assert.False(t, res.Critique.Accepted)
	assert.Same(t, res.V1, res.Critique.Target)
	assert.Equal(t, VersionV1, res.V1.Version)
	assert.Equal(t, VersionV2, res.V2.Version)
}

func TestRunGenerationFailureSkipsReflection(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeModel{name: "gen-model", err: fmt.Errorf("boom")}
	refl := &fakeModel{name: "refl-model", response: reflResponse}
	orch := testOrchestrator(t, gen, refl)

	req := testRequest(t, writeDataset(t, dir), filepath.Join(dir, "charts"))
	results := orch.Run(context.Background(), []WorkflowRequest{req})

	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, StatusFailed, res.Status)
	var genErr *GenerationFailure
	require.ErrorAs(t, res.Err, &genErr)
	assert.Equal(t, "coffee_sales", genErr.Dataset)

	// The evaluator never runs after a failed generation.
	assert.Zero(t, refl.withArtifacts.Load())
	assert.Nil(t, res.V1)
	assert.Nil(t, res.V2)
	assert.Empty(t, res.V1Path)
}

func TestRunUnusableGenerationPayload(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeModel{name: "gen-model", response: `{"description": "no image here"}`}
	refl := &fakeModel{name: "refl-model", response: reflResponse}
	orch := testOrchestrator(t, gen, refl)

	req := testRequest(t, writeDataset(t, dir), filepath.Join(dir, "charts"))
	results := orch.Run(context.Background(), []WorkflowRequest{req})

	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	var genErr *GenerationFailure
	require.ErrorAs(t, results[0].Err, &genErr)
	assert.Zero(t, refl.withArtifacts.Load())
}

func TestRunReflectionFailureDegrades(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeModel{name: "gen-model", response: genResponse}
	refl := &fakeModel{name: "refl-model", err: fmt.Errorf("reflection down")}
	orch := testOrchestrator(t, gen, refl)

	req := testRequest(t, writeDataset(t, dir), filepath.Join(dir, "charts"))
	results := orch.Run(context.Background(), []WorkflowRequest{req})

	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, StatusDegradedNoV2, res.Status)
	var evalErr *EvaluationFailure
	require.ErrorAs(t, res.Err, &evalErr)

	// V1 survives as the final artifact.
	require.NotEmpty(t, res.V1Path)
	_, err := os.Stat(res.V1Path)
	assert.NoError(t, err)
	assert.Nil(t, res.V2)
	assert.Empty(t, res.V2Path)
	assert.False(t, AnyFailed(results))
}

func TestRunMissingDataset(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeModel{name: "gen-model", response: genResponse}
	refl := &fakeModel{name: "refl-model", response: reflResponse}
	orch := testOrchestrator(t, gen, refl)

	req := testRequest(t, filepath.Join(dir, "missing.csv"), filepath.Join(dir, "charts"))
	results := orch.Run(context.Background(), []WorkflowRequest{req})

	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	var dataErr *DataUnavailableError
	require.ErrorAs(t, results[0].Err, &dataErr)
	assert.Equal(t, "missing", dataErr.Dataset)
	assert.Zero(t, gen.completes.Load())
	assert.True(t, AnyFailed(results))
}

func TestRunPathConflict(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeModel{name: "gen-model", response: genResponse}
	refl := &fakeModel{name: "refl-model", response: reflResponse}
	orch := testOrchestrator(t, gen, refl)

	req := testRequest(t, writeDataset(t, dir), filepath.Join(dir, "charts"))

	// A prior run left a v1 file behind.
	v1Path := filepath.Join(dir, "charts", "sales", "coffee_sales_by-type_v1.svg")
	require.NoError(t, os.MkdirAll(filepath.Dir(v1Path), 0755))
	require.NoError(t, os.WriteFile(v1Path, []byte("<svg>old</svg>"), 0644))

	results := orch.Run(context.Background(), []WorkflowRequest{req})
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	var conflict *PathConflictError
	require.ErrorAs(t, results[0].Err, &conflict)
	assert.Equal(t, v1Path, conflict.Path)

	// The stale file is untouched.
	data, err := os.ReadFile(v1Path)
	require.NoError(t, err)
	assert.Equal(t, "<svg>old</svg>", string(data))

	// Opting in replaces it.
	req.Overwrite = true
	results = orch.Run(context.Background(), []WorkflowRequest{req})
	require.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status)
	data, err = os.ReadFile(v1Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "v1")
}

func TestRunSuggestsInstruction(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeModel{name: "gen-model", response: genResponse}
	refl := &fakeModel{name: "refl-model", response: reflResponse}
	orch := testOrchestrator(t, gen, refl)

	req := testRequest(t, writeDataset(t, dir), filepath.Join(dir, "charts"))
	req.Instruction = ""
	results := orch.Run(context.Background(), []WorkflowRequest{req})

	require.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status)
	// Suggestion happens on a working copy; the submitted request is
	// reported back untouched.
	assert.Empty(t, results[0].Request.Instruction)
}

func TestRunBatchKeepsOrderAndIsolation(t *testing.T) {
	dir := t.TempDir()
	datasetPath := writeDataset(t, dir)
	gen := &fakeModel{name: "gen-model", response: genResponse}
	refl := &fakeModel{name: "refl-model", response: reflResponse}
	orch := testOrchestrator(t, gen, refl)

	reqs := []WorkflowRequest{
		testRequest(t, filepath.Join(dir, "missing.csv"), filepath.Join(dir, "charts")),
		testRequest(t, datasetPath, filepath.Join(dir, "charts")),
	}
	reqs[1].CaseLabel = "second"

	results := orch.Run(context.Background(), reqs)
	require.Len(t, results, 2)

	// One result per request, in submission order; one failure does
	// not abort the other case.
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, StatusSuccess, results[1].Status)
	assert.Equal(t, "missing.csv", filepath.Base(results[0].Request.DatasetPath))
	assert.Equal(t, "second", results[1].Request.CaseLabel)
	assert.True(t, AnyFailed(results))
}

func TestRunRecordsToLedger(t *testing.T) {
	dir := t.TempDir()
	gen := &fakeModel{name: "gen-model", response: genResponse}
	refl := &fakeModel{name: "refl-model", response: reflResponse}

	cfg := &config.UserConfig{GeminiAPIKey: "test-key"}
	rec := &fakeRecorder{}
	factory := func(cfg *config.UserConfig, name string) (model.ContentModel, error) {
		if name == "gen-model" {
			return gen, nil
		}
		return refl, nil
	}
	orch := New(cfg, WithModelFactory(factory), WithRecorder(rec))

	req := testRequest(t, writeDataset(t, dir), filepath.Join(dir, "charts"))
	results := orch.Run(context.Background(), []WorkflowRequest{req})

	require.Len(t, results, 1)
	require.Len(t, rec.results, 1)
	assert.Equal(t, results[0].RunID, rec.results[0].RunID)
	assert.Equal(t, StatusSuccess, rec.results[0].Status)
}

func TestPreflight(t *testing.T) {
	cfg := &config.UserConfig{}
	orch := New(cfg)

	err := orch.Preflight(nil)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	req := WorkflowRequest{
		DatasetPath:     "x.csv",
		GenerationModel: "gemini-2.5-flash",
		ReflectionModel: "gemini-2.5-pro",
	}
	err = orch.Preflight([]WorkflowRequest{req})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "gemini")

	cfg.GeminiAPIKey = "test-key"
	assert.NoError(t, orch.Preflight([]WorkflowRequest{req}))

	// Mixed-provider batches need every referenced provider's key.
	req.ReflectionModel = "gpt-4o"
	err = orch.Preflight([]WorkflowRequest{req})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "openai")
}

func TestArtifactPath(t *testing.T) {
	req := WorkflowRequest{OutputDir: "/out"}
	a := &Artifact{Version: VersionV2, MIMEType: "image/svg+xml", DatasetStem: "sales", CaseLabel: "q3"}
	assert.Equal(t, filepath.Join("/out", "default", "sales_q3_v2.svg"), ArtifactPath(req, a))

	req.Group = "exp"
	a.MIMEType = "image/png"
	assert.Equal(t, filepath.Join("/out", "exp", "sales_q3_v2.png"), ArtifactPath(req, a))
}
