package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"chartflow/internal/logging"
)

// ArtifactPath returns the deterministic output path for an artifact:
// {output_dir}/{group}/{dataset_stem}_{case_label}_{version}.{ext}
func ArtifactPath(req WorkflowRequest, a *Artifact) string {
	name := fmt.Sprintf("%s_%s_%s.%s", a.DatasetStem, a.CaseLabel, a.Version, a.Ext())
	return filepath.Join(req.OutputDir, req.group(), name)
}

// persistArtifact writes an artifact to its deterministic path.
// Writes go to a temp file first and are renamed into place, so a
// cancelled or crashed run never leaves a partial output. Existing
// files from prior runs are refused unless the request opts in.
func persistArtifact(req WorkflowRequest, a *Artifact) (string, error) {
	path := ArtifactPath(req, a)

	if !req.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", &PathConflictError{Path: path}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString()[:8])
	if err := os.WriteFile(tmp, a.Payload, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize artifact: %w", err)
	}

	logging.Workflow("Persisted %s artifact: %s (%d bytes)", a.Version, path, len(a.Payload))
	return path, nil
}
