package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/signalnine/gauntlet/eval"
)

const (
	ResultFile = "result.json"
	MetaFile   = "run.json"
	LatestLink = "latest"
)

// CreateRunDir makes runs/<stamp>_<id> under baseDir and points the latest
// symlink at it.
func CreateRunDir(baseDir, runID string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp+"_"+runID)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, LatestLink)
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// ResolveRunDir follows symlinks so that "results/latest" names a real run.
func ResolveRunDir(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	return resolved, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func WriteResult(runDir string, res *eval.EvalResult) error {
	return writeJSON(filepath.Join(runDir, ResultFile), res)
}

func ReadResult(runDir string) (*eval.EvalResult, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ResultFile))
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	var res eval.EvalResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing result: %w", err)
	}
	return &res, nil
}

func WriteRunMeta(runDir string, meta *RunMeta) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	return writeJSON(filepath.Join(runDir, MetaFile), meta)
}

func ReadRunMeta(runDir string) (*RunMeta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	meta.Dir = runDir
	return &meta, nil
}

// ListRuns returns the metadata of every stored run under baseDir, oldest
// first. Directories without a readable run.json are skipped.
func ListRuns(baseDir string) ([]*RunMeta, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, "runs"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var metas []*RunMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := ReadRunMeta(filepath.Join(baseDir, "runs", e.Name()))
		if err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].ID < metas[j].ID
	})
	return metas, nil
}
