package result

import (
	"context"
	"sync"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/pricing"
)

// DirSink stores each saved result as a new run directory under BaseDir.
type DirSink struct {
	BaseDir string
	Pricing *pricing.Table

	mu      sync.Mutex
	lastDir string
}

func NewDirSink(baseDir string, table *pricing.Table) *DirSink {
	return &DirSink{BaseDir: baseDir, Pricing: table}
}

func (s *DirSink) Save(_ context.Context, label string, res *eval.EvalResult) error {
	id := NewRunID()
	runDir, err := CreateRunDir(s.BaseDir, id)
	if err != nil {
		return err
	}
	if err := WriteResult(runDir, res); err != nil {
		return err
	}
	meta := NewRunMeta(id, label, res, s.Pricing.ResultCost(res))
	if err := WriteRunMeta(runDir, meta); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastDir = runDir
	s.mu.Unlock()
	return nil
}

// LastRunDir is the directory written by the most recent successful Save.
func (s *DirSink) LastRunDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDir
}
