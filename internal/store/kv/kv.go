// Package kv stores evaluation results in an embedded badger database.
//
// Layout:
//
//	run/<run-id>               RunRecord
//	case/<run-id>/<index:06d>  CaseRecord
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalnine/gauntlet/eval"
)

var ErrRunNotFound = errors.New("run not found")

const (
	runPrefix  = "run/"
	casePrefix = "case/"
)

type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

type RunRecord struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	CreatedAt time.Time        `json:"created_at"`
	Summary   eval.EvalSummary `json:"summary"`
	Cases     int              `json:"cases"`
}

type CaseRecord struct {
	ID     string          `json:"id"`
	RunID  string          `json:"run_id"`
	Result eval.CaseResult `json:"result"`
}

// zapLogger adapts zap to badger.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Errorf(f string, args ...interface{})   { l.s.Errorf(f, args...) }
func (l zapLogger) Warningf(f string, args ...interface{}) { l.s.Warnf(f, args...) }
func (l zapLogger) Infof(f string, args ...interface{})    { l.s.Debugf(f, args...) }
func (l zapLogger) Debugf(f string, args ...interface{})   { l.s.Debugf(f, args...) }

// Store implements eval.Sink.
type Store struct {
	db *badger.DB
}

func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(zapLogger{s: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func runKey(id string) []byte { return []byte(runPrefix + id) }

func caseKey(runID string, idx int) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", casePrefix, runID, idx))
}

// Save writes the run record and every case in a single write batch. Run
// ids are UUIDv7 so keys sort by creation time.
func (s *Store) Save(_ context.Context, label string, res *eval.EvalResult) error {
	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating run id: %w", err)
	}
	rec := RunRecord{
		ID:        runID.String(),
		Label:     label,
		CreatedAt: time.Now().UTC(),
		Summary:   res.Summary,
		Cases:     len(res.Cases),
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	if err := wb.Set(runKey(rec.ID), data); err != nil {
		return fmt.Errorf("writing run: %w", err)
	}
	for i, cr := range res.Cases {
		data, err := json.Marshal(CaseRecord{ID: uuid.NewString(), RunID: rec.ID, Result: cr})
		if err != nil {
			return fmt.Errorf("marshaling case %s: %w", cr.Key(), err)
		}
		if err := wb.Set(caseKey(rec.ID, i), data); err != nil {
			return fmt.Errorf("writing case %s: %w", cr.Key(), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing run: %w", err)
	}
	return nil
}

// ListRuns returns every stored run record, oldest first.
func (s *Store) ListRuns(_ context.Context) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 50})
		defer it.Close()
		prefix := []byte(runPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec RunRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, rec)
		}
		return nil
	})
	return runs, err
}

// LoadRun rebuilds the result stored under runID.
func (s *Store) LoadRun(_ context.Context, runID string) (*eval.EvalResult, error) {
	res := &eval.EvalResult{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRunNotFound
		}
		if err != nil {
			return err
		}
		var rec RunRecord
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return fmt.Errorf("decoding run: %w", err)
		}
		res.Summary = rec.Summary

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(casePrefix + runID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var cr CaseRecord
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &cr) }); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			res.Cases = append(res.Cases, cr.Result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
