package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/signalnine/gauntlet/internal/watch"
)

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "cases.jsonl")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(data, []byte("{}\n"), 0o644))

	w, err := watch.New([]string{data}, 50*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer w.Close()

	calls := make(chan []string, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(changed []string) { calls <- changed }) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(data, []byte("{\"n\":1}\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case changed := <-calls:
		want, _ := filepath.Abs(data)
		assert.Equal(t, []string{want}, changed)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case changed := <-calls:
		t.Fatalf("burst reported more than once: %v", changed)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	select {
	case changed := <-calls:
		t.Fatalf("unwatched file reported: %v", changed)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewMissingDir(t *testing.T) {
	_, err := watch.New([]string{filepath.Join(t.TempDir(), "missing", "x.yaml")}, 0, nil)
	assert.Error(t, err)
}
