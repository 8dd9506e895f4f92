package redisbus_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/store/redisbus"
)

func dial(t *testing.T) *redisbus.Publisher {
	t.Helper()
	url := os.Getenv("GAUNTLET_TEST_REDIS_URL")
	if url == "" {
		t.Skip("GAUNTLET_TEST_REDIS_URL not set")
	}
	p, err := redisbus.Dial(context.Background(), url, "gauntlet.test."+t.Name(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestRunKey(t *testing.T) {
	assert.Equal(t, "gauntlet:run:abc", redisbus.RunKey("abc"))
}

func TestNewDefaultsChannel(t *testing.T) {
	p := redisbus.New(nil, "", 0)
	assert.Equal(t, redisbus.DefaultChannel, p.Channel())
}

func TestSavePublishesAndStores(t *testing.T) {
	p := dial(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan redisbus.Notification, 1)
	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	ready := make(chan struct{})
	go func() {
		close(ready)
		p.Subscribe(subCtx, func(n redisbus.Notification) { got <- n })
	}()
	<-ready
	// Give the subscription time to register before publishing.
	time.Sleep(100 * time.Millisecond)

	cases := []eval.CaseResult{{
		Case:   eval.TestCase{ID: "a", Input: "x", Expected: "x"},
		Output: "x",
		Scores: []eval.Score{{Name: "exact_match", Value: 1, Passed: true}},
	}}
	res := &eval.EvalResult{Cases: cases, Summary: eval.Summarize(cases)}
	require.NoError(t, p.Save(ctx, "redis", res))

	var n redisbus.Notification
	select {
	case n = <-got:
	case <-ctx.Done():
		t.Fatal("no notification received")
	}
	assert.Equal(t, "redis", n.Label)
	assert.Equal(t, res.Summary, n.Summary)

	stored, err := p.Get(ctx, n.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Summary, stored.Summary)
	assert.Equal(t, "a", stored.Cases[0].Case.ID)
}

func TestGetMissing(t *testing.T) {
	p := dial(t)
	_, err := p.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, redisbus.ErrRunNotFound)
}
