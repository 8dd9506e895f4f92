package eval

import (
	"context"
	"sync"
	"time"
)

type scopeKey struct{}

// traceScope collects traces for one logical execution. Goroutines started
// by a task share the scope through the context they inherit, so appends are
// locked.
type traceScope struct {
	mu     sync.Mutex
	traces []Trace
}

func (s *traceScope) add(t Trace) {
	s.mu.Lock()
	s.traces = append(s.traces, t)
	s.mu.Unlock()
}

func (s *traceScope) snapshot() []Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Trace, len(s.traces))
	copy(out, s.traces)
	return out
}

// WithTraceScope runs body with a fresh trace collection attached to the
// context it receives and returns body's outcome along with every trace
// emitted against that context. A scope opened inside another one shadows
// it: emissions go to the innermost scope only.
func WithTraceScope[T any](ctx context.Context, body func(ctx context.Context) (T, error)) (T, error, []Trace) {
	scope := &traceScope{}
	out, err := body(context.WithValue(ctx, scopeKey{}, scope))
	return out, err, scope.snapshot()
}

// EmitTrace appends t to the innermost trace scope carried by ctx. Without an
// active scope it does nothing.
func EmitTrace(ctx context.Context, t Trace) {
	if ctx == nil {
		return
	}
	scope, ok := ctx.Value(scopeKey{}).(*traceScope)
	if !ok {
		return
	}
	scope.add(t)
}

// TraceBuilder times one operation. Create it with StartTrace before the
// operation and close it with Finish or FinishWithError.
type TraceBuilder struct {
	start    time.Time
	id       string
	model    string
	metadata any
}

func StartTrace() *TraceBuilder {
	return &TraceBuilder{start: time.Now()}
}

func (b *TraceBuilder) ID(id string) *TraceBuilder {
	b.id = id
	return b
}

func (b *TraceBuilder) Model(model string) *TraceBuilder {
	b.model = model
	return b
}

func (b *TraceBuilder) Metadata(md any) *TraceBuilder {
	b.metadata = md
	return b
}

func (b *TraceBuilder) Finish(input, output any, usage *TokenUsage) Trace {
	end := time.Now()
	return Trace{
		ID:         b.id,
		Start:      b.start,
		End:        end,
		DurationMS: end.Sub(b.start).Milliseconds(),
		Model:      b.model,
		Input:      input,
		Output:     output,
		Usage:      usage,
		Metadata:   b.metadata,
	}
}

func (b *TraceBuilder) FinishWithError(input any, err error) Trace {
	t := b.Finish(input, nil, nil)
	if err != nil {
		t.Error = err.Error()
	}
	return t
}
