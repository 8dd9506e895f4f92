package eval

import "context"

// Task is the system under test. It receives a case's input and returns the
// produced output. Any error fails the case; the engine does not score it.
type Task interface {
	Run(ctx context.Context, input any) (any, error)
}

// TaskFunc adapts an ordinary function to the Task interface.
type TaskFunc func(ctx context.Context, input any) (any, error)

func (f TaskFunc) Run(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}
