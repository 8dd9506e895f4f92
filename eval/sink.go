package eval

import (
	"context"
	"errors"
	"fmt"
)

// Sink durably records a finished result. The engine treats Save as best
// effort: a failure is logged and never changes the returned result.
type Sink interface {
	Save(ctx context.Context, label string, res *EvalResult) error
}

// MultiSink saves to every sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Save(ctx context.Context, label string, res *EvalResult) error {
	var errs []error
	for i, s := range m {
		if err := s.Save(ctx, label, res); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
