package eval

import "context"

// DataSource supplies the ordered case list for a run. The engine calls Load
// exactly once per run.
type DataSource interface {
	Load(ctx context.Context) ([]TestCase, error)
}

// DataSourceFunc adapts a function to the DataSource interface.
type DataSourceFunc func(ctx context.Context) ([]TestCase, error)

func (f DataSourceFunc) Load(ctx context.Context) ([]TestCase, error) {
	return f(ctx)
}

// Cases is an in-memory DataSource.
type Cases []TestCase

func (c Cases) Load(context.Context) ([]TestCase, error) {
	out := make([]TestCase, len(c))
	copy(out, c)
	return out, nil
}

// Filtered wraps src so that only cases accepted by keep are returned.
func Filtered(src DataSource, keep func(TestCase) bool) DataSource {
	return DataSourceFunc(func(ctx context.Context) ([]TestCase, error) {
		cases, err := src.Load(ctx)
		if err != nil {
			return nil, err
		}
		var out []TestCase
		for _, c := range cases {
			if keep(c) {
				out = append(out, c)
			}
		}
		return out, nil
	})
}
