package panicerr

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"

	"github.com/tiation/riggerhire/pkg/cerr"
)

// Safe wraps a function that returns an error, converting a panic into an
// Internal error that keeps the panicking goroutine's stack.
func Safe(fn func() error) func() error {
	return func() error {
		return SafeContext(func(context.Context) error { return fn() })(context.Background())
	}
}

// SafeContext is Safe for functions that take a context.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if r := catcher.Recovered(); r != nil {
			e := cerr.NewError(cerr.Internal, "panic recovered", fmt.Errorf("%v", r.Value))
			e.Stack = string(r.Stack)
			return e
		}
		return err
	}
}
