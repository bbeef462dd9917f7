package executor

import "context"

type proceedKey struct{}

// WithProceedAsIs marks ctx as a re-run in which the user declined to
// resolve an ambiguity. Invokers forward the flag so services can pick a
// default instead of asking again.
func WithProceedAsIs(ctx context.Context) context.Context {
	return context.WithValue(ctx, proceedKey{}, true)
}

// ProceedAsIs reports whether ctx carries the flag set by WithProceedAsIs.
func ProceedAsIs(ctx context.Context) bool {
	v, _ := ctx.Value(proceedKey{}).(bool)
	return v
}
