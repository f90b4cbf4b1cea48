package txn

import "context"

// Activity is one step of a command pipeline.
//
// The runner calls Validate (fail fast, before any mutation), then Satisfied
// (already done: mark complete and stop), then Execute (assemble the domain
// request, dispatch to a strategy, keep the response), then Complete (apply
// the response, persist, adjust downstream completion flags).
type Activity[C any] interface {
	Name() string
	Validate(tc *Context[C]) error
	Satisfied(tc *Context[C]) bool
	Execute(ctx context.Context, tc *Context[C]) error
	Complete(ctx context.Context, tc *Context[C]) error
}

// RunActivity applies the activity template to tc.
func RunActivity[C any](ctx context.Context, a Activity[C], tc *Context[C]) error {
	name := a.Name()
	if tc.handlerComplete || tc.Completed(name) {
		return nil
	}
	if err := a.Validate(tc); err != nil {
		return err
	}
	if a.Satisfied(tc) {
		tc.SetComplete(name, true)
		return nil
	}
	if err := a.Execute(ctx, tc); err != nil {
		return err
	}
	if err := a.Complete(ctx, tc); err != nil {
		return err
	}
	tc.SetComplete(name, true)
	return nil
}
