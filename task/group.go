// Package task runs groups of related tasks concurrently, cancelling the
// group upon the first task failure.
package task

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Group runs described tasks concurrently, with a bound on the number in
// flight. The first task to return a non-nil error cancels the Group
// Context, and that error (prefixed by the task description) is returned
// by Wait. Go and Wait must be called from a single goroutine.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
	waited bool
}

// NewGroup returns a Group deriving from |ctx| which runs at most |limit|
// tasks at once. A |limit| of zero or less is unbounded.
func NewGroup(ctx context.Context, limit int) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	return &Group{ctx: ctx, cancel: cancel, eg: eg}
}

// Context returns the Group Context, which is cancelled on the first task
// failure, upon Wait, or by cancellation of the parent.
func (g *Group) Context() context.Context { return g.ctx }

// Go starts |fn| with the Group Context, first blocking until fewer than
// the limit of tasks are running. Go panics if called after Wait.
func (g *Group) Go(desc string, fn func(context.Context) error) {
	if g.waited {
		panic("Go called after Wait")
	}
	g.eg.Go(func() error {
		if err := g.ctx.Err(); err != nil {
			return errors.WithMessage(err, desc)
		}
		return errors.WithMessage(fn(g.ctx), desc)
	})
}

// Wait for all started tasks, and return the first error encountered.
func (g *Group) Wait() error {
	g.waited = true
	var err = g.eg.Wait()
	g.cancel()
	return err
}
