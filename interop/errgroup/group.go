// Package errgroup provides an adapter that mimics golang.org/x/sync/errgroup
// semantics using scopes. It enables incremental migration without pulling
// errgroup into the core library.
package errgroup

import (
	"context"

	"github.com/akondrashev/coroscope/dispatch"
	"github.com/akondrashev/coroscope/scope"
)

// Group is an errgroup-like wrapper over a FailFast scope whose tasks each
// run on their own goroutine.
type Group struct {
	s   *scope.Scope
	ctx context.Context
}

// WithContext creates a Group bound to ctx. The returned context is
// cancelled when any function passed to Go returns a non-nil error.
func WithContext(ctx context.Context) (*Group, context.Context) {
	s := scope.New(ctx, dispatch.Goroutines(), scope.FailFast)
	g := &Group{s: s, ctx: s.Context()}
	return g, g.ctx
}

// Go starts a function. It should return a non-nil error to signal failure.
// A function submitted after the group's scope was cancelled is dropped,
// matching errgroup's post-cancel behavior closely enough for migration.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	_ = g.s.Go(func(context.Context) error {
		return f()
	})
}

// Wait blocks until all functions have returned. It returns the first
// non-nil error (FailFast semantics) or nil on success.
func (g *Group) Wait() error {
	return g.s.Wait()
}
