package websocket

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Scope is a structured concurrency group: it does not return from Wait
// until every task Spawned into it has returned, and an unhandled error
// from one task cancels the context handed to its siblings (spec.md §5,
// §9 "Task supervision"). It is a thin, named wrapper over
// golang.org/x/sync/errgroup, which already provides exactly this pair of
// properties.
type Scope struct {
	g *errgroup.Group
}

// NewScope creates a Scope rooted at ctx and returns the derived context
// that Spawned tasks should observe for cancellation.
func NewScope(ctx context.Context) (*Scope, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &Scope{g: g}, gctx
}

// Spawn runs fn in a new goroutine belonging to the scope. fn's error (if
// any) is recorded and its context canceled so siblings observe it; the
// first non-nil error is what Wait ultimately returns.
func (s *Scope) Spawn(fn func() error) {
	s.g.Go(fn)
}

// Wait blocks until every Spawned task has returned, then returns the
// first non-nil error, if any.
func (s *Scope) Wait() error {
	return s.g.Wait()
}
