// Package taskgroup provides cooperative goroutine supervision: a set of
// named tasks sharing one cancellable Context, where the first task to
// return a non-nil error cancels the rest and is reported by Wait. This
// reimplements the usage contract observed at the bridge's process
// lifecycle call sites (Queue/Context/a blocking drain), not any
// particular upstream package's internals.
package taskgroup

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Group supervises a set of goroutines that should all stop once any one
// of them fails, or the parent context is cancelled.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	firstErr error
}

// New returns a Group whose Context is derived from parent.
func New(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// Context returns the Group's Context, cancelled when the parent is
// cancelled or any queued task fails.
func (g *Group) Context() context.Context { return g.ctx }

// Queue runs fn in a new goroutine under the Group's supervision. name
// identifies the task in logs and in the error Wait returns. If fn returns
// a non-nil error and no prior task has already failed, the Group's
// Context is cancelled and that error becomes the one Wait reports.
func (g *Group) Queue(name string, fn func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.mu.Lock()
			first := g.firstErr == nil
			if first {
				g.firstErr = fmt.Errorf("%s: %w", name, err)
			}
			g.mu.Unlock()
			if first {
				log.WithFields(log.Fields{"task": name, "error": err}).
					Error("taskgroup: task failed, cancelling group")
				g.cancel()
			}
		}
	}()
}

// Wait blocks until every queued task has returned, then returns the first
// non-nil error reported by any of them (or nil if all returned cleanly).
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstErr
}

// Cancel cancels the Group's Context directly, as if a task had failed
// with err, without waiting for a task to report it. Used by graceful
// shutdown paths that have their own stop signal.
func (g *Group) Cancel(err error) {
	g.mu.Lock()
	if g.firstErr == nil {
		g.firstErr = err
	}
	g.mu.Unlock()
	g.cancel()
}
