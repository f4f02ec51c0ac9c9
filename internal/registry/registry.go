// Package registry tracks in-flight deployments so that at most one
// task is ever active per publication target. A newer deployment for
// the same target cancels and waits out its predecessor.
package registry

import (
	"context"
	"sync"
)

// Key identifies a publication target: the repository holding the
// static-hosting branch and the path within it.
type Key struct {
	RepoURL string
	Path    string
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (t *task) finish() {
	t.once.Do(func() { close(t.done) })
}

func (t *task) completed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Registry is the process-wide deployment index. Entries are
// overwritten by the next claim for the same key, so stale completed
// entries are harmless.
type Registry struct {
	mu    sync.Mutex
	slots map[Key]*task
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{slots: make(map[Key]*task)}
}

// Claim installs the caller as the active task for key and returns a
// release function that must run on every exit path of the caller's
// work. If a predecessor is still running, Claim cancels it and blocks
// until it finishes.
//
// The caller is installed before blocking. A third arrival therefore
// sees and displaces the caller, not the predecessor, so a burst of
// claims for one key resolves to exactly the newest task with every
// older one cancelled.
//
// ctx is the caller's own cancellable context and cancel its cancel
// function; the registry invokes cancel when the caller is displaced.
// If ctx dies while waiting for the predecessor, Claim returns ctx's
// error; the release function must still be called.
func (r *Registry) Claim(ctx context.Context, key Key, cancel context.CancelFunc) (func(), error) {
	t := &task{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	prev := r.slots[key]
	r.slots[key] = t
	r.mu.Unlock()

	if prev == nil || prev.completed() {
		return t.finish, nil
	}

	prev.cancel()
	select {
	case <-prev.done:
		return t.finish, nil
	case <-ctx.Done():
		return t.finish, ctx.Err()
	}
}

// Active reports whether key currently maps to a running task. Used by
// introspection endpoints, not by the claim path.
func (r *Registry) Active(key Key) bool {
	r.mu.Lock()
	t := r.slots[key]
	r.mu.Unlock()
	return t != nil && !t.completed()
}
