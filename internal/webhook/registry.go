// Package webhook maintains the set of URLs that receive every operational
// log line and delivers those lines to them.
package webhook

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"renderhub/internal/pkg/logger"
)

// Store persists subscriber URLs. Registry keeps working from memory when a
// Store call fails.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Add(ctx context.Context, url string) error
	Remove(ctx context.Context, url string) error
}

// Registry is a set of subscriber URLs. Reads go through an immutable
// snapshot and never wait for writers.
type Registry struct {
	log   *logger.Logger
	store Store

	mu   sync.Mutex // serialises writers
	snap atomic.Pointer[[]string]
}

// NewRegistry returns an empty registry. store may be nil.
func NewRegistry(log *logger.Logger, store Store) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	r := &Registry{log: log.WithComponent("webhook-registry"), store: store}
	empty := []string{}
	r.snap.Store(&empty)
	return r
}

// Restore replaces the in-memory set with the persisted one.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	urls, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := slices.Clone(urls)
	slices.Sort(next)
	next = slices.Compact(next)
	r.snap.Store(&next)
	r.log.Info("webhooks restored", "count", len(next))
	return nil
}

// Register adds url. Adding a present URL changes nothing.
func (r *Registry) Register(ctx context.Context, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.snap.Load()
	i, found := slices.BinarySearch(cur, url)
	if found {
		return
	}
	next := slices.Insert(slices.Clone(cur), i, url)
	r.snap.Store(&next)

	if r.store != nil {
		if err := r.store.Add(ctx, url); err != nil {
			r.log.Warn("persist webhook failed", "url", url, "error", err.Error())
		}
	}
}

// Unregister removes url. Removing an absent URL changes nothing.
func (r *Registry) Unregister(ctx context.Context, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.snap.Load()
	i, found := slices.BinarySearch(cur, url)
	if !found {
		return
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	r.snap.Store(&next)

	if r.store != nil {
		if err := r.store.Remove(ctx, url); err != nil {
			r.log.Warn("unpersist webhook failed", "url", url, "error", err.Error())
		}
	}
}

// List returns the current subscribers in sorted order. The returned slice
// is a snapshot and may be retained.
func (r *Registry) List() []string {
	return slices.Clone(*r.snap.Load())
}

// snapshot returns the current set without copying. Callers must not
// modify it.
func (r *Registry) snapshot() []string {
	return *r.snap.Load()
}
