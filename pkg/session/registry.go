package session

import (
	"sort"
	"sync"
)

// Registry is a process-wide cleanup registry. Sessions register their
// teardown functions on setup and unregister on normal completion; the signal
// handler in main drains whatever is left so tunnels and temp keys never
// outlive the process. Registering into one shared registry instead of
// installing per-session signal listeners keeps repeated invocations inside
// one process (tests, embedding) from leaking handlers.
type Registry struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

// NewRegistry creates an empty cleanup registry.
func NewRegistry() *Registry {
	return &Registry{fns: map[int]func(){}}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry drained by the signal
// handler.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a cleanup function and returns its unregister function.
// Unregistering twice is a no-op.
func (r *Registry) Register(fn func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.fns[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.fns, id)
	}
}

// Drain runs and removes every registered cleanup, most recent first.
func (r *Registry) Drain() {
	r.mu.Lock()
	ids := make([]int, 0, len(r.fns))
	for id := range r.fns {
		ids = append(ids, id)
	}
	// Most recently registered first, like stacked defers.
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.fns[id])
		delete(r.fns, id)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
