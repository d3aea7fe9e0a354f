package manager

import (
	"sync"

	"addonsync"
)

// queue is the ordered set of pending add-on installs, shared between the
// scheduler and the worker. Its lock is the single point of mutual
// exclusion: every read and removal of entries, and the registration of
// the one live worker, happens while holding mu.
type queue struct {
	mu      sync.Mutex
	pending []addonsync.Dependency
	worker  *Worker // the registered worker, nil when none is running
}

// enqueueLocked appends dep unless a pending entry with the same name
// already exists. Caller holds mu.
func (q *queue) enqueueLocked(dep addonsync.Dependency) {
	for _, p := range q.pending {
		if p.Name == dep.Name {
			return
		}
	}
	q.pending = append(q.pending, dep)
}

// removeHeadLocked drops the head entry. Caller holds mu.
func (q *queue) removeHeadLocked() {
	q.pending = q.pending[1:]
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
