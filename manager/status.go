package manager

import (
	"sync/atomic"

	"addonsync"
)

// statusHolder is a lock-free single-slot holder for the current reconcile
// status. Only the worker writes during reconciliation; arbitrary readers
// observe the last write without blocking.
type statusHolder struct {
	cur       atomic.Pointer[addonsync.Status]
	important atomic.Bool
}

func (h *statusHolder) set(s addonsync.Status) {
	h.cur.Store(&s)
}

func (h *statusHolder) markImportant() {
	h.important.Store(true)
}

// get returns the current status. ok is false before the first write.
func (h *statusHolder) get() (addonsync.Status, bool) {
	p := h.cur.Load()
	if p == nil {
		return addonsync.Status{}, false
	}
	return *p, true
}

func (h *statusHolder) isImportant() bool {
	return h.important.Load()
}
