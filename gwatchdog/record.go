package gwatchdog

import "sync/atomic"

// taskRecord holds the mutable liveness state of one task.
//
// The report timestamp and the enable flag are packed into a single word
// so that the handler always observes a consistent pair without locking.
// Writers must hold the platform mutex.
type taskRecord struct {
	v atomic.Uint64
}

const enabledBit = 1 << 32

type taskState struct {
	ReportedAt uint32
	Enabled    bool
}

func (r *taskRecord) load() taskState {
	v := r.v.Load()
	return taskState{
		ReportedAt: uint32(v),
		Enabled:    v&enabledBit != 0,
	}
}

func (r *taskRecord) store(s taskState) {
	v := uint64(s.ReportedAt)
	if s.Enabled {
		v |= enabledBit
	}
	r.v.Store(v)
}
