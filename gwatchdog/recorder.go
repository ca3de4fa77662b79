package gwatchdog

import (
	"log/slog"
	"math"
	"sync"
)

// TraceCapacity is the number of report events held by a [StatsRecorder] trace.
const TraceCapacity = 32

// Recorder collects report statistics on behalf of the [Supervisor].
//
// The supervisor calls Reset during Init,
// RecordReport while holding the platform mutex on every task report,
// and Sweep on every handler tick.
// Sweep must not block.
type Recorder interface {
	Reset(cfgs []TaskConfig)
	RecordReport(id TaskID, now uint32)
	Sweep(now uint32)
}

// NopRecorder is the [Recorder] used when statistics are disabled.
type NopRecorder struct{}

func (NopRecorder) Reset([]TaskConfig)          {}
func (NopRecorder) RecordReport(TaskID, uint32) {}
func (NopRecorder) Sweep(uint32)                {}

// TaskStats is a snapshot of the report statistics for one task.
// Interval values are in ticks.
type TaskStats struct {
	// Total reports since the supervisor was initialized.
	Reports uint32

	// Reports since the start of the current timeout window.
	// The window restarts, and this count returns to zero,
	// every time a full timeout elapses.
	WindowReports uint32

	// Number of intervals folded into the interval statistics.
	// The first report after initialization has no preceding report,
	// so Samples trails Reports by one.
	Samples uint32

	Sum           uint64
	Avg, Min, Max uint32
}

func (s TaskStats) LogValue() slog.Value {
	if s.Samples == 0 {
		return slog.GroupValue(
			slog.Uint64("reports", uint64(s.Reports)),
			slog.Uint64("window_reports", uint64(s.WindowReports)),
		)
	}

	return slog.GroupValue(
		slog.Uint64("reports", uint64(s.Reports)),
		slog.Uint64("window_reports", uint64(s.WindowReports)),
		slog.Uint64("samples", uint64(s.Samples)),
		slog.Uint64("avg", uint64(s.Avg)),
		slog.Uint64("min", uint64(s.Min)),
		slog.Uint64("max", uint64(s.Max)),
	)
}

// StatsSnapshotter is implemented by recorders that can report
// what they have collected.
type StatsSnapshotter interface {
	Stats(id TaskID) (TaskStats, bool)
	Trace() []TaskID
}

// StatsRecorder is a [Recorder] that keeps per-task interval statistics,
// per-window report counts, and a trace of the most recent reporters.
//
// StatsRecorder is safe for concurrent use.
type StatsRecorder struct {
	mu sync.Mutex

	timeouts []uint32

	stats []TaskStats

	// Previous report timestamp per task, valid only when hasPrev is set.
	prev    []uint32
	hasPrev []bool

	windowStart []uint32

	// Newest entry at index 0.
	trace  [TraceCapacity]TaskID
	nTrace int
}

var (
	_ Recorder         = (*StatsRecorder)(nil)
	_ StatsSnapshotter = (*StatsRecorder)(nil)
)

// NewStatsRecorder returns an empty StatsRecorder.
// It holds no tasks until Reset is called.
func NewStatsRecorder() *StatsRecorder {
	return new(StatsRecorder)
}

// Reset discards all collected data and sizes r for cfgs.
func (r *StatsRecorder) Reset(cfgs []TaskConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(cfgs)
	r.timeouts = make([]uint32, n)
	for i, c := range cfgs {
		r.timeouts[i] = c.Timeout
	}

	r.stats = make([]TaskStats, n)
	for i := range r.stats {
		r.stats[i].Min = math.MaxUint32
	}

	r.prev = make([]uint32, n)
	r.hasPrev = make([]bool, n)
	r.windowStart = make([]uint32, n)

	r.trace = [TraceCapacity]TaskID{}
	r.nTrace = 0
}

// RecordReport folds a report by task id at tick now into the statistics.
func (r *StatsRecorder) RecordReport(id TaskID, now uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.stats) {
		return
	}

	s := &r.stats[id]
	s.Reports++
	s.WindowReports++

	if r.hasPrev[id] {
		d := now - r.prev[id]

		s.Samples++
		s.Sum += uint64(d)
		s.Avg = uint32(s.Sum / uint64(s.Samples))
		s.Min = min(s.Min, d)
		s.Max = max(s.Max, d)
	}
	r.prev[id] = now
	r.hasPrev[id] = true

	r.pushTrace(id)
}

// pushTrace must be called with r.mu held.
func (r *StatsRecorder) pushTrace(id TaskID) {
	copy(r.trace[1:], r.trace[:TraceCapacity-1])
	r.trace[0] = id
	if r.nTrace < TraceCapacity {
		r.nTrace++
	}
}

// Sweep restarts the report window of every task whose timeout
// has fully elapsed since its window started.
//
// If a report is being recorded concurrently, Sweep does nothing;
// the next sweep will catch up.
func (r *StatsRecorder) Sweep(now uint32) {
	if !r.mu.TryLock() {
		return
	}
	defer r.mu.Unlock()

	for i, timeout := range r.timeouts {
		if now-r.windowStart[i] >= timeout {
			r.windowStart[i] = now
			r.stats[i].WindowReports = 0
		}
	}
}

// Stats returns the statistics for id.
// The second result is false if id is unknown to r.
func (r *StatsRecorder) Stats(id TaskID) (TaskStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.stats) {
		return TaskStats{}, false
	}
	return r.stats[id], true
}

// Trace returns the most recent reporters, newest first.
func (r *StatsRecorder) Trace() []TaskID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TaskID, r.nTrace)
	copy(out, r.trace[:r.nTrace])
	return out
}
