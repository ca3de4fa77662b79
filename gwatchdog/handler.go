package gwatchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/gordian-engine/gwdt/internal/glog"
)

// HandlerTick checks every enabled task for a missed deadline,
// then kicks the hardware watchdog if all tasks are on time
// and the kick period has elapsed since the previous kick.
//
// HandlerTick never blocks.
// It should be called at a fixed period,
// at least ten times faster than the hardware watchdog expiry window.
func (s *Supervisor) HandlerTick() error {
	if !s.initialized.Load() {
		return ErrNotInitialized
	}
	if !s.started.Load() {
		return ErrNotStarted
	}

	s.checkTaskReports()
	s.kickIfValid()

	s.rec.Sweep(s.platform.Ticks())

	return nil
}

// checkTaskReports clears the validity flag
// upon the first enabled task found to be late.
func (s *Supervisor) checkTaskReports() {
	if !s.valid.Load() {
		// Nothing can set it again until Start.
		return
	}

	for i := range s.tasks {
		st := s.tasks[i].load()
		if !st.Enabled {
			continue
		}

		// The tick must be read after the record is loaded,
		// so a concurrent report can never appear to be in the future.
		elapsed := s.platform.Ticks() - st.ReportedAt
		if elapsed > s.cfgs[i].Timeout {
			s.missedDeadline(TaskID(i), elapsed)
			return
		}
	}
}

func (s *Supervisor) missedDeadline(id TaskID, elapsed uint32) {
	if !s.valid.CompareAndSwap(true, false) {
		return
	}

	v := MissedDeadlineError{
		TaskID:   id,
		TaskName: s.cfgs[id].Name,
		Elapsed:  elapsed,
		Timeout:  s.cfgs[id].Timeout,
	}
	s.violation.Store(&v)

	glog.Task(s.log, uint16(id), v.TaskName).Error(
		"Task missed deadline; hardware watchdog will no longer be kicked",
		"elapsed", elapsed, "timeout", v.Timeout,
	)

	s.metrics.DeadlineMissed(v.TaskName, elapsed)
	s.metrics.ValidityChanged(false)
}

func (s *Supervisor) kickIfValid() {
	if !s.valid.Load() {
		return
	}

	now := s.platform.Ticks()
	if now-s.lastKick.Load() < s.kickPeriod {
		return
	}

	s.lastKick.Store(now)
	s.platform.Kick()
	s.metrics.Kicked()
}

// RunHandler calls [*Supervisor.HandlerTick] every period until ctx is canceled.
// It is intended to run in its own goroutine, standing in for a timer interrupt.
//
// Errors from HandlerTick are logged once per distinct error and otherwise ignored,
// so that RunHandler may be started before the supervisor is.
func RunHandler(ctx context.Context, log *slog.Logger, s *Supervisor, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping handler due to context cancellation", "cause", context.Cause(ctx))
			return
		case <-ticker.C:
			err := s.HandlerTick()
			if err != nil && err != lastErr {
				log.Info("Handler tick skipped", "err", err)
			}
			lastErr = err
		}
	}
}
