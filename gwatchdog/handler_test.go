package gwatchdog_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gordian-engine/gwdt/gwatchdog"
	"github.com/gordian-engine/gwdt/gwatchdog/gwatchdogtest"
	"github.com/gordian-engine/gwdt/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_missedDeadlineIsPermanentUntilStart(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 50, Enabled: true,
	})
	s := f.StartedSupervisor(t)

	// Exactly the timeout is still on time.
	f.TickTo(t, s, 50)
	require.True(t, s.Valid())

	f.TickTo(t, s, 51)
	require.False(t, s.Valid())

	v, ok := s.Violation()
	require.True(t, ok)
	require.Equal(t, gwatchdog.MissedDeadlineError{
		TaskID: 0, TaskName: "a", Elapsed: 51, Timeout: 50,
	}, v)

	// A late report does not restore validity.
	require.NoError(t, s.Report(0))
	for tick := uint32(52); tick < 200; tick++ {
		f.TickTo(t, s, tick)
		require.False(t, s.Valid())
	}

	// Only a new start does.
	require.NoError(t, s.Start())
	require.True(t, s.Valid())
	_, ok = s.Violation()
	require.False(t, ok)

	f.TickTo(t, s, 249)
	require.True(t, s.Valid())
	f.TickTo(t, s, 250)
	require.False(t, s.Valid())
}

func TestSupervisor_kicksAtMostOncePerPeriod(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 50, Enabled: true,
	})
	f.Config.KickPeriod = 10
	s := f.StartedSupervisor(t)

	for tick := uint32(1); tick <= 100; tick++ {
		if tick%5 == 0 {
			f.Platform.SetTicks(tick)
			require.NoError(t, s.Report(0))
		}
		f.TickTo(t, s, tick)
	}

	require.Equal(t, []uint32{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, f.Platform.KickTicks())
}

func TestSupervisor_kickPeriodIndependentOfHandlerRate(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 1000, Enabled: true,
	})
	f.Config.KickPeriod = 10
	s := f.StartedSupervisor(t)

	// Irregular handler ticks: a kick happens whenever at least 10 ticks have passed.
	for _, tick := range []uint32{3, 9, 10, 11, 19, 27, 34, 35, 60} {
		f.TickTo(t, s, tick)
	}

	require.Equal(t, []uint32{10, 27, 60}, f.Platform.KickTicks())
}

func TestSupervisor_defaultKickPeriod(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 1000, Enabled: true,
	})
	s := f.StartedSupervisor(t)

	f.TickTo(t, s, gwatchdog.DefaultKickPeriod-1)
	require.Zero(t, f.Platform.Kicks())

	f.TickTo(t, s, gwatchdog.DefaultKickPeriod)
	require.Equal(t, int64(1), f.Platform.Kicks())
}

func TestSupervisor_SetEnable_grantsFreshWindow(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 50, Enabled: true,
	})
	s := f.StartedSupervisor(t)

	f.Platform.SetTicks(40)
	require.NoError(t, s.SetEnable(0, false))

	// Disabled tasks are never judged late.
	for tick := uint32(41); tick <= 1000; tick += 7 {
		f.TickTo(t, s, tick)
	}
	require.True(t, s.Valid())

	f.Platform.SetTicks(1000)
	require.NoError(t, s.SetEnable(0, true))

	enabled, err := s.Enabled(0)
	require.NoError(t, err)
	require.True(t, enabled)

	// The full window is measured from the enable call.
	f.TickTo(t, s, 1050)
	require.True(t, s.Valid())

	f.TickTo(t, s, 1051)
	require.False(t, s.Valid())
}

func TestSupervisor_SetEnable_whileEnabledRestartsWindow(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 50, Enabled: true,
	})
	s := f.StartedSupervisor(t)

	f.Platform.SetTicks(45)
	require.NoError(t, s.SetEnable(0, true))

	f.TickTo(t, s, 95)
	require.True(t, s.Valid())
	f.TickTo(t, s, 96)
	require.False(t, s.Valid())
}

func TestSupervisor_wraparound(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 15, Enabled: true,
	})
	f.Config.KickPeriod = 4
	f.Platform.SetTicks(math.MaxUint32 - 5)
	s := f.StartedSupervisor(t)

	// Two ticks before the counter wraps, and one after.
	f.TickTo(t, s, math.MaxUint32-1)
	f.TickTo(t, s, 3)
	require.True(t, s.Valid())

	// Kicks also use wrapping arithmetic.
	require.Equal(t, []uint32{math.MaxUint32 - 1, 3}, f.Platform.KickTicks())

	// MaxUint32-5 to 10 is 16 ticks, not a huge or negative distance.
	f.TickTo(t, s, 10)
	require.False(t, s.Valid())

	v, ok := s.Violation()
	require.True(t, ok)
	require.Equal(t, uint32(16), v.Elapsed)
}

func TestSupervisor_reportAcrossWraparound(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 20, Enabled: true,
	})
	f.Platform.SetTicks(math.MaxUint32 - 30)
	s := f.StartedSupervisor(t)

	f.Platform.SetTicks(math.MaxUint32 - 15)
	require.NoError(t, s.Report(0))

	// 20 ticks after the report, having wrapped.
	f.TickTo(t, s, 4)
	require.True(t, s.Valid())

	f.TickTo(t, s, 5)
	require.False(t, s.Valid())
}

func TestSupervisor_firstViolationShortCircuits(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(
		gtest.NewLogger(t),
		gwatchdog.TaskConfig{Name: "disabled", Timeout: 1, Enabled: false},
		gwatchdog.TaskConfig{Name: "first", Timeout: 10, Enabled: true},
		gwatchdog.TaskConfig{Name: "second", Timeout: 5, Enabled: true},
	)
	m := new(recordingMetrics)
	f.Config.Metrics = m
	s := f.StartedSupervisor(t)

	// Both enabled tasks are late on the same tick;
	// the first in registration order is the one reported.
	f.TickTo(t, s, 20)
	require.False(t, s.Valid())

	v, ok := s.Violation()
	require.True(t, ok)
	require.Equal(t, "first", v.TaskName)
	require.Equal(t, gwatchdog.TaskID(1), v.TaskID)

	// Later ticks do not replace the recorded violation.
	f.TickTo(t, s, 30)
	v, _ = s.Violation()
	require.Equal(t, "first", v.TaskName)

	require.Equal(t, []string{"first"}, m.Missed())
	require.Equal(t, []bool{true, false}, m.Validity())
}

// Two tasks, timeouts 50 and 100, started at tick 0.
// Task A keeps reporting; task B never does.
func TestSupervisor_scenario_silentTaskStopsKicking(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(
		gtest.NewLogger(t),
		gwatchdog.TaskConfig{Name: "A", Timeout: 50, Enabled: true},
		gwatchdog.TaskConfig{Name: "B", Timeout: 100, Enabled: true},
	)
	f.Config.KickPeriod = 10
	s := f.StartedSupervisor(t)

	for tick := uint32(1); tick <= 150; tick++ {
		if tick%40 == 0 {
			f.Platform.SetTicks(tick)
			require.NoError(t, s.Report(0))
		}

		f.TickTo(t, s, tick)

		if tick < 101 {
			require.Truef(t, s.Valid(), "tick %d", tick)
		} else {
			require.Falsef(t, s.Valid(), "tick %d", tick)
		}
	}

	v, ok := s.Violation()
	require.True(t, ok)
	require.Equal(t, "B", v.TaskName)
	require.Equal(t, uint32(101), v.Elapsed)

	kicks := f.Platform.KickTicks()
	require.NotEmpty(t, kicks)
	for _, k := range kicks {
		require.Less(t, k, uint32(101))
	}
}

func TestSupervisor_metrics(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 50, Enabled: true,
	})
	f.Config.KickPeriod = 10
	m := new(recordingMetrics)
	f.Config.Metrics = m
	s := f.StartedSupervisor(t)

	f.TickTo(t, s, 10)

	f.Platform.SetTicks(15)
	require.NoError(t, s.Report(0))

	f.TickTo(t, s, 20)

	f.Platform.SetTicks(40)
	require.NoError(t, s.Report(0))

	require.Equal(t, []uint32{15, 25}, m.Intervals("a"))
	require.Equal(t, 2, m.Kicks())
	require.Equal(t, []bool{true}, m.Validity())
}

func TestRunHandler(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 1000, Enabled: true,
	})
	f.Config.KickPeriod = 1
	s := f.Supervisor()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		gwatchdog.RunHandler(ctx, gtest.NewLogger(t), s, time.Millisecond)
	}()

	// Ticking an uninitialized supervisor is tolerated.
	gtest.Sleep(gtest.ScaleMs(5))

	require.NoError(t, s.Init())
	require.NoError(t, s.Start())
	f.Platform.SetTicks(5)

	require.Eventually(t, func() bool {
		return f.Platform.Kicks() > 0
	}, time.Duration(gtest.ScaleMs(500)), time.Millisecond)

	cancel()
	_ = gtest.ReceiveSoon(t, done)
}

// recordingMetrics is a gwatchdog.Metrics that remembers every call.
type recordingMetrics struct {
	mu sync.Mutex

	kicks     int
	intervals map[string][]uint32
	missed    []string
	validity  []bool
}

func (m *recordingMetrics) Kicked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kicks++
}

func (m *recordingMetrics) Reported(task string, interval uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intervals == nil {
		m.intervals = make(map[string][]uint32)
	}
	m.intervals[task] = append(m.intervals[task], interval)
}

func (m *recordingMetrics) DeadlineMissed(task string, _ uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missed = append(m.missed, task)
}

func (m *recordingMetrics) ValidityChanged(valid bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validity = append(m.validity, valid)
}

func (m *recordingMetrics) Kicks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kicks
}

func (m *recordingMetrics) Intervals(task string) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intervals[task]
}

func (m *recordingMetrics) Missed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missed
}

func (m *recordingMetrics) Validity() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validity
}
