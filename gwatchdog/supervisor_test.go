package gwatchdog_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gordian-engine/gwdt/gwatchdog"
	"github.com/gordian-engine/gwdt/gwatchdog/gwatchdogtest"
	"github.com/gordian-engine/gwdt/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_lifecycleErrors(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 50, Enabled: true,
	})
	s := f.Supervisor()

	require.False(t, s.IsInit())

	require.ErrorIs(t, s.Start(), gwatchdog.ErrNotInitialized)
	require.ErrorIs(t, s.Deinit(), gwatchdog.ErrNotInitialized)
	require.ErrorIs(t, s.HandlerTick(), gwatchdog.ErrNotInitialized)
	require.ErrorIs(t, s.Report(0), gwatchdog.ErrNotInitialized)
	require.ErrorIs(t, s.SetEnable(0, false), gwatchdog.ErrNotInitialized)
	_, err := s.Enabled(0)
	require.ErrorIs(t, err, gwatchdog.ErrNotInitialized)

	require.NoError(t, s.Init())
	require.True(t, s.IsInit())
	require.Equal(t, int64(1), f.Platform.Inits())

	// Initialized but not started.
	require.ErrorIs(t, s.HandlerTick(), gwatchdog.ErrNotStarted)
	require.False(t, s.Valid())
	require.Equal(t, uuid.Nil, s.Session())

	// Reports are accepted before start.
	require.NoError(t, s.Report(0))

	require.NoError(t, s.Start())
	require.Equal(t, int64(1), f.Platform.Arms())
	require.True(t, s.Valid())
	require.NotEqual(t, uuid.Nil, s.Session())
	require.NoError(t, s.HandlerTick())

	require.NoError(t, s.Deinit())
	require.False(t, s.IsInit())
	require.Equal(t, int64(1), f.Platform.Deinits())
	require.ErrorIs(t, s.HandlerTick(), gwatchdog.ErrNotInitialized)

	// Initializing again after deinit requires a fresh start.
	require.NoError(t, s.Init())
	require.ErrorIs(t, s.HandlerTick(), gwatchdog.ErrNotStarted)
}

func TestSupervisor_Init_twiceFailsWithoutReset(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 50, Enabled: true,
	})
	f.Config.Stats = true
	s := f.StartedSupervisor(t)

	f.Platform.SetTicks(10)
	require.NoError(t, s.Report(0))
	require.NoError(t, s.SetEnable(0, false))

	require.ErrorIs(t, s.Init(), gwatchdog.ErrAlreadyInitialized)

	// The platform was not initialized again.
	require.Equal(t, int64(1), f.Platform.Inits())

	// Neither the enable flag nor the statistics were reset.
	enabled, err := s.Enabled(0)
	require.NoError(t, err)
	require.False(t, enabled)

	d := s.Diagnostics()
	require.NotNil(t, d.Tasks[0].Stats)
	require.Equal(t, uint32(1), d.Tasks[0].Stats.Reports)

	// And supervision continues.
	require.NoError(t, s.HandlerTick())
	require.True(t, s.Valid())
}

func TestSupervisor_Init_configErrors(t *testing.T) {
	t.Parallel()

	t.Run("nil registry", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(gtest.NewLogger(t))
		f.Config.Registry = nil
		s := f.Supervisor()

		require.ErrorIs(t, s.Init(), gwatchdog.ErrConfigMissing)
		require.False(t, s.IsInit())
		require.Zero(t, f.Platform.Inits())
	})

	t.Run("registry without table", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(gtest.NewLogger(t))
		f.Config.Registry = gwatchdog.StaticRegistry(nil)
		s := f.Supervisor()

		require.ErrorIs(t, s.Init(), gwatchdog.ErrConfigMissing)
		require.False(t, s.IsInit())
	})

	t.Run("invalid entries", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(
			gtest.NewLogger(t),
			gwatchdog.TaskConfig{Name: "ok", Timeout: 10},
			gwatchdog.TaskConfig{Name: "", Timeout: 10},
			gwatchdog.TaskConfig{Name: "zero", Timeout: 0},
		)
		s := f.Supervisor()

		err := s.Init()
		require.ErrorIs(t, err, gwatchdog.ErrConfigInvalid)

		// Every bad entry is reported.
		require.ErrorContains(t, err, "task 1")
		require.ErrorContains(t, err, "task 2")
		require.NotContains(t, err.Error(), "task 0")

		require.False(t, s.IsInit())
		require.Zero(t, f.Platform.Inits())
	})
}

func TestSupervisor_platformFailures(t *testing.T) {
	t.Parallel()

	task := gwatchdog.TaskConfig{Name: "a", Timeout: 50, Enabled: true}

	t.Run("init", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(gtest.NewLogger(t), task)
		f.Platform.InitErr = gwatchdogtest.ErrInjected
		s := f.Supervisor()

		err := s.Init()
		require.ErrorIs(t, err, gwatchdog.ErrPlatformFailure)
		require.ErrorIs(t, err, gwatchdogtest.ErrInjected)

		var pe gwatchdog.PlatformError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, "init", pe.Op)

		require.False(t, s.IsInit())
	})

	t.Run("arm", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(gtest.NewLogger(t), task)
		f.Platform.ArmErr = gwatchdogtest.ErrInjected
		s := f.Supervisor()
		require.NoError(t, s.Init())

		require.ErrorIs(t, s.Start(), gwatchdog.ErrPlatformFailure)

		// Not started, so the handler refuses to run.
		require.ErrorIs(t, s.HandlerTick(), gwatchdog.ErrNotStarted)
		require.Zero(t, f.Platform.Kicks())
	})

	t.Run("deinit", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(gtest.NewLogger(t), task)
		f.Platform.DeinitErr = gwatchdogtest.ErrInjected
		s := f.Supervisor()
		require.NoError(t, s.Init())

		require.ErrorIs(t, s.Deinit(), gwatchdog.ErrPlatformFailure)
		require.True(t, s.IsInit())
	})

	t.Run("mutex", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(gtest.NewLogger(t), task)
		f.Platform.MutexErr = gwatchdogtest.ErrInjected
		s := f.StartedSupervisor(t)

		require.ErrorIs(t, s.Report(0), gwatchdog.ErrPlatformFailure)
		require.ErrorIs(t, s.SetEnable(0, false), gwatchdog.ErrPlatformFailure)

		// The failed SetEnable left the flag alone.
		enabled, err := s.Enabled(0)
		require.NoError(t, err)
		require.True(t, enabled)
	})
}

func TestSupervisor_unknownTask(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(
		gtest.NewLogger(t),
		gwatchdog.TaskConfig{Name: "a", Timeout: 50, Enabled: true},
		gwatchdog.TaskConfig{Name: "b", Timeout: 50, Enabled: true},
	)
	s := f.StartedSupervisor(t)

	err := s.Report(2)
	require.ErrorIs(t, err, gwatchdog.ErrInvalidArgument)
	require.Equal(t, gwatchdog.UnknownTaskError{ID: 2, NumTasks: 2}, err)

	require.ErrorIs(t, s.SetEnable(100, true), gwatchdog.ErrInvalidArgument)

	_, err = s.Enabled(2)
	require.ErrorIs(t, err, gwatchdog.ErrInvalidArgument)

	_, err = s.TaskName(2)
	require.ErrorIs(t, err, gwatchdog.ErrInvalidArgument)

	name, err := s.TaskName(1)
	require.NoError(t, err)
	require.Equal(t, "b", name)
	require.Equal(t, 2, s.NumTasks())
}

func TestSupervisor_enabledSeededFromRegistry(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(
		gtest.NewLogger(t),
		gwatchdog.TaskConfig{Name: "on", Timeout: 50, Enabled: true},
		gwatchdog.TaskConfig{Name: "off", Timeout: 50, Enabled: false},
	)
	s := f.Supervisor()
	require.NoError(t, s.Init())

	on, err := s.Enabled(0)
	require.NoError(t, err)
	require.True(t, on)

	off, err := s.Enabled(1)
	require.NoError(t, err)
	require.False(t, off)
}

func TestSupervisor_PreReset(t *testing.T) {
	t.Parallel()

	t.Run("default is a no-op", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(gtest.NewLogger(t))
		require.NotPanics(t, f.Supervisor().PreReset)
	})

	t.Run("configured callback", func(t *testing.T) {
		t.Parallel()

		f := gwatchdogtest.NewFixture(gtest.NewLogger(t))
		called := 0
		f.Config.PreReset = func() { called++ }

		f.Supervisor().PreReset()
		require.Equal(t, 1, called)
	})
}

func TestNewSupervisor_requiresPlatform(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		_ = gwatchdog.NewSupervisor(gtest.NewLogger(t), gwatchdog.Config{})
	})
}

func TestSupervisor_concurrentReports(t *testing.T) {
	t.Parallel()

	const nTasks = 8
	tasks := make([]gwatchdog.TaskConfig, nTasks)
	for i := range tasks {
		tasks[i] = gwatchdog.TaskConfig{Name: string(rune('a' + i)), Timeout: 1000, Enabled: true}
	}

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), tasks...)
	f.Config.Stats = true
	s := f.StartedSupervisor(t)

	const reportsPerTask = 200

	var wg sync.WaitGroup
	errs := make(chan error, nTasks)
	for i := range nTasks {
		wg.Add(1)
		go func(id gwatchdog.TaskID) {
			defer wg.Done()
			for range reportsPerTask {
				if err := s.Report(id); err != nil {
					errs <- err
					return
				}
			}
		}(gwatchdog.TaskID(i))
	}

	// The handler runs concurrently with the reporters.
	for tick := uint32(1); tick <= 500; tick++ {
		f.TickTo(t, s, tick)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.True(t, s.Valid())

	d := s.Diagnostics()
	for i := range nTasks {
		require.Equal(t, uint32(reportsPerTask), d.Tasks[i].Stats.Reports)
	}
	require.Len(t, d.Trace, gwatchdog.TraceCapacity)
}

func TestSupervisor_Diagnostics_withoutStats(t *testing.T) {
	t.Parallel()

	f := gwatchdogtest.NewFixture(gtest.NewLogger(t), gwatchdog.TaskConfig{
		Name: "a", Timeout: 50, Enabled: true,
	})
	s := f.Supervisor()

	require.Equal(t, gwatchdog.Diagnostics{}, s.Diagnostics())

	require.NoError(t, s.Init())
	require.NoError(t, s.Start())

	f.Platform.SetTicks(7)
	require.NoError(t, s.Report(0))

	d := s.Diagnostics()
	require.True(t, d.Valid)
	require.Nil(t, d.Violation)
	require.Nil(t, d.Trace)
	require.Equal(t, []gwatchdog.TaskDiagnostics{
		{Name: "a", Enabled: true, ReportedAt: 7},
	}, d.Tasks)
	require.Equal(t, s.Session(), d.Session)
}

func TestPlatformError_matching(t *testing.T) {
	t.Parallel()

	err := error(gwatchdog.PlatformError{Op: "arm", Err: gwatchdogtest.ErrInjected})
	require.True(t, errors.Is(err, gwatchdog.ErrPlatformFailure))
	require.True(t, errors.Is(err, gwatchdogtest.ErrInjected))
	require.False(t, errors.Is(err, gwatchdog.ErrInvalidArgument))
	require.Contains(t, err.Error(), "arm")
}
