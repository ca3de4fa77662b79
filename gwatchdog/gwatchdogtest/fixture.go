package gwatchdogtest

import (
	"log/slog"
	"testing"

	"github.com/gordian-engine/gwdt/gwatchdog"
)

// Fixture pairs a [gwatchdog.Supervisor] with the fake [Platform] driving it.
type Fixture struct {
	Log *slog.Logger

	Platform *Platform
	Config   gwatchdog.Config
}

// NewFixture returns a Fixture for the given tasks with the counter at tick 0.
// The Config may be modified before calling [*Fixture.Supervisor].
func NewFixture(log *slog.Logger, tasks ...gwatchdog.TaskConfig) *Fixture {
	p := NewPlatform(0)
	return &Fixture{
		Log: log,

		Platform: p,
		Config: gwatchdog.Config{
			Registry: gwatchdog.StaticRegistry(tasks),
			Platform: p,
		},
	}
}

// Supervisor returns a new supervisor built from f.Config.
func (f *Fixture) Supervisor() *gwatchdog.Supervisor {
	return gwatchdog.NewSupervisor(f.Log, f.Config)
}

// StartedSupervisor returns a new supervisor that has been
// initialized and started at the current tick,
// failing t if either step fails.
func (f *Fixture) StartedSupervisor(t testing.TB) *gwatchdog.Supervisor {
	t.Helper()

	s := f.Supervisor()
	if err := s.Init(); err != nil {
		t.Fatalf("failed to initialize supervisor: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start supervisor: %v", err)
	}
	return s
}

// TickTo advances the counter to tick and runs one handler tick,
// failing t if the handler returns an error.
func (f *Fixture) TickTo(t testing.TB, s *gwatchdog.Supervisor, tick uint32) {
	t.Helper()

	f.Platform.SetTicks(tick)
	if err := s.HandlerTick(); err != nil {
		t.Fatalf("handler tick at %d failed: %v", tick, err)
	}
}
