package gwdebug

import (
	"log/slog"

	"github.com/gordian-engine/gwdt/gwatchdog"
)

// LoggingPlatform logs calls to the [gwatchdog.Platform] interface
// and delegates to the configured Platform.
//
// Ticks is not logged, as the handler calls it several times per tick.
// Kicks and mutex operations are logged at debug level.
type LoggingPlatform struct {
	Log *slog.Logger

	Platform gwatchdog.Platform
}

var _ gwatchdog.Platform = LoggingPlatform{}

func (p LoggingPlatform) Init() error {
	p.Log.Info("Initializing platform")

	if err := p.Platform.Init(); err != nil {
		p.Log.Info("Platform initialization failed", "err", err)
		return err
	}

	p.Log.Info("Initialized platform")
	return nil
}

func (p LoggingPlatform) Deinit() error {
	p.Log.Info("Deinitializing platform")

	if err := p.Platform.Deinit(); err != nil {
		p.Log.Info("Platform deinitialization failed", "err", err)
		return err
	}

	p.Log.Info("Deinitialized platform")
	return nil
}

func (p LoggingPlatform) Ticks() uint32 {
	return p.Platform.Ticks()
}

func (p LoggingPlatform) Arm() error {
	now := p.Platform.Ticks()
	p.Log.Info("Arming hardware watchdog", "tick", now)

	if err := p.Platform.Arm(); err != nil {
		p.Log.Info("Arming failed", "err", err)
		return err
	}

	p.Log.Info("Armed hardware watchdog")
	return nil
}

func (p LoggingPlatform) Kick() {
	p.Log.Debug("Kicking hardware watchdog", "tick", p.Platform.Ticks())
	p.Platform.Kick()
}

func (p LoggingPlatform) AcquireMutex() error {
	if err := p.Platform.AcquireMutex(); err != nil {
		p.Log.Warn("Failed to acquire mutex", "err", err)
		return err
	}

	p.Log.Debug("Acquired mutex")
	return nil
}

func (p LoggingPlatform) ReleaseMutex() {
	p.Platform.ReleaseMutex()
	p.Log.Debug("Released mutex")
}
