package gwatchdog

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gordian-engine/gwdt/gassert"
	"github.com/gordian-engine/gwdt/internal/glog"
)

// DefaultKickPeriod is the kick period used when [Config.KickPeriod] is zero.
const DefaultKickPeriod uint32 = 10

// Config is the configuration for a [Supervisor].
type Config struct {
	// Source of the task table, read once during Init.
	// A nil Registry causes Init to fail with [ErrConfigMissing].
	Registry Registry

	// Platform primitives. Required.
	Platform Platform

	// Minimum ticks between hardware watchdog kicks.
	// This must be comfortably shorter than the hardware watchdog's own expiry window;
	// the supervisor has no way to check that.
	// Zero means [DefaultKickPeriod].
	KickPeriod uint32

	// Whether to collect report statistics and the report trace.
	// When false, a [NopRecorder] is used.
	Stats bool

	// Optional.
	Metrics Metrics

	// Called by the platform immediately before a forced reset.
	// Optional; a nil PreReset is a no-op.
	PreReset func()

	AssertEnv gassert.Env
}

// Supervisor tracks the liveness of a fixed set of tasks
// and kicks the hardware watchdog only while all enabled tasks are on time.
//
// A Supervisor must be initialized with [*Supervisor.Init]
// and then started with [*Supervisor.Start]
// before [*Supervisor.HandlerTick] may be called.
//
// Report, SetEnable, and Enabled are safe to call from any goroutine.
// HandlerTick must only be called from one goroutine at a time.
type Supervisor struct {
	log *slog.Logger

	reg      Registry
	platform Platform
	rec      Recorder
	metrics  Metrics
	preReset func()

	assertEnv gassert.Env

	kickPeriod uint32

	// Serializes Init, Deinit, and Start.
	lifeMu sync.Mutex

	initialized atomic.Bool
	started     atomic.Bool
	valid       atomic.Bool

	lastKick atomic.Uint32

	// Both set during Init, before initialized is set.
	cfgs  []TaskConfig
	tasks []taskRecord

	violation atomic.Pointer[MissedDeadlineError]
	session   atomic.Pointer[uuid.UUID]
}

// NewSupervisor returns a new, uninitialized Supervisor.
//
// NewSupervisor panics if cfg.Platform is nil.
func NewSupervisor(log *slog.Logger, cfg Config) *Supervisor {
	if cfg.Platform == nil {
		panic(errors.New("BUG: gwatchdog.Config.Platform must not be nil"))
	}

	s := &Supervisor{
		log: log,

		reg:      cfg.Registry,
		platform: cfg.Platform,
		preReset: cfg.PreReset,

		assertEnv: cfg.AssertEnv,

		kickPeriod: cfg.KickPeriod,
	}

	if s.kickPeriod == 0 {
		s.kickPeriod = DefaultKickPeriod
	}

	if cfg.Stats {
		s.rec = NewStatsRecorder()
	} else {
		s.rec = NopRecorder{}
	}

	if cfg.Metrics != nil {
		s.metrics = cfg.Metrics
	} else {
		s.metrics = nopMetrics{}
	}

	return s
}

// Init reads the task registry and initializes the platform.
//
// Init may only succeed once; a second call without an intervening
// [*Supervisor.Deinit] returns [ErrAlreadyInitialized] and leaves all state untouched.
func (s *Supervisor) Init() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.initialized.Load() {
		s.log.Warn("Init called on already initialized supervisor")
		return ErrAlreadyInitialized
	}

	var cfgs []TaskConfig
	if s.reg != nil {
		cfgs = s.reg.TaskConfigs()
	}
	if cfgs == nil {
		s.log.Error("Failed to initialize", "err", ErrConfigMissing)
		return ErrConfigMissing
	}

	if err := validateTaskConfigs(cfgs); err != nil {
		s.log.Error("Failed to initialize", "err", err)
		return err
	}

	if err := s.platform.Init(); err != nil {
		err = PlatformError{Op: "init", Err: err}
		s.log.Error("Failed to initialize", "err", err)
		return err
	}

	s.cfgs = cfgs
	s.tasks = make([]taskRecord, len(cfgs))
	for i, c := range cfgs {
		s.tasks[i].store(taskState{Enabled: c.Enabled})
	}

	s.rec.Reset(cfgs)

	s.started.Store(false)
	s.initialized.Store(true)

	s.log.Info("Supervisor initialized", "n_tasks", len(cfgs), "kick_period", s.kickPeriod)
	return nil
}

// Deinit releases the platform and returns s to the uninitialized state.
func (s *Supervisor) Deinit() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if !s.initialized.Load() {
		return ErrNotInitialized
	}

	if err := s.platform.Deinit(); err != nil {
		err = PlatformError{Op: "deinit", Err: err}
		s.log.Error("Failed to deinitialize", "err", err)
		return err
	}

	s.started.Store(false)
	s.initialized.Store(false)

	s.log.Info("Supervisor deinitialized")
	return nil
}

// IsInit reports whether s has been successfully initialized.
func (s *Supervisor) IsInit() bool {
	return s.initialized.Load()
}

// Start begins supervision.
//
// Every task's report timestamp is set to the current tick,
// the validity flag is set, and the hardware watchdog is armed.
// There is no grace period: every enabled task must report
// within its timeout of the call to Start.
//
// Start is the only way to clear a missed deadline.
func (s *Supervisor) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if !s.initialized.Load() {
		return ErrNotInitialized
	}

	now := s.platform.Ticks()

	s.lastKick.Store(now)
	for i := range s.tasks {
		st := s.tasks[i].load()
		st.ReportedAt = now
		s.tasks[i].store(st)
	}

	s.violation.Store(nil)
	s.valid.Store(true)
	s.metrics.ValidityChanged(true)

	session := uuid.New()
	s.session.Store(&session)

	if err := s.platform.Arm(); err != nil {
		err = PlatformError{Op: "arm", Err: err}
		s.log.Error("Failed to start", "err", err)
		return err
	}

	s.started.Store(true)

	s.log.Info("Supervisor started", "session", session, "tick", now)
	return nil
}

// Report records that the task id is alive.
//
// Report cannot undo a missed deadline that the handler has already observed.
func (s *Supervisor) Report(id TaskID) error {
	if !s.initialized.Load() {
		return ErrNotInitialized
	}

	if err := s.checkTaskID(id); err != nil {
		return err
	}

	if err := s.platform.AcquireMutex(); err != nil {
		return PlatformError{Op: "acquire mutex", Err: err}
	}

	// Read the tick inside the critical section,
	// so that concurrent reports never store timestamps out of order.
	now := s.platform.Ticks()

	st := s.tasks[id].load()
	interval := now - st.ReportedAt

	s.rec.RecordReport(id, now)

	st.ReportedAt = now
	s.tasks[id].store(st)

	s.platform.ReleaseMutex()

	s.metrics.Reported(s.cfgs[id].Name, interval)
	return nil
}

// SetEnable enables or disables supervision of the task id.
//
// In either case the task's report timestamp is reset to the current tick,
// so a re-enabled task gets a full timeout window before it can be judged late.
func (s *Supervisor) SetEnable(id TaskID, enabled bool) error {
	if !s.initialized.Load() {
		return ErrNotInitialized
	}

	if err := s.checkTaskID(id); err != nil {
		return err
	}

	if err := s.platform.AcquireMutex(); err != nil {
		return PlatformError{Op: "acquire mutex", Err: err}
	}

	now := s.platform.Ticks()
	s.tasks[id].store(taskState{ReportedAt: now, Enabled: enabled})

	s.platform.ReleaseMutex()

	glog.Task(s.log, uint16(id), s.cfgs[id].Name).Debug("Task supervision changed", "enabled", enabled, "tick", now)
	return nil
}

// Enabled reports whether supervision of the task id is currently enabled.
func (s *Supervisor) Enabled(id TaskID) (bool, error) {
	if !s.initialized.Load() {
		return false, ErrNotInitialized
	}

	if err := s.checkTaskID(id); err != nil {
		return false, err
	}

	return s.tasks[id].load().Enabled, nil
}

// NumTasks returns the number of tasks in the registry,
// or zero if s is not initialized.
func (s *Supervisor) NumTasks() int {
	if !s.initialized.Load() {
		return 0
	}
	return len(s.cfgs)
}

// TaskName returns the configured name of the task id.
func (s *Supervisor) TaskName(id TaskID) (string, error) {
	if !s.initialized.Load() {
		return "", ErrNotInitialized
	}

	if err := s.checkTaskID(id); err != nil {
		return "", err
	}

	return s.cfgs[id].Name, nil
}

// PreReset runs the configured pre-reset callback, if any.
// Platforms call PreReset immediately before forcing a reset.
func (s *Supervisor) PreReset() {
	if s.preReset != nil {
		s.preReset()
	}
}

func (s *Supervisor) checkTaskID(id TaskID) error {
	if int(id) < len(s.cfgs) {
		return nil
	}

	invariantKnownTask(s.assertEnv, id, len(s.cfgs))

	return UnknownTaskError{ID: id, NumTasks: len(s.cfgs)}
}

