package gwsoftdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/gwdt/gwatchdog"
	"github.com/gordian-engine/gwdt/internal/gchan"
)

// DefaultTick is the tick duration used when [Config.Tick] is zero.
const DefaultTick = time.Millisecond

// Config is the configuration for a [Dog].
type Config struct {
	// How long the Dog may go without a kick once armed. Required.
	Expiry time.Duration

	// Duration of one tick as reported by [*Dog.Ticks].
	// Zero means [DefaultTick].
	Tick time.Duration

	// Longest wait in [*Dog.AcquireMutex].
	// Zero means one tenth of Expiry.
	MutexWait time.Duration

	// Called on the Dog's kernel goroutine immediately before
	// the Dog's context is canceled due to expiry.
	// Typically a closure over [*gwatchdog.Supervisor.PreReset].
	PreReset func()

	// Added to every value returned from [*Dog.Ticks].
	// Setting this close to [math.MaxUint32] exercises counter wraparound
	// shortly after startup.
	TickOffset uint32
}

func (c *Config) validate() error {
	var err error
	if c.Expiry <= 0 {
		err = errors.Join(err, fmt.Errorf("Expiry must be positive (got %s)", c.Expiry))
	}
	if c.Tick < 0 {
		err = errors.Join(err, fmt.Errorf("Tick must not be negative (got %s)", c.Tick))
	}
	if c.MutexWait < 0 {
		err = errors.Join(err, fmt.Errorf("MutexWait must not be negative (got %s)", c.MutexWait))
	}
	return err
}

// Dog is a software watchdog timer.
// It implements [gwatchdog.Platform].
type Dog struct {
	log *slog.Logger

	rootCtx context.Context
	cancel  context.CancelCauseFunc

	expiry   time.Duration
	tick     time.Duration
	offset   uint32
	preReset func()

	epoch time.Time

	mu *gwatchdog.BoundedMutex

	armRequests    chan chan error
	disarmRequests chan chan struct{}

	// Buffered so that Kick never blocks;
	// a kick arriving while one is pending is coalesced.
	kicks chan struct{}

	nKicks atomic.Uint64

	wg sync.WaitGroup
}

var _ gwatchdog.Platform = (*Dog)(nil)

// New returns a new Dog and a context derived from ctx.
//
// The returned context is canceled with an [ExpiredError] cause
// if the Dog is armed and then not kicked within cfg.Expiry.
// The Dog's goroutine runs until ctx is canceled.
//
// New panics if cfg is invalid.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Dog, context.Context) {
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("gwsoftdog.New: Config is invalid: %w", err))
	}

	tick := cfg.Tick
	if tick == 0 {
		tick = DefaultTick
	}

	mutexWait := cfg.MutexWait
	if mutexWait == 0 {
		mutexWait = cfg.Expiry / 10
	}

	dCtx, cancel := context.WithCancelCause(ctx)
	d := &Dog{
		log: log,

		rootCtx: ctx,
		cancel:  cancel,

		expiry:   cfg.Expiry,
		tick:     tick,
		offset:   cfg.TickOffset,
		preReset: cfg.PreReset,

		epoch: time.Now(),

		mu: gwatchdog.NewBoundedMutex(mutexWait),

		// Unbuffered since requests are synchronous.
		armRequests:    make(chan chan error),
		disarmRequests: make(chan chan struct{}),

		kicks: make(chan struct{}, 1),
	}

	d.wg.Add(1)
	go d.kernel(ctx)

	return d, dCtx
}

// Wait blocks until the Dog's goroutine completes.
// The goroutine is tied to the lifecycle of the context passed to [New],
// so expiry alone does not unblock Wait.
func (d *Dog) Wait() {
	d.wg.Wait()
}

// Init is a no-op; the Dog is ready as soon as it is created.
func (d *Dog) Init() error {
	return nil
}

// Deinit disarms the Dog.
// A disarmed Dog never expires until it is armed again.
func (d *Dog) Deinit() error {
	resp := make(chan struct{}, 1)
	if _, ok := gchan.ReqResp(
		d.rootCtx, d.log,
		d.disarmRequests, resp,
		resp,
		"disarming software watchdog",
	); !ok {
		return ErrStopped
	}
	return nil
}

// Ticks returns the number of whole ticks since the Dog was created,
// plus the configured offset, wrapping at 32 bits.
func (d *Dog) Ticks() uint32 {
	return uint32(time.Since(d.epoch)/d.tick) + d.offset
}

// TickDuration returns the duration of one tick.
func (d *Dog) TickDuration() time.Duration {
	return d.tick
}

// Arm starts, or restarts, the expiry countdown.
func (d *Dog) Arm() error {
	resp := make(chan error, 1)
	err, ok := gchan.ReqResp(
		d.rootCtx, d.log,
		d.armRequests, resp,
		resp,
		"arming software watchdog",
	)
	if !ok {
		return ErrStopped
	}
	return err
}

// Kick restarts the expiry countdown of an armed Dog.
// Kick never blocks, and it has no effect on a disarmed or expired Dog.
func (d *Dog) Kick() {
	d.nKicks.Add(1)

	select {
	case d.kicks <- struct{}{}:
	default:
		// Kick already pending.
	}
}

// Kicks returns the number of calls to [*Dog.Kick].
func (d *Dog) Kicks() uint64 {
	return d.nKicks.Load()
}

func (d *Dog) AcquireMutex() error {
	return d.mu.Acquire()
}

func (d *Dog) ReleaseMutex() {
	d.mu.Release()
}

func (d *Dog) kernel(rootCtx context.Context) {
	defer d.wg.Done()

	// Created stopped; armed sets it running.
	timer := time.NewTimer(d.expiry)
	timer.Stop()
	defer timer.Stop()

	var (
		armed    bool
		expired  bool
		lastKick time.Time
	)

	for {
		select {
		case <-rootCtx.Done():
			d.log.Info("Stopping due to root context cancellation", "cause", context.Cause(rootCtx))
			return

		case resp := <-d.armRequests:
			if expired {
				resp <- ErrAlreadyExpired
				continue
			}

			armed = true
			lastKick = time.Now()
			timer.Reset(d.expiry)

			d.log.Debug("Software watchdog armed", "expiry", d.expiry)
			resp <- nil

		case resp := <-d.disarmRequests:
			if armed {
				armed = false
				timer.Stop()
				d.log.Debug("Software watchdog disarmed")
			}
			close(resp)

		case <-d.kicks:
			if !armed {
				continue
			}

			lastKick = time.Now()
			timer.Reset(d.expiry)

		case <-timer.C:
			armed = false
			expired = true

			err := ExpiredError{
				Expiry:    d.expiry,
				SinceKick: time.Since(lastKick),
			}
			d.log.Error("Software watchdog expired; forcing reset", "err", err)

			if d.preReset != nil {
				d.preReset()
			}

			// The loop keeps serving requests until the root context is canceled,
			// so that later calls to Arm and Deinit do not block.
			d.cancel(err)
		}
	}
}
