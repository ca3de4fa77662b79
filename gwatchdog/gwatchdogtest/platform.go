// Package gwatchdogtest contains fixtures for testing code
// built on the gwatchdog package.
package gwatchdogtest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/gwdt/gwatchdog"
)

// Platform is a [gwatchdog.Platform] with a manually advanced tick counter.
// It counts calls to each primitive,
// and each primitive that can fail returns the corresponding Err field when set.
//
// Set the Err fields before handing the Platform to a Supervisor.
type Platform struct {
	ticks atomic.Uint32

	InitErr, DeinitErr, ArmErr, MutexErr error

	inits, deinits, arms, kicks atomic.Int64

	// Tick at which each kick occurred.
	kickMu    sync.Mutex
	kickTicks []uint32

	mu *gwatchdog.BoundedMutex
}

var _ gwatchdog.Platform = (*Platform)(nil)

// NewPlatform returns a Platform whose counter starts at tick.
func NewPlatform(tick uint32) *Platform {
	p := &Platform{
		// Long enough that concurrent reporters in tests never time out.
		mu: gwatchdog.NewBoundedMutex(time.Second),
	}
	p.ticks.Store(tick)
	return p
}

// SetTicks sets the counter to tick.
func (p *Platform) SetTicks(tick uint32) {
	p.ticks.Store(tick)
}

// Advance adds n to the counter, wrapping as the real counter would.
func (p *Platform) Advance(n uint32) uint32 {
	return p.ticks.Add(n)
}

func (p *Platform) Ticks() uint32 {
	return p.ticks.Load()
}

func (p *Platform) Init() error {
	p.inits.Add(1)
	return p.InitErr
}

func (p *Platform) Deinit() error {
	p.deinits.Add(1)
	return p.DeinitErr
}

func (p *Platform) Arm() error {
	p.arms.Add(1)
	return p.ArmErr
}

func (p *Platform) Kick() {
	p.kicks.Add(1)

	p.kickMu.Lock()
	defer p.kickMu.Unlock()
	p.kickTicks = append(p.kickTicks, p.ticks.Load())
}

// AcquireMutex fails with MutexErr if set,
// and otherwise waits up to one second for the mutex.
func (p *Platform) AcquireMutex() error {
	if p.MutexErr != nil {
		return p.MutexErr
	}
	return p.mu.Acquire()
}

func (p *Platform) ReleaseMutex() {
	p.mu.Release()
}

func (p *Platform) Inits() int64   { return p.inits.Load() }
func (p *Platform) Deinits() int64 { return p.deinits.Load() }
func (p *Platform) Arms() int64    { return p.arms.Load() }
func (p *Platform) Kicks() int64   { return p.kicks.Load() }

// KickTicks returns the tick of every kick so far, in order.
func (p *Platform) KickTicks() []uint32 {
	p.kickMu.Lock()
	defer p.kickMu.Unlock()
	return append([]uint32(nil), p.kickTicks...)
}

// ErrInjected is a convenience value for the Err fields.
var ErrInjected = errors.New("injected platform failure")
