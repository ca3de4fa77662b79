package gwatchdog

import (
	"errors"
	"time"
)

// Platform is the set of primitives the [Supervisor] consumes
// from the underlying system.
//
// Ticks and Kick are called from the handler and must never block.
// AcquireMutex may wait for a bounded duration,
// but it must return an error rather than waiting indefinitely.
type Platform interface {
	// Init prepares the timer, mutex, and hardware watchdog.
	Init() error

	// Deinit releases any resources acquired in Init.
	Deinit() error

	// Ticks returns the current value of a monotonic counter.
	// The counter is allowed to wrap.
	Ticks() uint32

	// Arm starts the hardware watchdog countdown.
	Arm() error

	// Kick restarts the hardware watchdog countdown.
	Kick()

	AcquireMutex() error
	ReleaseMutex()
}

// ErrMutexTimeout is returned by [*BoundedMutex.Acquire]
// when the mutex could not be acquired within its wait limit.
var ErrMutexTimeout = errors.New("timed out acquiring mutex")

// BoundedMutex is a mutex whose Acquire method gives up after a fixed wait.
// It is a convenient building block for [Platform] implementations.
//
// The zero value is not usable; use [NewBoundedMutex].
type BoundedMutex struct {
	sem chan struct{}

	wait time.Duration
}

// NewBoundedMutex returns a BoundedMutex whose Acquire waits at most wait.
// A non-positive wait makes Acquire fail immediately if the mutex is held.
func NewBoundedMutex(wait time.Duration) *BoundedMutex {
	return &BoundedMutex{
		sem:  make(chan struct{}, 1),
		wait: wait,
	}
}

// Acquire takes the mutex, or returns [ErrMutexTimeout].
func (m *BoundedMutex) Acquire() error {
	// Fast path, avoids allocating a timer in the uncontended case.
	select {
	case m.sem <- struct{}{}:
		return nil
	default:
	}

	if m.wait <= 0 {
		return ErrMutexTimeout
	}

	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	select {
	case m.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrMutexTimeout
	}
}

// Release releases the mutex.
// Releasing an unheld mutex panics.
func (m *BoundedMutex) Release() {
	select {
	case <-m.sem:
	default:
		panic(errors.New("BUG: BoundedMutex released while not held"))
	}
}
