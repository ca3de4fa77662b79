package gwsoftdog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStopped is returned by [*Dog.Arm] and [*Dog.Deinit]
// when the Dog's root context has already been canceled.
var ErrStopped = errors.New("software watchdog stopped")

// ErrAlreadyExpired is returned by [*Dog.Arm] after the Dog has expired.
// An expired Dog cannot be rearmed; create a new one instead.
var ErrAlreadyExpired = errors.New("software watchdog already expired")

// IsReset reports whether ctx was canceled by an expiring [Dog].
func IsReset(ctx context.Context) bool {
	e := context.Cause(ctx)
	if e == nil {
		return false
	}

	var ee ExpiredError
	return errors.As(e, &ee)
}

// ExpiredError is the cancellation cause of a [Dog]'s context
// when the Dog was not kicked within its expiry window.
type ExpiredError struct {
	Expiry time.Duration

	// Time since the most recent kick, or since arming if there was no kick.
	SinceKick time.Duration
}

func (e ExpiredError) Error() string {
	return fmt.Sprintf(
		"software watchdog expired: no kick for %s (expiry %s)",
		e.SinceKick, e.Expiry,
	)
}
