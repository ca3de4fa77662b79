package gtest

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TimeFactor is a multiplier that can be controlled by the
// GWDT_TEST_TIME_FACTOR environment variable
// to increase test-related timeouts.
//
// Software watchdog tests depend on real timers,
// and a contended CI machine may need more slack than a workstation.
// Rather than changing tests to use longer durations,
// the operator can set e.g. GWDT_TEST_TIME_FACTOR=3
// to triple them.
var TimeFactor ScaledDuration = 1

func init() {
	f := os.Getenv("GWDT_TEST_TIME_FACTOR")
	if f == "" {
		return
	}

	n, err := strconv.Atoi(f)
	if err != nil {
		panic(fmt.Errorf(
			"failed to parse GWDT_TEST_TIME_FACTOR (%q) into an integer: %w",
			f, err,
		))
	}

	if n <= 0 {
		panic(fmt.Errorf("GWDT_TEST_TIME_FACTOR must be positive; got %d", n))
	}

	TimeFactor = ScaledDuration(n)
}

type ScaledDuration time.Duration

// ScaleMs returns ms in milliseconds, multiplied by [TimeFactor].
//
// Helpers in this package accept a ScaledDuration
// so that callers do not pass literal timeout values,
// which would be flaky on slower machines.
func ScaleMs(ms int64) ScaledDuration {
	return TimeFactor * ScaledDuration(ms) * ScaledDuration(time.Millisecond)
}

// Sleep calls [time.Sleep] with the given scaled duration.
func Sleep(dur ScaledDuration) {
	time.Sleep(time.Duration(dur))
}
