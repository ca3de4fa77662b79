package glog

import (
	"fmt"
	"log/slog"
	"time"
)

// Ticks wraps a tick count so that it also renders the equivalent duration,
// given the duration of a single tick.
type Ticks struct {
	N   uint32
	Per time.Duration
}

func (v Ticks) LogValue() slog.Value {
	if v.Per <= 0 {
		return slog.Uint64Value(uint64(v.N))
	}
	return slog.StringValue(fmt.Sprintf("%d (%s)", v.N, time.Duration(v.N)*v.Per))
}
