package wire

import (
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
)

// Clock reads the wall clock. Both peers must use the same time base, so
// the monotonic reading of time.Now cannot be used across processes.
type Clock func() (Timestamp, error)

// SystemClock is CLOCK_REALTIME where the platform exposes it and
// time.Now elsewhere.
var SystemClock Clock = realtime

// Now reads c and wraps a failure as a ClockError.
func (c Clock) Now() (Timestamp, error) {
	ts, err := c()
	if err != nil {
		return ts, &common.ClockError{Err: err}
	}
	return ts, nil
}

func wallClock() (Timestamp, error) {
	return FromTime(time.Now()), nil
}
