//go:build linux || darwin || freebsd

package wire

import "golang.org/x/sys/unix"

func realtime() (Timestamp, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Sec: int64(ts.Sec), Nsec: uint32(ts.Nsec)}, nil
}
