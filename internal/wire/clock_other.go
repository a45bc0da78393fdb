//go:build !(linux || darwin || freebsd)

package wire

func realtime() (Timestamp, error) {
	return wallClock()
}
