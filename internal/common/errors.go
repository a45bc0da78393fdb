package common

import (
	"errors"
	"fmt"
)

// Exit statuses. Zero is a sweep that ended at a clean end-of-stream.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitTransport = 3
	ExitClock     = 4

	// ExitPeerGone is used by a producer child whose consumer stopped
	// first. The parent reports the consumer's own error instead.
	ExitPeerGone = 5
)

// ErrPeerGone marks a failure that only reports the other side of the
// pipe having stopped first.
var ErrPeerGone = errors.New("peer went away")

// ConfigError reports invalid sweep or run parameters. No transfer is
// attempted once one is returned.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return "configuration: " + e.Msg + ": " + e.Err.Error()
	}
	return "configuration: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Configf builds a ConfigError.
func Configf(format string, a ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, a...)}
}

// TransportError reports a broken transfer: a hard read/write failure, a
// stalled peer, or the channel closing mid-header or mid-payload.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "transport: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError unless it already carries a kind.
func Transport(op string, err error) error {
	if err == nil || IsKind(err) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// ClockError reports a failure of the timestamp source.
type ClockError struct {
	Err error
}

func (e *ClockError) Error() string { return "clock: " + e.Err.Error() }

func (e *ClockError) Unwrap() error { return e.Err }

// IsKind reports whether err already belongs to the taxonomy.
func IsKind(err error) bool {
	var (
		ce *ConfigError
		te *TransportError
		ke *ClockError
	)
	return errors.As(err, &ce) || errors.As(err, &te) || errors.As(err, &ke)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	var (
		ce *ConfigError
		te *TransportError
		ke *ClockError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPeerGone):
		return ExitPeerGone
	case errors.As(err, &ce):
		return ExitConfig
	case errors.As(err, &te):
		return ExitTransport
	case errors.As(err, &ke):
		return ExitClock
	default:
		return ExitFailure
	}
}
