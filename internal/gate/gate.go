// Package gate implements the handshake that holds the producer's timer
// until the consumer is ready to read a transfer's payload.
//
// A gate starts closed. Open releases exactly one pending or future Wait.
// Close unblocks every Wait with ErrClosed, so a producer never outlives a
// consumer that gave up.
package gate

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Wait and Open after the gate was closed or its
// peer went away.
var ErrClosed = errors.New("gate closed")

// Gate is the one-shot release signal shared by a producer and a consumer.
type Gate interface {
	// Open releases one Wait. Called by the consumer once per transfer.
	Open(ctx context.Context) error
	// Wait blocks until the next Open. Called by the producer.
	Wait(ctx context.Context) error
	Close() error
}

// Chan is an in-process gate for a producer and a consumer that share
// memory.
type Chan struct {
	pulse  chan struct{}
	closed chan struct{}
	once   sync.Once
}

// NewChan returns a closed in-process gate.
func NewChan() *Chan {
	return &Chan{
		pulse:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Open hands one pulse to the producer. It blocks while an earlier pulse
// is still unclaimed.
func (g *Chan) Open(ctx context.Context) error {
	select {
	case <-g.closed:
		return ErrClosed
	default:
	}
	select {
	case g.pulse <- struct{}{}:
		return nil
	case <-g.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait claims the next pulse.
func (g *Chan) Wait(ctx context.Context) error {
	select {
	case <-g.pulse:
		return nil
	case <-g.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases every waiter with ErrClosed. Later calls do nothing.
func (g *Chan) Close() error {
	g.once.Do(func() { close(g.closed) })
	return nil
}
