// Package sweep runs a producer and a consumer against one OS pipe and
// one handshake gate, either as two goroutines or as two processes.
package sweep

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/consumer"
	"github.com/DmitryKuk/pipe-speed/internal/gate"
	"github.com/DmitryKuk/pipe-speed/internal/producer"
	"github.com/DmitryKuk/pipe-speed/internal/sizes"
	"github.com/DmitryKuk/pipe-speed/internal/wire"
	"v.io/x/lib/vlog"
)

// Driver owns the lifecycle of one sweep.
type Driver struct {
	Config  common.TestConfig
	Sink    consumer.Sink
	OnStart func(common.SweepInfo) // optional, called once both sides are running
	Clock   wire.Clock // optional, defaults to wire.SystemClock
}

// Run performs the sweep with the producer in a goroutine. Records
// emitted before a failure have already reached the sink.
func (d *Driver) Run(ctx context.Context, gen sizes.Generator) (common.Totals, error) {
	r, w, err := d.pipe()
	if err != nil {
		return common.Totals{}, err
	}
	g := gate.NewChan()
	defer g.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prod := producer.New(w, g, producer.Options{Timeout: d.Config.Timeout, Clock: d.Clock})
	perrc := make(chan error, 1)
	go func() { perrc <- prod.Run(ctx, gen) }()

	d.started(common.SweepInfo{
		Mode:         common.ModeGoroutine,
		PipeCapacity: pipeCapacity(w),
		ConsumerPID:  os.Getpid(),
		ProducerPID:  os.Getpid(),
	})

	cons := consumer.New(r, g, d.Sink, consumer.Options{Timeout: d.Config.Timeout, Clock: d.Clock})
	totals, cerr := cons.Run(ctx)
	if cerr == nil {
		// the producer closed the pipe, so it has returned or is returning
		return totals, pick(<-perrc, nil)
	}
	// release a producer stuck on the gate or on the pipe
	cancel()
	g.Close()
	select {
	case perr := <-perrc:
		return totals, pick(perr, cerr)
	case <-time.After(stopGrace):
		// stuck in the generator, e.g. reading sizes from a terminal
		vlog.Errorf("producer did not stop within %v of the consumer failing", stopGrace)
		w.Close()
		return totals, cerr
	}
}

// stopGrace bounds the wait for a producer once the consumer has failed.
var stopGrace = 2 * time.Second

func (d *Driver) pipe() (*os.File, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, common.Transport("create pipe", err)
	}
	if d.Config.PipeSize > 0 {
		if err := setPipeCapacity(w, d.Config.PipeSize); err != nil {
			r.Close()
			w.Close()
			return nil, nil, &common.ConfigError{Msg: "pipe size", Err: err}
		}
	}
	return r, w, nil
}

func (d *Driver) started(info common.SweepInfo) {
	vlog.Infof("sweep started: mode %s, pipe capacity %d, consumer pid %d, producer pid %d",
		info.Mode, info.PipeCapacity, info.ConsumerPID, info.ProducerPID)
	if d.OnStart != nil {
		d.OnStart(info)
	}
}

// pick chooses the error that explains the sweep's end. A producer error
// caused by the consumer going away is only an echo of the consumer's.
func pick(perr, cerr error) error {
	switch {
	case perr != nil && (cerr == nil || !consumerGone(perr)):
		return perr
	case cerr != nil:
		return cerr
	}
	return nil
}

func consumerGone(err error) bool {
	return peerClosed(err) ||
		errors.Is(err, common.ErrPeerGone) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, context.Canceled)
}

// peerClosed reports a producer failure that only says the consumer
// closed its end of the pipe or of the gate.
func peerClosed(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, gate.ErrClosed)
}
