package consumer

import (
	"context"
	"io"
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/gate"
	"github.com/DmitryKuk/pipe-speed/internal/wire"
	"v.io/x/lib/vlog"
)

// Sink receives every Test Record as soon as it is complete.
type Sink interface {
	Record(rec common.TestRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(common.TestRecord) error

// Record calls f(rec).
func (f SinkFunc) Record(rec common.TestRecord) error { return f(rec) }

// Multi forwards each record to every sink in order and stops at the
// first failure.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(rec common.TestRecord) error {
		for _, s := range sinks {
			if err := s.Record(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Options tune a Consumer.
type Options struct {
	Timeout time.Duration // per gate open and per read, 0 waits forever
	Clock   wire.Clock    // defaults to wire.SystemClock
}

// Consumer receives framed transfers, times them and keeps the running
// totals.
type Consumer struct {
	r       io.ReadCloser
	fr      *wire.Reader
	gate    gate.Gate
	sink    Sink
	clock   wire.Clock
	timeout time.Duration
	totals  common.Totals
}

// New creates a consumer reading from r. r is closed when Run returns, or
// as soon as its context ends, so a producer blocked on a full pipe fails
// instead of hanging.
func New(r io.ReadCloser, g gate.Gate, sink Sink, opts Options) *Consumer {
	clock := opts.Clock
	if clock == nil {
		clock = wire.SystemClock
	}
	return &Consumer{
		r:       r,
		fr:      wire.NewReader(r, opts.Timeout),
		gate:    g,
		sink:    sink,
		clock:   clock,
		timeout: opts.Timeout,
	}
}

// Run receives transfers until the stream ends at a transfer boundary,
// which is a successful sweep, or until a hard error. The totals cover
// every record emitted before the return, in both cases.
func (c *Consumer) Run(ctx context.Context) (common.Totals, error) {
	defer c.r.Close()
	// closing r is the only way to interrupt a pending read
	stop := context.AfterFunc(ctx, func() { c.r.Close() })
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return c.totals, err
		}
		t, err := c.fr.ReadHeader()
		if err == io.EOF {
			vlog.VI(1).Infof("consumer: end of stream after %d transfers", c.totals.Count)
			return c.totals, nil
		}
		if err != nil {
			return c.totals, cause(ctx, err)
		}
		rec, err := c.receive(ctx, t)
		if err != nil {
			return c.totals, cause(ctx, err)
		}
		if err := c.sink.Record(rec); err != nil {
			return c.totals, err
		}
	}
}

// cause prefers the cancellation over the read error it provoked.
func cause(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

// Totals returns the running sums so far.
func (c *Consumer) Totals() common.Totals { return c.totals }

func (c *Consumer) receive(ctx context.Context, t common.Transfer) (common.TestRecord, error) {
	if err := c.open(ctx); err != nil {
		return common.TestRecord{}, common.Transport("open gate", err)
	}
	if err := c.fr.ReadPayload(t); err != nil {
		return common.TestRecord{}, err
	}
	// receive time is taken before the send time comes off the wire
	recvTime, err := c.clock.Now()
	if err != nil {
		return common.TestRecord{}, err
	}
	sendTime, err := c.fr.ReadTimestamp()
	if err != nil {
		return common.TestRecord{}, err
	}
	elapsed, err := wire.Elapsed(sendTime, recvTime)
	if err != nil {
		return common.TestRecord{}, err
	}
	rec := c.totals.Add(t, elapsed)
	vlog.VI(2).Infof("consumer: test %d %v in %v", rec.TestID, t, elapsed)
	return rec, nil
}

func (c *Consumer) open(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.gate.Open(ctx)
}
