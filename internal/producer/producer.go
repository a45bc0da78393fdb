package producer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/gate"
	"github.com/DmitryKuk/pipe-speed/internal/sizes"
	"github.com/DmitryKuk/pipe-speed/internal/wire"
	"v.io/x/lib/vlog"
)

// Options tune a Producer.
type Options struct {
	Timeout time.Duration // per gate wait and per write, 0 waits forever
	Clock   wire.Clock    // defaults to wire.SystemClock
}

// Producer sends the framed transfers of a sweep.
type Producer struct {
	w       io.WriteCloser
	fw      *wire.Writer
	gate    gate.Gate
	clock   wire.Clock
	timeout time.Duration
	sent    uint64
}

// New creates a producer writing to w and waiting on g before every
// payload. w is closed when Run returns.
func New(w io.WriteCloser, g gate.Gate, opts Options) *Producer {
	clock := opts.Clock
	if clock == nil {
		clock = wire.SystemClock
	}
	return &Producer{
		w:       w,
		fw:      wire.NewWriter(w, opts.Timeout),
		gate:    g,
		clock:   clock,
		timeout: opts.Timeout,
	}
}

// Run sends one transfer per generator entry. Closing the writer on
// return is the only end-of-sweep signal the consumer sees.
func (p *Producer) Run(ctx context.Context, gen sizes.Generator) (err error) {
	defer func() {
		if cerr := p.w.Close(); cerr != nil && err == nil {
			err = common.Transport("close", cerr)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := gen.Next()
		if err == io.EOF {
			vlog.VI(1).Infof("producer: sweep exhausted after %d transfers", p.sent)
			return nil
		}
		if err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return &common.ConfigError{Msg: fmt.Sprintf("transfer %v", t), Err: err}
		}
		if err := p.transfer(ctx, t); err != nil {
			return fmt.Errorf("transfer %d (%v): %w", p.sent, t, err)
		}
		p.sent++
	}
}

// Sent returns the number of completed transfers.
func (p *Producer) Sent() uint64 { return p.sent }

func (p *Producer) transfer(ctx context.Context, t common.Transfer) error {
	if err := p.fw.WriteHeader(t); err != nil {
		return err
	}

	// the clock starts only once the consumer is reading
	if err := p.wait(ctx); err != nil {
		return common.Transport("wait gate", err)
	}

	sendTime, err := p.clock.Now()
	if err != nil {
		return err
	}
	if err := p.fw.WritePayload(t); err != nil {
		return err
	}
	if err := p.fw.WriteTimestamp(sendTime); err != nil {
		return err
	}
	vlog.VI(2).Infof("producer: sent %v", t)
	return nil
}

func (p *Producer) wait(ctx context.Context) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.gate.Wait(ctx)
}
