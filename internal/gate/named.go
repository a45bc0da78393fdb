//go:build linux || darwin || freebsd

package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"v.io/x/lib/vlog"
)

// Named is a gate backed by a FIFO in the file system, for a producer and
// a consumer in different processes. Each Open writes one byte, each Wait
// consumes one.
type Named struct {
	path    string
	f       *os.File
	creator bool
	once    sync.Once
	err     error
}

// CreateNamed makes a fresh FIFO in dir and opens it for the consumer.
// The creator removes the FIFO on Close.
func CreateNamed(dir string) (*Named, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "pipe-speed-gate-"+uuid.NewString())
	if err := unix.Mkfifo(path, 0600); err != nil {
		return nil, fmt.Errorf("create gate %s: %w", path, err)
	}
	// O_RDWR keeps the open from blocking until the producer attaches.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("open gate %s: %w", path, err)
	}
	vlog.VI(1).Infof("gate %s created", path)
	return &Named{path: path, f: f, creator: true}, nil
}

// AttachNamed opens an existing gate for the producer. Wait reports
// ErrClosed once the creator has closed its end.
func AttachNamed(path string) (*Named, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("attach gate %s: %w", path, err)
	}
	return &Named{path: path, f: f}, nil
}

// Path names the FIFO so a child process can attach to it.
func (g *Named) Path() string { return g.path }

// Open writes one pulse into the FIFO.
func (g *Named) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := g.bind(ctx, g.f.SetWriteDeadline)
	defer stop()
	if _, err := g.f.Write([]byte{1}); err != nil {
		return g.mapErr(ctx, err)
	}
	return nil
}

// Wait reads one pulse from the FIFO. It returns ErrClosed once the
// creator has closed its end.
func (g *Named) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := g.bind(ctx, g.f.SetReadDeadline)
	defer stop()
	var b [1]byte
	n, err := g.f.Read(b[:])
	if err == nil && n == 0 {
		err = io.EOF
	}
	if err != nil {
		return g.mapErr(ctx, err)
	}
	return nil
}

// bind makes the pending I/O return when ctx ends.
func (g *Named) bind(ctx context.Context, set func(time.Time) error) func() {
	if d, ok := ctx.Deadline(); ok {
		set(d)
	} else {
		set(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() { set(time.Unix(1, 0)) })
	return func() { stop() }
}

func (g *Named) mapErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, unix.EPIPE) {
		return ErrClosed
	}
	return err
}

// Close releases the descriptor and, on the creating side, removes the
// FIFO. It is safe to call more than once.
func (g *Named) Close() error {
	g.once.Do(func() {
		g.err = g.f.Close()
		if g.creator {
			if err := os.Remove(g.path); err != nil && g.err == nil {
				g.err = err
			}
			vlog.VI(1).Infof("gate %s removed", g.path)
		}
	})
	return g.err
}
