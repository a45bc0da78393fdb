package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/consumer"
	"github.com/DmitryKuk/pipe-speed/internal/gate"
	"github.com/DmitryKuk/pipe-speed/internal/producer"
	"github.com/DmitryKuk/pipe-speed/internal/sizes"
	"v.io/x/lib/vlog"
)

const (
	// RoleEnv marks a process started by RunProcess as the producer.
	RoleEnv = "PIPESPEED_ROLE"
	// GateEnv carries the path of the named gate to the producer.
	GateEnv = "PIPESPEED_GATE"

	roleProducer = "producer"
	// the data pipe is the first of cmd.ExtraFiles
	childPipeFD = 3
)

// IsChild reports whether this process is a producer started by
// RunProcess.
func IsChild() bool {
	return os.Getenv(RoleEnv) == roleProducer
}

// RunProcess performs the sweep with the producer in the child process
// cmd, which must end up calling RunChild with the same sweep. The
// consumer side creates the named gate and removes it on every exit path.
func (d *Driver) RunProcess(ctx context.Context, cmd *exec.Cmd) (common.Totals, error) {
	r, w, err := d.pipe()
	if err != nil {
		return common.Totals{}, err
	}
	g, err := gate.CreateNamed(d.Config.GateDir)
	if err != nil {
		r.Close()
		w.Close()
		return common.Totals{}, common.Transport("create gate", err)
	}
	defer g.Close()

	cmd.ExtraFiles = append([]*os.File{w}, cmd.ExtraFiles...)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, RoleEnv+"="+roleProducer, GateEnv+"="+g.Path())
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	capacity := pipeCapacity(w)
	err = cmd.Start()
	// the child holds its own copy of the write end
	w.Close()
	if err != nil {
		r.Close()
		return common.Totals{}, fmt.Errorf("start producer: %w", err)
	}

	d.started(common.SweepInfo{
		Mode:         common.ModeProcess,
		PipeCapacity: capacity,
		ConsumerPID:  os.Getpid(),
		ProducerPID:  cmd.Process.Pid,
	})

	cons := consumer.New(r, g, d.Sink, consumer.Options{Timeout: d.Config.Timeout, Clock: d.Clock})
	totals, cerr := cons.Run(ctx)
	if cerr != nil {
		// the producer sees EOF on the gate or EPIPE on the data pipe
		g.Close()
	}
	return totals, pick(waitChild(cmd, cerr != nil), cerr)
}

// waitChild reaps the producer. Once the consumer has failed the child
// gets stopGrace to notice before it is killed.
func waitChild(cmd *exec.Cmd, consumerFailed bool) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	if !consumerFailed {
		return childError(<-done)
	}
	select {
	case err := <-done:
		return childError(err)
	case <-time.After(stopGrace):
		vlog.Errorf("producer %d did not stop within %v of the consumer failing; killing it", cmd.Process.Pid, stopGrace)
		cmd.Process.Kill()
		<-done
		return nil
	}
}

// childError turns the producer's exit status back into an error of the
// matching kind.
func childError(err error) error {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return err
	}
	code := ee.ExitCode()
	base := fmt.Errorf("producer exited with status %d", code)
	switch code {
	case common.ExitConfig:
		return &common.ConfigError{Msg: "producer", Err: base}
	case common.ExitTransport:
		return &common.TransportError{Op: "producer", Err: base}
	case common.ExitClock:
		return &common.ClockError{Err: base}
	case common.ExitPeerGone:
		return fmt.Errorf("%w: %w", base, common.ErrPeerGone)
	}
	return base
}

// RunChild is the producer half of RunProcess. It writes to the inherited
// data pipe and waits on the named gate given in the environment.
func RunChild(ctx context.Context, cfg common.TestConfig, gen sizes.Generator) error {
	path := os.Getenv(GateEnv)
	if path == "" {
		return common.Configf("%s is not set", GateEnv)
	}
	w, err := childPipe(childPipeFD)
	if err != nil {
		return common.Transport("open pipe", err)
	}
	g, err := gate.AttachNamed(path)
	if err != nil {
		w.Close()
		return common.Transport("attach gate", err)
	}
	defer g.Close()

	vlog.VI(1).Infof("producer process %d attached to gate %s", os.Getpid(), path)
	err = producer.New(w, g, producer.Options{Timeout: cfg.Timeout}).Run(ctx, gen)
	if err != nil && peerClosed(err) {
		// exit with ExitPeerGone so the parent reports its own error
		return fmt.Errorf("%w: %w", err, common.ErrPeerGone)
	}
	return err
}
