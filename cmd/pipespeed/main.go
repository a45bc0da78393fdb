// Command pipespeed measures the throughput of an OS pipe between a
// producer and a consumer over a sweep of transfer and chunk sizes.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"v.io/x/lib/cmdline"
	"v.io/x/lib/vlog"

	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/config"
	"github.com/DmitryKuk/pipe-speed/internal/units"
)

var cfg common.TestConfig

var cmdRoot = &cmdline.Command{
	Name:  "pipespeed",
	Short: "Measures OS pipe throughput",
	Long: `
Command pipespeed starts a producer and a consumer joined by one pipe and
times a sweep of transfers through it. Each transfer waits until the consumer
is ready to read before the clock starts, and reports its own speed together
with the running totals of the sweep.

Run settings can also come from PIPESPEED_* environment variables or from a
.env file in the working directory.
`,
	Children: []*cmdline.Command{cmdRange, cmdList, cmdRuns},
}

func main() {
	var err error
	if cfg, err = config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "pipespeed:", err)
		os.Exit(common.ExitCode(err))
	}
	config.RegisterFlags(&cmdRange.Flags, &cfg)
	config.RegisterFlags(&cmdList.Flags, &cfg)
	registerChunkFlags(&cmdRange.Flags)
	registerChunkFlags(&cmdList.Flags)
	cmdRange.Flags.Var(&dataFlag, "data", "Fixed data size; the range then sweeps the chunk size instead.")
	cmdRuns.Flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite archive to read.")

	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(cmdRoot)
}

func configureLogging() {
	if err := vlog.Log.Configure(
		vlog.OverridePriorConfiguration(true),
		vlog.LogToStderr(true),
		vlog.Level(cfg.Verbosity),
	); err != nil {
		fmt.Fprintln(os.Stderr, "pipespeed: configure logging:", err)
	}
}

// fail logs err on the diagnostic stream and turns it into the exit
// status of its kind.
func fail(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrPeerGone) {
		// the consumer side reports the cause
		vlog.VI(1).Infof("%v", err)
	} else {
		vlog.Errorf("%v", err)
	}
	vlog.FlushLog()
	return cmdline.ErrExitCode(common.ExitCode(err))
}

// sizeFlag is a flag holding a size such as 64K.
type sizeFlag struct {
	v   uint64
	set bool
}

func (s *sizeFlag) String() string {
	if !s.set {
		return ""
	}
	return units.FormatSize(s.v)
}

func (s *sizeFlag) Set(v string) error {
	n, err := units.ParseSize(v)
	if err != nil {
		return err
	}
	s.v, s.set = n, true
	return nil
}

func describe(name string, args []string) string {
	parts := append([]string{name}, args...)
	if dataFlag.set {
		parts = append(parts, "data="+units.FormatSize(dataFlag.v))
	}
	if chunkFlag.set {
		parts = append(parts, "chunk="+units.FormatSize(chunkFlag.v))
	}
	if chunkRangeFlag != "" {
		parts = append(parts, "chunk-range="+chunkRangeFlag)
	}
	return strings.Join(parts, " ")
}
