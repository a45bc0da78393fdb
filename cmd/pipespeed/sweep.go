package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"v.io/x/lib/cmdline"
	"v.io/x/lib/vlog"

	"github.com/DmitryKuk/pipe-speed/internal/archive"
	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/consumer"
	"github.com/DmitryKuk/pipe-speed/internal/report"
	"github.com/DmitryKuk/pipe-speed/internal/sizes"
	"github.com/DmitryKuk/pipe-speed/internal/sweep"
	"github.com/DmitryKuk/pipe-speed/internal/units"
)

var (
	dataFlag       sizeFlag
	chunkFlag      sizeFlag
	chunkRangeFlag string
)

func registerChunkFlags(flags *flag.FlagSet) {
	flags.Var(&chunkFlag, "chunk", "Fixed chunk size; larger than a data size means one chunk.")
	flags.StringVar(&chunkRangeFlag, "chunk-range", "", "Chunk size sweep inside every data size, as lower:increment:upper[:repeats].")
}

var cmdRange = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runRange),
	Name:   "range",
	Short:  "Sweep a range of sizes",
	Long: `
Transfers lower, lower+increment, ... while the size stays below upper, each
size repeated the given number of times. A lower bound of 0 starts at the
increment. With -data the data size is fixed and the range sweeps the chunk
size.
`,
	ArgsName: "<lower> <increment> <upper> [repeats]",
	ArgsLong: "Sizes accept a B, K, M, G, T or P suffix (powers of 1024). Repeats default to 1.",
}

var cmdList = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runList),
	Name:   "list",
	Short:  "Transfer a list of sizes",
	Long: `
Transfers every listed size in order. Without arguments the sizes are read
from standard input, separated by white space. Sizes of 0 are skipped.
`,
	ArgsName: "[size ...]",
}

func runRange(env *cmdline.Env, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return env.UsageErrorf("range: expected 3 or 4 arguments, got %d", len(args))
	}
	configureLogging()
	r, err := parseRange(args)
	if err != nil {
		return fail(err)
	}
	var gen sizes.Generator
	if dataFlag.set {
		if chunkFlag.set || chunkRangeFlag != "" {
			return env.UsageErrorf("range: -data sweeps the chunk size and cannot be combined with -chunk or -chunk-range")
		}
		gen, err = sizes.Grid(sizes.List([]uint64{dataFlag.v}), r)
	} else {
		gen, err = withChunks(r.Values())
	}
	if err != nil {
		return fail(err)
	}
	return runSweep(env, gen, describe("range", args))
}

func runList(env *cmdline.Env, args []string) error {
	configureLogging()
	var data sizes.Source
	if len(args) == 0 {
		data = sizes.NewStream(env.Stdin)
	} else {
		var err error
		if data, err = sizes.ParseList(args); err != nil {
			return fail(err)
		}
	}
	gen, err := withChunks(data)
	if err != nil {
		return fail(err)
	}
	return runSweep(env, gen, describe("list", args))
}

func withChunks(data sizes.Source) (sizes.Generator, error) {
	switch {
	case chunkFlag.set && chunkRangeFlag != "":
		return nil, common.Configf("-chunk and -chunk-range are exclusive")
	case chunkRangeFlag != "":
		r, err := parseRange(strings.Split(chunkRangeFlag, ":"))
		if err != nil {
			return nil, err
		}
		return sizes.Grid(data, r)
	case chunkFlag.set:
		return sizes.FixedChunk(data, chunkFlag.v)
	}
	return sizes.Sizes(data), nil
}

// parseRange reads lower, increment, upper and an optional repeat count.
// Unlike a size list, a zero lower bound is meaningful here.
func parseRange(args []string) (sizes.Range, error) {
	if len(args) < 3 || len(args) > 4 {
		return sizes.Range{}, common.Configf("range needs lower:increment:upper[:repeats], got %q", strings.Join(args, ":"))
	}
	v := []uint64{0, 0, 0, 1}
	for i, a := range args {
		n, err := units.ParseSize(a)
		if err != nil {
			return sizes.Range{}, &common.ConfigError{Msg: "range", Err: err}
		}
		v[i] = n
	}
	return sizes.NewRange(v[0], v[1], v[2], v[3])
}

// runSweep drives one sweep in the configured mode and reports it. In a
// producer child it only produces.
func runSweep(env *cmdline.Env, gen sizes.Generator, desc string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}
	if sweep.IsChild() {
		return fail(sweep.RunChild(ctx, cfg, gen))
	}

	rep := report.New(env.Stdout, report.Interactive(cfg.Output, env.Stdout))
	sinks := []consumer.Sink{rep}
	var sweepErr error
	if cfg.DBPath != "" {
		store, err := archive.Open(cfg.DBPath)
		if err != nil {
			return fail(&common.ConfigError{Msg: "archive", Err: err})
		}
		defer store.Close()
		run, err := store.BeginRun(ctx, cfg.Mode, desc)
		if err != nil {
			return fail(err)
		}
		vlog.VI(1).Infof("archiving run %s in %s", run.ID, cfg.DBPath)
		sinks = append(sinks, run)
		defer func() {
			if ferr := run.Finish(sweepErr); ferr != nil {
				vlog.Errorf("%v", ferr)
			}
		}()
	}

	d := &sweep.Driver{
		Config:  cfg,
		Sink:    consumer.Multi(sinks...),
		OnStart: func(info common.SweepInfo) { rep.Banner(desc, info) },
	}
	var totals common.Totals
	switch cfg.Mode {
	case common.ModeProcess:
		exe, err := os.Executable()
		if err != nil {
			sweepErr = err
			return fail(err)
		}
		// the child parses the same command line and takes the producer role
		child := exec.Command(exe, os.Args[1:]...)
		child.Stdin = env.Stdin
		child.Stderr = env.Stderr
		totals, sweepErr = d.RunProcess(ctx, child)
	default:
		totals, sweepErr = d.Run(ctx, gen)
	}
	rep.Finish(totals, sweepErr)
	vlog.VI(1).Infof("sweep finished: %d transfers, %d bytes in %v", totals.Count, totals.Size, totals.Time)
	return fail(sweepErr)
}
