package main

import (
	"context"
	"fmt"

	"v.io/x/lib/cmdline"

	"github.com/DmitryKuk/pipe-speed/internal/archive"
	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/config"
	"github.com/DmitryKuk/pipe-speed/internal/report"
)

var cmdRuns = &cmdline.Command{
	Runner: cmdline.RunnerFunc(runRuns),
	Name:   "runs",
	Short:  "Show archived sweeps",
	Long: `
Lists the sweeps stored in the archive given by -db or PIPESPEED_DB, newest
first. With a run id, prints the records of that run in the machine layout.
`,
	ArgsName: "[run-id]",
}

func runRuns(env *cmdline.Env, args []string) error {
	if len(args) > 1 {
		return env.UsageErrorf("runs: expected at most one run id, got %d", len(args))
	}
	configureLogging()
	if cfg.DBPath == "" {
		return fail(common.Configf("no archive: set -db or %s", config.EnvDB))
	}
	store, err := archive.Open(cfg.DBPath)
	if err != nil {
		return fail(&common.ConfigError{Msg: "archive", Err: err})
	}
	defer store.Close()

	ctx := context.Background()
	if len(args) == 1 {
		recs, err := store.Records(ctx, args[0])
		if err != nil {
			return fail(err)
		}
		if len(recs) == 0 {
			return fail(common.Configf("run %s has no records", args[0]))
		}
		rep := report.New(env.Stdout, false)
		for _, rec := range recs {
			if err := rep.Record(rec); err != nil {
				return fail(err)
			}
		}
		return nil
	}

	runs, err := store.Runs(ctx)
	if err != nil {
		return fail(err)
	}
	for _, r := range runs {
		state := "running"
		switch {
		case !r.FinishedAt.IsZero() && r.Status == common.ExitOK:
			state = "ok"
		case !r.FinishedAt.IsZero():
			state = fmt.Sprintf("failed(%d): %s", r.Status, r.Error)
		}
		fmt.Fprintf(env.Stdout, "%s  %s  %-9s %4d records  %s  [%s]\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Mode, r.Records, state, r.Sweep)
	}
	return nil
}
