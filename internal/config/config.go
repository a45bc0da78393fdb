// Package config assembles a common.TestConfig from a .env file, the
// environment and command flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/units"
)

// Environment variables read by Load.
const (
	EnvFile     = "PIPESPEED_ENV_FILE"
	EnvMode     = "PIPESPEED_MODE"
	EnvOutput   = "PIPESPEED_OUTPUT"
	EnvTimeout  = "PIPESPEED_TIMEOUT"
	EnvDB       = "PIPESPEED_DB"
	EnvPipeSize = "PIPESPEED_PIPE_SIZE"
	EnvGateDir  = "PIPESPEED_GATE_DIR"
	EnvVerbose  = "PIPESPEED_VERBOSE"

	// DefaultEnvFile is read when EnvFile is unset. It may be missing.
	DefaultEnvFile = ".env"
)

// Default is the configuration with nothing set.
func Default() common.TestConfig {
	return common.TestConfig{
		Mode:   common.ModeGoroutine,
		Output: common.OutputAuto,
	}
}

// Load returns the defaults overridden by the .env file and then by the
// process environment.
func Load() (common.TestConfig, error) {
	path := DefaultEnvFile
	if p, ok := os.LookupEnv(EnvFile); ok {
		path = p
	}
	file, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.TestConfig{}, &common.ConfigError{Msg: "read " + path, Err: err}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}
	return fromLookup(lookup)
}

func fromLookup(lookup func(string) (string, bool)) (common.TestConfig, error) {
	cfg := Default()
	set := func(key string, fn func(string) error) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		if err := fn(v); err != nil {
			return &common.ConfigError{Msg: key, Err: err}
		}
		return nil
	}
	for _, s := range []struct {
		key string
		fn  func(string) error
	}{
		{EnvMode, (*modeValue)(&cfg.Mode).Set},
		{EnvOutput, (*outputValue)(&cfg.Output).Set},
		{EnvTimeout, durationSetter(&cfg.Timeout)},
		{EnvDB, func(v string) error { cfg.DBPath = v; return nil }},
		{EnvPipeSize, (*sizeValue)(&cfg.PipeSize).Set},
		{EnvGateDir, func(v string) error { cfg.GateDir = v; return nil }},
		{EnvVerbose, intSetter(&cfg.Verbosity)},
	} {
		if err := set(s.key, s.fn); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// RegisterFlags binds the run flags to cfg. The current values of cfg are
// the flag defaults, so Load should run first.
func RegisterFlags(flags *flag.FlagSet, cfg *common.TestConfig) {
	flags.Var((*modeValue)(&cfg.Mode), "mode", "Where the producer runs: goroutine or process.")
	flags.Var((*outputValue)(&cfg.Output), "output", "Report format: auto, terminal or machine.")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for every gate wait, read and write; 0 waits forever.")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite file to archive the records in; empty disables archiving.")
	flags.Var((*sizeValue)(&cfg.PipeSize), "pipe-size", "Requested pipe capacity, e.g. 1M; 0 keeps the system default.")
	flags.StringVar(&cfg.GateDir, "gate-dir", cfg.GateDir, "Directory for the gate FIFO in process mode; defaults to the temp directory.")
	flags.IntVar(&cfg.Verbosity, "verbose", cfg.Verbosity, "Diagnostic log level.")
}

type modeValue common.Mode

func (m *modeValue) String() string { return string(*m) }

func (m *modeValue) Set(v string) error {
	switch common.Mode(v) {
	case common.ModeGoroutine, common.ModeProcess:
		*m = modeValue(v)
		return nil
	}
	return common.Configf("unknown mode %q", v)
}

type outputValue common.OutputMode

func (o *outputValue) String() string { return string(*o) }

func (o *outputValue) Set(v string) error {
	switch common.OutputMode(v) {
	case common.OutputAuto, common.OutputTerminal, common.OutputMachine:
		*o = outputValue(v)
		return nil
	}
	return common.Configf("unknown output mode %q", v)
}

type sizeValue int

func (s *sizeValue) String() string { return strconv.Itoa(int(*s)) }

func (s *sizeValue) Set(v string) error {
	n, err := units.ParseSize(v)
	if err != nil {
		return err
	}
	if n > 1<<31-1 {
		return common.Configf("size %s too large", v)
	}
	*s = sizeValue(n)
	return nil
}

func durationSetter(d *time.Duration) func(string) error {
	return func(v string) error {
		x, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = x
		return nil
	}
}

func intSetter(n *int) func(string) error {
	return func(v string) error {
		x, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*n = x
		return nil
	}
}
