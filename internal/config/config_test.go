package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvMode, EnvOutput, EnvTimeout, EnvDB, EnvPipeSize, EnvGateDir, EnvVerbose} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvFile, filepath.Join(t.TempDir(), "missing.env"))
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("got %+v, want the defaults", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvFile, writeEnv(t, "PIPESPEED_MODE=process\nPIPESPEED_TIMEOUT=2s\nPIPESPEED_PIPE_SIZE=1M\nPIPESPEED_DB=file.db\n"))
	t.Setenv(EnvTimeout, "5s")
	t.Setenv(EnvOutput, "machine")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	want := common.TestConfig{
		Mode:     common.ModeProcess,
		Output:   common.OutputMachine,
		Timeout:  5 * time.Second,
		DBPath:   "file.db",
		PipeSize: 1 << 20,
	}
	if cfg != want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs, &cfg)
	if err := fs.Parse([]string{"-mode=goroutine", "-pipe-size=64K", "-verbose=2"}); err != nil {
		t.Fatal(err)
	}
	want.Mode = common.ModeGoroutine
	want.PipeSize = 64 << 10
	want.Verbosity = 2
	if cfg != want {
		t.Errorf("after flags: got %+v, want %+v", cfg, want)
	}
}

func TestLoadErrors(t *testing.T) {
	for _, env := range []struct{ key, value string }{
		{EnvMode, "threads"},
		{EnvOutput, "html"},
		{EnvTimeout, "soon"},
		{EnvTimeout, "-1s"},
		{EnvPipeSize, "lots"},
		{EnvPipeSize, "4G"},
		{EnvVerbose, "loud"},
	} {
		clearEnv(t)
		t.Setenv(EnvFile, filepath.Join(t.TempDir(), "missing.env"))
		t.Setenv(env.key, env.value)
		if _, err := Load(); common.ExitCode(err) != common.ExitConfig {
			t.Errorf("%s=%s: got %v, want a configuration error", env.key, env.value, err)
		}
	}
}

func TestBadFlag(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	RegisterFlags(fs, &cfg)
	if err := fs.Parse([]string{"-output=fancy"}); err == nil {
		t.Error("bad output mode accepted")
	}
}
