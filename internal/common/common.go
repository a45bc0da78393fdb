package common

import (
	"fmt"
	"time"
)

// Mode selects where the Producer runs.
type Mode string

const (
	// ModeGoroutine Producer and Consumer are goroutines of one process
	ModeGoroutine Mode = "goroutine"
	// ModeProcess Producer runs in a re-executed child process
	ModeProcess Mode = "process"
)

// OutputMode selects how Test Records are rendered.
type OutputMode string

const (
	OutputAuto     OutputMode = "auto"
	OutputTerminal OutputMode = "terminal"
	OutputMachine  OutputMode = "machine"
)

// TestConfig holds the run parameters that are not part of the size sweep.
type TestConfig struct {
	Mode      Mode          // goroutine or process
	Output    OutputMode    // report rendering
	Timeout   time.Duration // per suspend point, 0 means wait forever
	DBPath    string        // SQLite archive, empty disables it
	PipeSize  int           // requested pipe capacity in bytes, 0 keeps the OS default
	GateDir   string        // where the named gate FIFO lives in process mode
	Verbosity int           // vlog level
}

// Validate reports a ConfigError for settings that cannot be used.
func (c TestConfig) Validate() error {
	switch c.Mode {
	case ModeGoroutine, ModeProcess:
	default:
		return Configf("unknown mode %q", c.Mode)
	}
	switch c.Output {
	case OutputAuto, OutputTerminal, OutputMachine:
	default:
		return Configf("unknown output mode %q", c.Output)
	}
	if c.Timeout < 0 {
		return Configf("negative timeout %v", c.Timeout)
	}
	if c.PipeSize < 0 {
		return Configf("negative pipe size %d", c.PipeSize)
	}
	return nil
}

// SweepInfo describes a sweep whose producer and consumer are running.
type SweepInfo struct {
	Mode         Mode
	PipeCapacity int // bytes, 0 when unknown
	ConsumerPID  int
	ProducerPID  int
}

// Transfer is one (data_size, chunk_size) pair produced by the size generator.
type Transfer struct {
	DataSize  uint64
	ChunkSize uint64
}

// Validate checks the header invariant 0 < chunk_size <= data_size.
func (t Transfer) Validate() error {
	if t.DataSize == 0 {
		return fmt.Errorf("zero data size")
	}
	if t.ChunkSize == 0 || t.ChunkSize > t.DataSize {
		return fmt.Errorf("chunk size %d out of range (0, %d]", t.ChunkSize, t.DataSize)
	}
	return nil
}

func (t Transfer) String() string {
	return fmt.Sprintf("%d/%d", t.DataSize, t.ChunkSize)
}

// TestRecord is the measurement of one completed transfer.
type TestRecord struct {
	TestID         uint64
	DataSize       uint64
	ChunkSize      uint64
	Elapsed        time.Duration
	CumulativeSize uint64
	CumulativeTime time.Duration
}

// Speed returns the transfer throughput in bytes per second.
func (r TestRecord) Speed() float64 {
	return rate(r.DataSize, r.Elapsed)
}

// CumulativeSpeed returns the throughput over every transfer so far.
func (r TestRecord) CumulativeSpeed() float64 {
	return rate(r.CumulativeSize, r.CumulativeTime)
}

func rate(size uint64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(size) / d.Seconds()
}

// Totals are the consumer's running sums. Both sums are integers so they
// never drift.
type Totals struct {
	Count uint64
	Size  uint64
	Time  time.Duration
}

// Add folds one finished transfer into the totals and returns its record.
func (t *Totals) Add(tr Transfer, elapsed time.Duration) TestRecord {
	rec := TestRecord{
		TestID:    t.Count,
		DataSize:  tr.DataSize,
		ChunkSize: tr.ChunkSize,
		Elapsed:   elapsed,
	}
	t.Count++
	t.Size += tr.DataSize
	t.Time += elapsed
	rec.CumulativeSize = t.Size
	rec.CumulativeTime = t.Time
	return rec
}
