// Package report renders Test Records for people or for scripts.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/units"
)

// Interactive resolves an output mode against the destination: auto
// means interactive when w is a terminal.
func Interactive(mode common.OutputMode, w io.Writer) bool {
	switch mode {
	case common.OutputTerminal:
		return true
	case common.OutputMachine:
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Reporter writes one report entry per Test Record. In machine mode every
// record is one line of space separated fields:
//
//	test_id speed chunk_size data_size elapsed human_speed human_chunk human_size human_elapsed cumulative_size cumulative_time
//
// with speed in bytes per second and times in seconds.
type Reporter struct {
	w           io.Writer
	interactive bool
}

// New creates a reporter writing to w.
func New(w io.Writer, interactive bool) *Reporter {
	return &Reporter{w: w, interactive: interactive}
}

// Interactive reports whether the reporter writes the human layout.
func (r *Reporter) Interactive() bool { return r.interactive }

// Banner prints the sweep parameters. Machine output has no banner.
func (r *Reporter) Banner(desc string, info common.SweepInfo) {
	if !r.interactive {
		return
	}
	fmt.Fprintf(r.w, "Sweep: %s\n", desc)
	capacity := "unknown"
	if info.PipeCapacity > 0 {
		capacity = units.FormatSize(uint64(info.PipeCapacity))
	}
	fmt.Fprintf(r.w, "Mode: %s,  pipe capacity: %s\n", info.Mode, capacity)
	fmt.Fprintf(r.w, "Consumer pid: %d\nProducer pid: %d\n", info.ConsumerPID, info.ProducerPID)
}

// Record implements consumer.Sink.
func (r *Reporter) Record(rec common.TestRecord) error {
	if r.interactive {
		return r.human(rec)
	}
	return r.machine(rec)
}

func (r *Reporter) human(rec common.TestRecord) error {
	speed, ss := units.Human(rec.Speed())
	chunk, cs := units.Human(float64(rec.ChunkSize))
	size, ds := units.Human(float64(rec.DataSize))
	_, err := fmt.Fprintf(r.w, "%8d: Speed: %10.6f%c/s,  block: %8.3f%c,  size: %8.3f%c,  time: %12.6fs\n",
		rec.TestID, speed, ss, chunk, cs, size, ds, rec.Elapsed.Seconds())
	if err != nil {
		return err
	}
	tspeed, tss := units.Human(rec.CumulativeSpeed())
	tsize, tds := units.Human(float64(rec.CumulativeSize))
	_, err = fmt.Fprintf(r.w, "%8s  Total: %10.6f%c/s,  size: %8.3f%c,  time: %12.6fs\n",
		"", tspeed, tss, tsize, tds, rec.CumulativeTime.Seconds())
	return err
}

func (r *Reporter) machine(rec common.TestRecord) error {
	speed, ss := units.Human(rec.Speed())
	chunk, cs := units.Human(float64(rec.ChunkSize))
	size, ds := units.Human(float64(rec.DataSize))
	_, err := fmt.Fprintf(r.w, "%d %f %d %d %f %f%c/s %f%c %f%c %fs %d %f\n",
		rec.TestID, rec.Speed(), rec.ChunkSize, rec.DataSize, rec.Elapsed.Seconds(),
		speed, ss, chunk, cs, size, ds, rec.Elapsed.Seconds(),
		rec.CumulativeSize, rec.CumulativeTime.Seconds())
	return err
}

// Finish closes the report. Interactive output gets a summary block; a
// failed sweep keeps every record printed so far and adds nothing to the
// data stream.
func (r *Reporter) Finish(totals common.Totals, err error) {
	if !r.interactive || err != nil {
		return
	}
	fmt.Fprintln(r.w, "\n========== Sweep summary ==========")
	fmt.Fprintf(r.w, "Transfers: %d\n", totals.Count)
	fmt.Fprintf(r.w, "Bytes: %d (%s)\n", totals.Size, units.FormatSize(totals.Size))
	fmt.Fprintf(r.w, "Time: %.6fs\n", totals.Time.Seconds())
	if totals.Time > 0 {
		fmt.Fprintf(r.w, "Speed: %s\n", units.FormatSpeed(float64(totals.Size)/totals.Time.Seconds()))
	}
	fmt.Fprintln(r.w, "===================================")
	fmt.Fprintln(r.w, "Tests completed. Have a nice day!")
}
