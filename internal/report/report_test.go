package report

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
)

var rec = common.TestRecord{
	TestID:         3,
	DataSize:       1 << 20,
	ChunkSize:      4096,
	Elapsed:        500 * time.Millisecond,
	CumulativeSize: 3 << 20,
	CumulativeTime: 2 * time.Second,
}

func TestMachineLine(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)
	if err := r.Record(rec); err != nil {
		t.Fatal(err)
	}
	want := "3 2097152.000000 4096 1048576 0.500000 2.000000M/s 4.000000K 1.000000M 0.500000s 3145728 2.000000\n"
	if got := buf.String(); got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestHumanLines(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)
	if err := r.Record(rec); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	want := "       3: Speed:   2.000000M/s,  block:    4.000K,  size:    1.000M,  time:     0.500000s"
	if lines[0] != want {
		t.Errorf("got  %q\nwant %q", lines[0], want)
	}
	if !strings.Contains(lines[1], "Total:   1.500000M/s") || !strings.Contains(lines[1], "size:    3.000M") {
		t.Errorf("unexpected total line %q", lines[1])
	}
}

func TestBannerAndFinish(t *testing.T) {
	info := common.SweepInfo{Mode: common.ModeProcess, PipeCapacity: 65536, ConsumerPID: 10, ProducerPID: 11}
	totals := common.Totals{Count: 2, Size: 2048, Time: time.Second}

	var machine bytes.Buffer
	m := New(&machine, false)
	m.Banner("list 1K 1K", info)
	m.Finish(totals, nil)
	if machine.Len() != 0 {
		t.Errorf("machine output has extra text: %q", machine.String())
	}

	var human bytes.Buffer
	h := New(&human, true)
	h.Banner("list 1K 1K", info)
	h.Finish(totals, nil)
	out := human.String()
	for _, s := range []string{"Sweep: list 1K 1K", "Mode: process,  pipe capacity: 64.000K", "Producer pid: 11", "Transfers: 2", "Tests completed."} {
		if !strings.Contains(out, s) {
			t.Errorf("missing %q in:\n%s", s, out)
		}
	}

	human.Reset()
	h.Finish(totals, errors.New("broken"))
	if human.Len() != 0 {
		t.Errorf("failed sweep printed a summary: %q", human.String())
	}
}

func TestInteractive(t *testing.T) {
	var buf bytes.Buffer
	if Interactive(common.OutputAuto, &buf) {
		t.Error("a buffer is not a terminal")
	}
	if !Interactive(common.OutputTerminal, &buf) || Interactive(common.OutputMachine, os.Stdout) {
		t.Error("explicit modes ignored")
	}
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if Interactive(common.OutputAuto, f) {
		t.Error("a regular file is not a terminal")
	}
}
