package wire

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"testing/iotest"
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
)

// shortWriter accepts at most max bytes per call.
type shortWriter struct {
	w     io.Writer
	max   int
	calls int
}

func (s *shortWriter) Write(p []byte) (int, error) {
	s.calls++
	if len(p) > s.max {
		p = p[:s.max]
	}
	return s.w.Write(p)
}

type stuckWriter struct{}

func (stuckWriter) Write([]byte) (int, error) { return 0, nil }

type stuckReader struct{}

func (stuckReader) Read([]byte) (int, error) { return 0, nil }

func frame(t *testing.T, w io.Writer, tr common.Transfer, ts Timestamp) {
	t.Helper()
	fw := NewWriter(w, 0)
	if err := fw.WriteHeader(tr); err != nil {
		t.Fatal(err)
	}
	if err := fw.WritePayload(tr); err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteTimestamp(ts); err != nil {
		t.Fatal(err)
	}
}

func TestTransferDeliversExactBytes(t *testing.T) {
	ts := Timestamp{Sec: 1700000000, Nsec: 123456789}
	for _, tr := range []common.Transfer{
		{DataSize: 1, ChunkSize: 1}, {DataSize: 100, ChunkSize: 1}, {DataSize: 100, ChunkSize: 7}, {DataSize: 100, ChunkSize: 100}, {DataSize: 4096, ChunkSize: 1000}, {DataSize: 65537, ChunkSize: 4096},
	} {
		for _, frag := range []int{1, 3, 512, 1 << 20} {
			var buf bytes.Buffer
			sw := &shortWriter{w: &buf, max: frag}
			frame(t, sw, tr, ts)
			if want := HeaderSize + int(tr.DataSize) + TimestampSize; buf.Len() != want {
				t.Fatalf("%v/%d: wrote %d bytes, want %d", tr, frag, buf.Len(), want)
			}
			if frag < int(tr.DataSize) && sw.calls <= 3 {
				t.Errorf("%v/%d: writer was not fragmented", tr, frag)
			}

			for name, r := range map[string]io.Reader{
				"onebyte": iotest.OneByteReader(bytes.NewReader(buf.Bytes())),
				"half":    iotest.HalfReader(bytes.NewReader(buf.Bytes())),
				"dataerr": iotest.DataErrReader(bytes.NewReader(buf.Bytes())),
			} {
				fr := NewReader(r, 0)
				got, err := fr.ReadHeader()
				if err != nil || got != tr {
					t.Fatalf("%v/%s: header %v, %v", tr, name, got, err)
				}
				if err := fr.ReadPayload(got); err != nil {
					t.Fatalf("%v/%s: payload: %v", tr, name, err)
				}
				gotTS, err := fr.ReadTimestamp()
				if err != nil || gotTS != ts {
					t.Fatalf("%v/%s: timestamp %v, %v", tr, name, gotTS, err)
				}
				if _, err := fr.ReadHeader(); err != io.EOF {
					t.Errorf("%v/%s: got %v after the last transfer, want io.EOF", tr, name, err)
				}
			}
		}
	}
}

func TestReadHeaderBoundaries(t *testing.T) {
	if _, err := NewReader(bytes.NewReader(nil), 0).ReadHeader(); err != io.EOF {
		t.Errorf("empty stream: got %v, want io.EOF", err)
	}
	_, err := NewReader(bytes.NewReader(make([]byte, 5)), 0).ReadHeader()
	var te *common.TransportError
	if !errors.As(err, &te) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("partial header: got %v, want a TransportError wrapping io.ErrUnexpectedEOF", err)
	}
	var zero [HeaderSize]byte
	if _, err := NewReader(bytes.NewReader(zero[:]), 0).ReadHeader(); !errors.As(err, &te) {
		t.Errorf("zero sized header: got %v, want a TransportError", err)
	}
}

func TestTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	tr := common.Transfer{DataSize: 100, ChunkSize: 10}
	if err := NewWriter(&buf, 0).WriteHeader(tr); err != nil {
		t.Fatal(err)
	}
	buf.Write(make([]byte, 55))
	fr := NewReader(&buf, 0)
	if _, err := fr.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	err := fr.ReadPayload(tr)
	if common.ExitCode(err) != common.ExitTransport || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want a transport error for the truncated payload", err)
	}
}

func TestTruncatedTimestamp(t *testing.T) {
	_, err := NewReader(bytes.NewReader(make([]byte, 4)), 0).ReadTimestamp()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v", err)
	}
	_, err = NewReader(bytes.NewReader(nil), 0).ReadTimestamp()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("missing timestamp: got %v", err)
	}
	bad := make([]byte, TimestampSize)
	Timestamp{Sec: 1, Nsec: 0}.put(bad)
	bad[8] = 0xff
	if _, err := NewReader(bytes.NewReader(bad), 0).ReadTimestamp(); common.ExitCode(err) != common.ExitTransport {
		t.Errorf("out of range nanoseconds: got %v", err)
	}
}

func TestNoProgress(t *testing.T) {
	if err := WriteFull(stuckWriter{}, []byte("x"), 0); err != ErrNoProgress {
		t.Errorf("write: got %v, want ErrNoProgress", err)
	}
	if _, err := ReadFull(stuckReader{}, make([]byte, 1), 0); err != ErrNoProgress {
		t.Errorf("read: got %v, want ErrNoProgress", err)
	}
	err := NewWriter(stuckWriter{}, 0).WritePayload(common.Transfer{DataSize: 1, ChunkSize: 1})
	if common.ExitCode(err) != common.ExitTransport {
		t.Errorf("payload: got %v, want a transport error", err)
	}
}

func TestWriteToClosedPipe(t *testing.T) {
	r, w := io.Pipe()
	r.Close()
	err := NewWriter(w, 0).WriteHeader(common.Transfer{DataSize: 1, ChunkSize: 1})
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("got %v, want io.ErrClosedPipe", err)
	}
}

func TestReadTimeout(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	_, err = NewReader(r, 20*time.Millisecond).ReadHeader()
	if !errors.Is(err, os.ErrDeadlineExceeded) || common.ExitCode(err) != common.ExitTransport {
		t.Errorf("got %v, want a transport error wrapping os.ErrDeadlineExceeded", err)
	}
}

func TestElapsed(t *testing.T) {
	for _, test := range []struct {
		send, recv Timestamp
		want       time.Duration
	}{
		{Timestamp{10, 900000000}, Timestamp{11, 100000000}, 200 * time.Millisecond},
		{Timestamp{10, 0}, Timestamp{10, 0}, 0},
		{Timestamp{10, 5}, Timestamp{10, 7}, 2},
		{Timestamp{10, 999999999}, Timestamp{12, 0}, time.Second + 1},
		{Timestamp{0, 500}, Timestamp{3, 400}, 3*time.Second - 100},
	} {
		got, err := Elapsed(test.send, test.recv)
		if err != nil {
			t.Errorf("%v -> %v: %v", test.send, test.recv, err)
			continue
		}
		if got != test.want {
			t.Errorf("%v -> %v: got %v, want %v", test.send, test.recv, got, test.want)
		}
	}
}

func TestElapsedNeverNegative(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 1000; i++ {
		send := base.Add(time.Duration(i) * 7919 * time.Microsecond)
		recv := send.Add(time.Duration(i*i) * 104729 * time.Nanosecond)
		got, err := Elapsed(FromTime(send), FromTime(recv))
		if err != nil {
			t.Fatal(err)
		}
		if want := recv.Sub(send); got != want {
			t.Fatalf("%v -> %v: got %v, want %v", send, recv, got, want)
		}
	}
}

func TestElapsedBackwards(t *testing.T) {
	_, err := Elapsed(Timestamp{11, 100}, Timestamp{11, 99})
	if common.ExitCode(err) != common.ExitClock {
		t.Errorf("got %v, want a clock error", err)
	}
}

func TestClock(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := SystemClock.Now()
	if err != nil {
		t.Fatal(err)
	}
	if ts.Time().Before(before) || ts.Nsec >= 1e9 {
		t.Errorf("implausible reading %v", ts)
	}
	if _, err := wallClock(); err != nil {
		t.Fatal(err)
	}

	failing := Clock(func() (Timestamp, error) { return Timestamp{}, errors.New("broken") })
	if _, err := failing.Now(); common.ExitCode(err) != common.ExitClock {
		t.Errorf("got %v, want a clock error", err)
	}
}
