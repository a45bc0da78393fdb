// Package wire implements the per-transfer framing shared by the producer
// and the consumer:
//
//	data_size   uint64, big endian
//	chunk_size  uint64, big endian
//	payload     data_size bytes, written and read in chunks of chunk_size
//	send_time   int64 seconds + uint32 nanoseconds, big endian
//
// End of sweep is the stream ending exactly before a header.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/DmitryKuk/pipe-speed/internal/common"
)

const (
	// HeaderSize is the encoded size of a transfer header.
	HeaderSize = 16
	// TimestampSize is the encoded size of a timestamp.
	TimestampSize = 12
)

// ErrNoProgress is returned when a read or write transfers nothing and
// reports no error.
var ErrNoProgress = errors.New("no progress")

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(time.Time) error
}

// WriteFull writes all of buf, retrying after short writes. A write that
// makes no progress is a hard error. When timeout is positive and w
// supports deadlines, every write gets its own deadline; a blocking file
// without deadline support is written without one.
func WriteFull(w io.Writer, buf []byte, timeout time.Duration) error {
	d, _ := w.(writeDeadliner)
	for len(buf) > 0 {
		if d != nil && timeout > 0 {
			if err := d.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				if !errors.Is(err, os.ErrNoDeadline) {
					return err
				}
				d = nil
			}
		}
		n, err := w.Write(buf)
		if n > 0 {
			buf = buf[n:]
		}
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrNoProgress
		}
	}
	return nil
}

// ReadFull fills buf, retrying after short reads. It returns io.EOF only
// when the stream ended before the first byte, and io.ErrUnexpectedEOF
// when it ended part way.
func ReadFull(r io.Reader, buf []byte, timeout time.Duration) (int, error) {
	d, _ := r.(readDeadliner)
	off := 0
	for off < len(buf) {
		if d != nil && timeout > 0 {
			if err := d.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				if !errors.Is(err, os.ErrNoDeadline) {
					return off, err
				}
				d = nil
			}
		}
		n, err := r.Read(buf[off:])
		if n > 0 {
			off += n
		}
		if off == len(buf) {
			return off, nil
		}
		switch {
		case err == io.EOF && off == 0:
			return 0, io.EOF
		case err == io.EOF:
			return off, io.ErrUnexpectedEOF
		case err != nil:
			return off, err
		case n <= 0:
			return off, ErrNoProgress
		}
	}
	return off, nil
}

// Writer is the producer side of the framing.
type Writer struct {
	w       io.Writer
	timeout time.Duration
	scratch [HeaderSize]byte
	chunk   []byte
}

// NewWriter frames transfers onto w.
func NewWriter(w io.Writer, timeout time.Duration) *Writer {
	return &Writer{w: w, timeout: timeout}
}

// WriteHeader sends the transfer header.
func (w *Writer) WriteHeader(t common.Transfer) error {
	binary.BigEndian.PutUint64(w.scratch[:8], t.DataSize)
	binary.BigEndian.PutUint64(w.scratch[8:16], t.ChunkSize)
	return common.Transport("write header", WriteFull(w.w, w.scratch[:HeaderSize], w.timeout))
}

// WritePayload sends t.DataSize bytes, at most t.ChunkSize per chunk.
func (w *Writer) WritePayload(t common.Transfer) error {
	buf := grow(&w.chunk, t.ChunkSize)
	for left := t.DataSize; left > 0; {
		n := uint64(len(buf))
		if left < n {
			n = left
		}
		if err := WriteFull(w.w, buf[:n], w.timeout); err != nil {
			return common.Transport("write payload", err)
		}
		left -= n
	}
	return nil
}

// WriteTimestamp sends ts.
func (w *Writer) WriteTimestamp(ts Timestamp) error {
	ts.put(w.scratch[:TimestampSize])
	return common.Transport("write send time", WriteFull(w.w, w.scratch[:TimestampSize], w.timeout))
}

// Reader is the consumer side of the framing.
type Reader struct {
	r       io.Reader
	timeout time.Duration
	scratch [HeaderSize]byte
	chunk   []byte
}

// NewReader reads framed transfers from r.
func NewReader(r io.Reader, timeout time.Duration) *Reader {
	return &Reader{r: r, timeout: timeout}
}

// ReadHeader returns io.EOF, unwrapped, when the stream ends at a transfer
// boundary. Anything else that goes wrong is a TransportError.
func (r *Reader) ReadHeader() (common.Transfer, error) {
	_, err := ReadFull(r.r, r.scratch[:HeaderSize], r.timeout)
	if err == io.EOF {
		return common.Transfer{}, io.EOF
	}
	if err != nil {
		return common.Transfer{}, common.Transport("read header", err)
	}
	t := common.Transfer{
		DataSize:  binary.BigEndian.Uint64(r.scratch[:8]),
		ChunkSize: binary.BigEndian.Uint64(r.scratch[8:16]),
	}
	if err := t.Validate(); err != nil {
		return t, common.Transport("read header", err)
	}
	return t, nil
}

// ReadPayload receives t.DataSize bytes, at most t.ChunkSize per read loop.
func (r *Reader) ReadPayload(t common.Transfer) error {
	buf := grow(&r.chunk, t.ChunkSize)
	for left := t.DataSize; left > 0; {
		n := uint64(len(buf))
		if left < n {
			n = left
		}
		if _, err := ReadFull(r.r, buf[:n], r.timeout); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return common.Transport("read payload", err)
		}
		left -= n
	}
	return nil
}

// ReadTimestamp receives the producer's send time.
func (r *Reader) ReadTimestamp() (Timestamp, error) {
	if _, err := ReadFull(r.r, r.scratch[:TimestampSize], r.timeout); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Timestamp{}, common.Transport("read send time", err)
	}
	ts, err := getTimestamp(r.scratch[:TimestampSize])
	if err != nil {
		return ts, common.Transport("read send time", err)
	}
	return ts, nil
}

// maxChunk bounds the chunk buffer a peer can make us allocate.
const maxChunk = 1 << 30

func grow(buf *[]byte, n uint64) []byte {
	if n > maxChunk {
		n = maxChunk
	}
	if uint64(cap(*buf)) < n {
		*buf = make([]byte, n)
	}
	return (*buf)[:n]
}

// Timestamp is a wall-clock instant as seconds and nanoseconds since the
// Unix epoch.
type Timestamp struct {
	Sec  int64
	Nsec uint32
}

// FromTime converts t.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: uint32(t.Nanosecond())}
}

// Time converts ts back to a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec))
}

func (ts Timestamp) put(b []byte) {
	binary.BigEndian.PutUint64(b[:8], uint64(ts.Sec))
	binary.BigEndian.PutUint32(b[8:12], ts.Nsec)
}

func getTimestamp(b []byte) (Timestamp, error) {
	ts := Timestamp{
		Sec:  int64(binary.BigEndian.Uint64(b[:8])),
		Nsec: binary.BigEndian.Uint32(b[8:12]),
	}
	if ts.Nsec >= 1e9 {
		return ts, fmt.Errorf("nanoseconds %d out of range", ts.Nsec)
	}
	return ts, nil
}

// Elapsed returns recv - send. When the receive nanoseconds are below the
// send nanoseconds one second is borrowed. A receive time before the send
// time is a ClockError.
func Elapsed(send, recv Timestamp) (time.Duration, error) {
	sec := recv.Sec - send.Sec
	nsec := int64(recv.Nsec) - int64(send.Nsec)
	if nsec < 0 {
		sec--
		nsec += 1e9
	}
	if sec < 0 {
		return 0, &common.ClockError{Err: fmt.Errorf("receive time %v precedes send time %v", recv.Time(), send.Time())}
	}
	return time.Duration(sec)*time.Second + time.Duration(nsec), nil
}
