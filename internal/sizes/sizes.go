// Package sizes generates the ordered (data_size, chunk_size) pairs that a
// sweep transfers.
//
// Every sequence is lazy and finite, and Next reports io.EOF once it is
// exhausted. Sizes of zero are never yielded.
package sizes

import (
	"bufio"
	"fmt"
	"io"

	"github.com/DmitryKuk/pipe-speed/internal/common"
	"github.com/DmitryKuk/pipe-speed/internal/units"
)

// Source yields single sizes.
type Source interface {
	Next() (uint64, error)
}

// Generator yields the transfers of a sweep.
type Generator interface {
	Next() (common.Transfer, error)
}

// Range describes lower, lower+inc, ... while the size is strictly below
// upper, each size repeated Repeats times.
type Range struct {
	Lower, Inc, Upper, Repeats uint64
}

// NewRange validates the range parameters.
func NewRange(lower, inc, upper, repeats uint64) (Range, error) {
	r := Range{Lower: lower, Inc: inc, Upper: upper, Repeats: repeats}
	return r, r.Validate()
}

// Validate returns a ConfigError for a zero increment, zero repeats or
// an inverted range.
func (r Range) Validate() error {
	switch {
	case r.Inc == 0:
		return common.Configf("range increment must be positive")
	case r.Repeats == 0:
		return common.Configf("range repeat count must be positive")
	case r.Lower > r.Upper:
		return common.Configf("range lower bound %d exceeds upper bound %d", r.Lower, r.Upper)
	}
	return nil
}

// Values starts a fresh pass over the range.
func (r Range) Values() Source {
	first := r.Lower
	if first == 0 {
		first = r.Inc
	}
	return &rangeIter{r: r, next: first}
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", r.Lower, r.Inc, r.Upper, r.Repeats)
}

type rangeIter struct {
	r    Range
	next uint64
	rep  uint64
	done bool
}

func (it *rangeIter) Next() (uint64, error) {
	if it.done || it.next >= it.r.Upper {
		it.done = true
		return 0, io.EOF
	}
	v := it.next
	it.rep++
	if it.rep == it.r.Repeats {
		it.rep = 0
		if it.next+it.r.Inc < it.next {
			it.done = true
		} else {
			it.next += it.r.Inc
		}
	}
	return v, nil
}

// List yields the given sizes in order, skipping zeros.
func List(values []uint64) Source {
	return &listIter{values: values}
}

type listIter struct {
	values []uint64
}

func (it *listIter) Next() (uint64, error) {
	for len(it.values) > 0 {
		v := it.values[0]
		it.values = it.values[1:]
		if v != 0 {
			return v, nil
		}
	}
	return 0, io.EOF
}

// ParseList parses size arguments up front so a bad argument fails the
// sweep before any transfer.
func ParseList(args []string) (Source, error) {
	values := make([]uint64, 0, len(args))
	for _, a := range args {
		v, err := units.ParseSize(a)
		if err != nil {
			return nil, &common.ConfigError{Msg: "size argument", Err: err}
		}
		values = append(values, v)
	}
	return List(values), nil
}

// NewStream yields whitespace-separated sizes read from r. An unparsable
// entry ends the stream with a ConfigError.
func NewStream(r io.Reader) Source {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return &streamIter{sc: sc}
}

type streamIter struct {
	sc  *bufio.Scanner
	err error
}

func (it *streamIter) Next() (uint64, error) {
	if it.err != nil {
		return 0, it.err
	}
	for it.sc.Scan() {
		v, err := units.ParseSize(it.sc.Text())
		if err != nil {
			it.err = &common.ConfigError{Msg: "size input", Err: err}
			return 0, it.err
		}
		if v != 0 {
			return v, nil
		}
	}
	if err := it.sc.Err(); err != nil {
		it.err = fmt.Errorf("reading sizes: %w", err)
		return 0, it.err
	}
	it.err = io.EOF
	return 0, io.EOF
}

// Sizes transfers every data size as a single chunk.
func Sizes(data Source) Generator {
	return &fixedGen{data: data}
}

// FixedChunk transfers every data size in chunks of at most chunk bytes.
func FixedChunk(data Source, chunk uint64) (Generator, error) {
	if chunk == 0 {
		return nil, common.Configf("chunk size must be positive")
	}
	return &fixedGen{data: data, chunk: chunk}, nil
}

type fixedGen struct {
	data  Source
	chunk uint64 // 0 means one chunk per transfer
}

func (g *fixedGen) Next() (common.Transfer, error) {
	d, err := g.data.Next()
	if err != nil {
		return common.Transfer{}, err
	}
	c := d
	if g.chunk != 0 && g.chunk < d {
		c = g.chunk
	}
	return common.Transfer{DataSize: d, ChunkSize: c}, nil
}

// Grid sweeps chunk sizes inside every data size. Pairs whose chunk size
// exceeds the data size are skipped.
func Grid(data Source, chunk Range) (Generator, error) {
	if err := chunk.Validate(); err != nil {
		return nil, err
	}
	return &gridGen{data: data, chunk: chunk}, nil
}

type gridGen struct {
	data  Source
	chunk Range
	cur   uint64
	inner Source
}

func (g *gridGen) Next() (common.Transfer, error) {
	for {
		if g.inner == nil {
			d, err := g.data.Next()
			if err != nil {
				return common.Transfer{}, err
			}
			g.cur, g.inner = d, g.chunk.Values()
		}
		c, err := g.inner.Next()
		if err == io.EOF {
			g.inner = nil
			continue
		}
		if err != nil {
			return common.Transfer{}, err
		}
		if c > g.cur {
			// chunk sizes only grow within a pass
			g.inner = nil
			continue
		}
		return common.Transfer{DataSize: g.cur, ChunkSize: c}, nil
	}
}

// Collect drains g. It is meant for tests and for describing short sweeps.
func Collect(g Generator) ([]common.Transfer, error) {
	var out []common.Transfer
	for {
		t, err := g.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
}
