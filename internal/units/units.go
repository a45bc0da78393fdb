// Package units parses size arguments and renders sizes and speeds in
// the compact "1.5M" form used by the reports.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Suffixes are powers of 1024, starting at bytes.
const Suffixes = "BKMGTP"

// ParseSize parses a non-negative size with an optional one-letter suffix
// from Suffixes, e.g. "4096", "64K", "1.5M".
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	mult := 1.0
	if i := strings.IndexByte(Suffixes, upper(s[len(s)-1])); i >= 0 {
		s = s[:len(s)-1]
		mult = math.Pow(1024, float64(i))
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	v *= mult
	if v >= math.MaxUint64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return uint64(v), nil
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// Human rescales v by 1024 while it is at least 1000 and returns the
// scaled value with its suffix.
func Human(v float64) (float64, byte) {
	i := 0
	for v >= 1000 && i < len(Suffixes)-1 {
		v /= 1024
		i++
	}
	return v, Suffixes[i]
}

// FormatSize renders n like "1.500M".
func FormatSize(n uint64) string {
	v, s := Human(float64(n))
	return fmt.Sprintf("%.3f%c", v, s)
}

// FormatSpeed renders bytes per second like "1.500M/s".
func FormatSpeed(bps float64) string {
	v, s := Human(bps)
	return fmt.Sprintf("%.6f%c/s", v, s)
}
