//go:build !(linux || darwin || freebsd)

package gate

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("named gates need a unix system")

// Named is unavailable on this platform.
type Named struct{}

// CreateNamed always fails on this platform.
func CreateNamed(dir string) (*Named, error) { return nil, errUnsupported }

func AttachNamed(path string) (*Named, error) { return nil, errUnsupported }

func (g *Named) Path() string { return "" }

func (g *Named) Open(context.Context) error { return errUnsupported }

func (g *Named) Wait(context.Context) error { return errUnsupported }

func (g *Named) Close() error { return nil }
