//go:build !(linux || darwin || freebsd)

package sweep

import (
	"fmt"
	"os"
)

func childPipe(fd int) (*os.File, error) {
	f := os.NewFile(uintptr(fd), "pipe")
	if f == nil {
		return nil, fmt.Errorf("descriptor %d is not open", fd)
	}
	return f, nil
}
