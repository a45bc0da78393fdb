//go:build linux || darwin || freebsd

package sweep

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// childPipe wraps an inherited descriptor. exec hands it over in blocking
// mode; switching it back lets os.NewFile use the poller, so write
// deadlines work in the child too.
func childPipe(fd int) (*os.File, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("descriptor %d: %w", fd, err)
	}
	return os.NewFile(uintptr(fd), "pipe"), nil
}
