//go:build !linux

package sweep

import (
	"errors"
	"os"
)

func setPipeCapacity(*os.File, int) error {
	return errors.New("pipe capacity can only be set on linux")
}

func pipeCapacity(*os.File) int { return 0 }
