//go:build unix

package viewer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func handoff(path string, argv []string) error {
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}
