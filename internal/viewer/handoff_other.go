//go:build !unix

package viewer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Without exec(2) the viewer runs as a foreground child sharing the terminal.
// Signals reach both processes and the wrapper stays the process-group owner
// until the viewer exits.
func handoff(path string, argv []string) error {
	cmd := exec.Command(path, argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("run %s: %w", path, err)
	}
	return nil
}
