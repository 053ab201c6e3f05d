// Package viewer hands a cached result file to the external interactive
// viewer.
package viewer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const InstallHint = "Please install it to use this tool: https://www.visidata.org/install/"

var ErrNotFound = errors.New("viewer not found in PATH")

type Viewer struct {
	Program string
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

func New(program string) *Viewer {
	return &Viewer{Program: strings.TrimSpace(program)}
}

// Locate resolves the viewer through the executable search path.
func (v *Viewer) Locate() (string, error) {
	if v.Program == "" {
		return "", fmt.Errorf("%w: no viewer program configured", ErrNotFound)
	}
	lookPath := v.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(v.Program)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, v.Program, err)
	}
	return path, nil
}

// Handoff replaces the current process with the viewer opening file. On
// success it does not return where the platform supports exec.
func (v *Viewer) Handoff(file string) error {
	path, err := v.Locate()
	if err != nil {
		return err
	}
	_ = os.Stdout.Sync()
	_ = os.Stderr.Sync()
	return handoff(path, []string{v.Program, file})
}

// ExitError carries the viewer's exit status on platforms where it runs as a
// child process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("viewer exited with status %d", e.Code)
}
