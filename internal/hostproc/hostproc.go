// Package hostproc terminates leftover VirtualBox host processes.
//
// After all machines are shut down, the VirtualBox GUI and the VBoxSVC
// background helper can keep the disk files open. Both are handled
// best-effort: a failed kill is a warning for the caller, never a reason
// to stop the run.
package hostproc

import (
	"context"
	"errors"
	"os/exec"
)

const (
	// GUIProcess is the VirtualBox manager application process name.
	GUIProcess = "VirtualBox"

	// HelperProcess is the background service helper. It has no window,
	// so there is no graceful close to attempt; it is only ever killed.
	HelperProcess = "VBoxSVC"
)

type runner func(ctx context.Context, path string, args ...string) error

// Manager finds and signals host processes by name, via pgrep/pkill.
type Manager struct {
	run runner
}

// New creates a Manager using the host's pgrep and pkill.
func New() *Manager {
	return &Manager{run: execRunner}
}

// Running reports whether a process with exactly the given name exists.
// Probe failures read as "not running"; the caller then simply skips
// termination, which matches the best-effort contract.
func (m *Manager) Running(ctx context.Context, name string) bool {
	return m.run(ctx, "pgrep", "-x", name) == nil
}

// Close asks the named process to exit cleanly (SIGTERM, the signal a
// window-close request delivers to a well-behaved GUI).
func (m *Manager) Close(ctx context.Context, name string) error {
	return m.run(ctx, "pkill", "-TERM", "-x", name)
}

// Kill forcibly terminates the named process.
func (m *Manager) Kill(ctx context.Context, name string) error {
	return m.run(ctx, "pkill", "-KILL", "-x", name)
}

func execRunner(ctx context.Context, path string, args ...string) error {
	err := exec.CommandContext(ctx, path, args...).Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// pgrep/pkill exit 1 when nothing matched.
			return errors.New("no matching process")
		}
		return err
	}
	return nil
}
