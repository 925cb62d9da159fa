package vbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no VBoxManage executable can be located.
var ErrNotFound = errors.New("VBoxManage not found")

// runner invokes an executable and returns its stdout. It is a function
// field on Client so the output parsers can be tested without a real
// VirtualBox installation.
type runner func(ctx context.Context, path string, args ...string) (string, error)

// Client is a narrow query/control interface over the VBoxManage CLI.
//
// VBoxManage speaks line-oriented text, not a wire protocol, so every
// method here is a thin exec-and-parse wrapper. Parsing is deliberately
// forgiving: anything that doesn't match is treated as unknown rather
// than surfaced as an error.
type Client struct {
	path string
	run  runner
}

// New creates a Client for the VBoxManage executable at path.
func New(path string) *Client {
	return &Client{
		path: path,
		run:  execRunner,
	}
}

// Path returns the VBoxManage executable path this client invokes.
func (c *Client) Path() string {
	return c.path
}

// Resolve determines the VBoxManage executable path to use.
//
// Resolution order:
//  1. The explicit path, if given (must exist).
//  2. $VBOX_INSTALL_PATH/VBoxManage, if the variable is set.
//  3. VBoxManage on $PATH.
//
// Resolution happens once at startup; nothing downstream reads the
// environment again.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("VBoxManage not found at %s: %w", explicit, err)
		}
		return explicit, nil
	}

	if dir := os.Getenv("VBOX_INSTALL_PATH"); dir != "" {
		p := filepath.Join(dir, "VBoxManage")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	p, err := exec.LookPath("VBoxManage")
	if err != nil {
		return "", fmt.Errorf("%w: not on PATH and VBOX_INSTALL_PATH not usable", ErrNotFound)
	}
	return p, nil
}

// execRunner runs the executable and captures stdout. On a nonzero exit
// the tool's stderr is folded into the error, since VBoxManage writes
// its diagnostics there.
func execRunner(ctx context.Context, path string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s %s: %s",
				filepath.Base(path), strings.Join(args, " "),
				strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s %s: %w", filepath.Base(path), strings.Join(args, " "), err)
	}
	return string(out), nil
}
