// Package clonevdi wraps the external CloneVDI disk compactor.
//
// CloneVDI does the actual work of producing a compacted copy of a VDI
// image. This package only knows how to locate the executable, gate on
// its version, derive the clone filename, and run one clone at a time.
package clonevdi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ClonePrefix is prepended to the original filename to form the clone
// target. The name is deterministic on purpose: a leftover clone from an
// interrupted run must be detectable before the next run touches the disk.
const ClonePrefix = "Clone of "

const (
	// minVersion is the oldest CloneVDI release whose command line
	// supports compaction.
	minVersion = 3.02

	// The 4.00 release accepts the compact flag but ignores it, so the
	// half-open band [brokenLow, brokenHigh) is rejected outright.
	brokenLow  = 4.00
	brokenHigh = 4.01
)

// fixedBuildURL points the operator at a release without the 4.00 defect.
const fixedBuildURL = "https://forums.virtualbox.org/viewtopic.php?t=22422"

type runner func(ctx context.Context, path string, args ...string) (string, error)

// Compactor invokes a CloneVDI executable.
type Compactor struct {
	path string
	run  runner
}

// New creates a Compactor for the executable at path.
func New(path string) *Compactor {
	return &Compactor{
		path: path,
		run:  execRunner,
	}
}

// Path returns the compactor executable path.
func (c *Compactor) Path() string {
	return c.path
}

// Resolve determines the compactor executable path. The default is a
// CloneVDI binary sitting next to the running tool. When nothing is
// found, locate is asked for a path (the CLI wires an interactive
// prompt); an empty answer fails the run.
func Resolve(explicit string, locate func() (string, error)) (string, error) {
	path := explicit
	if path == "" {
		self, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("cannot locate own executable: %w", err)
		}
		path = filepath.Join(filepath.Dir(self), "CloneVDI")
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if locate == nil {
		return "", fmt.Errorf("compactor not found at %s", path)
	}

	chosen, err := locate()
	if err != nil {
		return "", fmt.Errorf("compactor not found at %s and none selected: %w", path, err)
	}
	if chosen == "" {
		return "", fmt.Errorf("compactor not found at %s and none selected", path)
	}
	if _, err := os.Stat(chosen); err != nil {
		return "", fmt.Errorf("selected compactor not usable: %w", err)
	}
	return chosen, nil
}

// CloneTarget returns the clone path for a disk: same directory, filename
// prefixed with ClonePrefix.
func CloneTarget(diskPath string) string {
	return filepath.Join(filepath.Dir(diskPath), ClonePrefix+filepath.Base(diskPath))
}

// versionToken matches the first decimal version number in the
// executable's version output, e.g. "CloneVDI 3.02 ...".
var versionToken = regexp.MustCompile(`\d+\.\d+`)

// Verify probes the executable's version and rejects unsupported
// releases. It is the compaction preflight: no VM is shut down and no
// disk touched unless this passes.
func (c *Compactor) Verify(ctx context.Context) error {
	if _, err := os.Stat(c.path); err != nil {
		return fmt.Errorf("compactor not found at %s: %w", c.path, err)
	}

	out, err := c.run(ctx, c.path, "--version")
	if err != nil {
		return fmt.Errorf("compactor version probe failed: %w", err)
	}

	tok := versionToken.FindString(out)
	if tok == "" {
		return fmt.Errorf("no version number in compactor output %q", strings.TrimSpace(firstLine(out)))
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return fmt.Errorf("unparsable compactor version %q: %w", tok, err)
	}

	return checkVersion(tok, v)
}

func checkVersion(tok string, v float64) error {
	if v < minVersion {
		return fmt.Errorf("compactor version %s is too old: need %.2f or newer, see %s", tok, minVersion, fixedBuildURL)
	}
	if v >= brokenLow && v < brokenHigh {
		return fmt.Errorf("compactor version %s accepts the compact flag but does not honor it: upgrade, see %s", tok, fixedBuildURL)
	}
	return nil
}

// Clone runs the compactor to produce a compacted copy of src at dst.
// The -kc flags request compaction and preservation of the disk's
// internal UUID, so the hypervisor's machine configuration stays valid
// after the clone is swapped into place.
//
// The call blocks until the compactor exits; there is deliberately no
// timeout, since a large disk can legitimately take a long time. A
// nonzero exit is a failure; the compactor's own diagnostics are the
// source of truth for why.
func (c *Compactor) Clone(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(c.path); err != nil {
		return fmt.Errorf("compactor not found at %s: %w", c.path, err)
	}

	if _, err := c.run(ctx, c.path, src, "-o", dst, "-kc"); err != nil {
		return fmt.Errorf("compaction of %s failed: %w", src, err)
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func execRunner(ctx context.Context, path string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s exited with %d: %s",
				filepath.Base(path), exitErr.ExitCode(),
				strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return string(out), nil
}
