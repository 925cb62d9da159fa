// Package trash moves files to the freedesktop.org trash instead of
// deleting them, so a compacted-over disk image stays recoverable.
//
// Layout follows the XDG Trash specification: each trashed file lands in
// <trash>/files/ with a matching <trash>/info/<name>.trashinfo sidecar
// recording the original path and deletion time. Files on the same
// filesystem as the user's home go to the home trash; files on other
// mounts go to that mount's own .Trash/.Trash-<uid> directory, which is
// what makes "empty the trash for this drive only" meaningful.
package trash

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// Bin is a recycler over the XDG trash layout.
type Bin struct {
	now    func() time.Time
	dirFor func(path string) (string, error)
}

// New creates a Bin resolving trash directories per the XDG spec.
func New() *Bin {
	return &Bin{
		now:    time.Now,
		dirFor: trashDirFor,
	}
}

// Trash moves path into the trash of the filesystem it lives on. The
// move is a rename, so the file's bytes are never copied.
func (b *Bin) Trash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	root, err := b.dirFor(abs)
	if err != nil {
		return fmt.Errorf("no trash directory for %s: %w", abs, err)
	}

	filesDir := filepath.Join(root, "files")
	infoDir := filepath.Join(root, "info")
	for _, d := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("failed to create trash directory: %w", err)
		}
	}

	name, infoFile, err := b.claimName(infoDir, filepath.Base(abs), abs)
	if err != nil {
		return err
	}

	if err := os.Rename(abs, filepath.Join(filesDir, name)); err != nil {
		// Roll back the sidecar so a later run can reuse the name.
		_ = os.Remove(infoFile)
		return fmt.Errorf("failed to move %s to trash: %w", abs, err)
	}
	return nil
}

// Empty permanently deletes everything in the trash of the filesystem
// holding path. Other filesystems' trash directories are untouched.
func (b *Bin) Empty(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	root, err := b.dirFor(abs)
	if err != nil {
		return fmt.Errorf("no trash directory for %s: %w", abs, err)
	}

	var firstErr error
	for _, sub := range []string{"files", "info"} {
		dir := filepath.Join(root, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// claimName reserves a unique name in the trash by exclusively creating
// the .trashinfo sidecar. Collisions get a numeric suffix before the
// extension, e.g. "a.vdi", "a.2.vdi", "a.3.vdi".
func (b *Bin) claimName(infoDir, base, originalPath string) (name, infoFile string, err error) {
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	for i := 1; ; i++ {
		name = base
		if i > 1 {
			name = fmt.Sprintf("%s.%d%s", stem, i, ext)
		}
		infoFile = filepath.Join(infoDir, name+".trashinfo")

		f, err := os.OpenFile(infoFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("failed to write trash info: %w", err)
		}

		info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
			(&url.URL{Path: originalPath}).EscapedPath(),
			b.now().Format("2006-01-02T15:04:05"))
		if _, err := f.WriteString(info); err != nil {
			_ = f.Close()
			_ = os.Remove(infoFile)
			return "", "", fmt.Errorf("failed to write trash info: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", "", err
		}
		return name, infoFile, nil
	}
}

// trashDirFor resolves the trash directory for the filesystem holding
// path: the home trash when path shares the home filesystem, otherwise
// the mount's .Trash/<uid> (admin-created) or .Trash-<uid> directory.
func trashDirFor(path string) (string, error) {
	dir := filepath.Dir(path)
	dev, err := deviceOf(dir)
	if err != nil {
		return "", err
	}

	if home, err := os.UserHomeDir(); err == nil {
		if homeDev, err := deviceOf(home); err == nil && homeDev == dev {
			if data := os.Getenv("XDG_DATA_HOME"); data != "" {
				return filepath.Join(data, "Trash"), nil
			}
			return filepath.Join(home, ".local", "share", "Trash"), nil
		}
	}

	top, err := mountPointOf(dir, dev)
	if err != nil {
		return "", err
	}

	uid := strconv.Itoa(os.Getuid())
	shared := filepath.Join(top, ".Trash")
	if fi, err := os.Lstat(shared); err == nil && fi.IsDir() && fi.Mode()&os.ModeSticky != 0 {
		return filepath.Join(shared, uid), nil
	}
	return filepath.Join(top, ".Trash-"+uid), nil
}

// mountPointOf climbs from dir toward / until the device number changes,
// returning the top directory of dir's filesystem.
func mountPointOf(dir string, dev uint64) (string, error) {
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir, nil
		}
		parentDev, err := deviceOf(parent)
		if err != nil {
			return "", err
		}
		if parentDev != dev {
			return dir, nil
		}
		dir = parent
	}
}

func deviceOf(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("no device information for %s", path)
	}
	return uint64(st.Dev), nil
}
