package fileutil

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// ErrDestinationExists is returned by MoveFile when dst is already present.
var ErrDestinationExists = errors.New("destination already exists")

// MoveFile moves src to dst, creating dst's parent directories. An existing
// dst is never replaced. Across filesystems the data is copied, checked
// against the source digest, and only then is src removed.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	err := renameNoReplace(src, dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EEXIST):
		return fmt.Errorf("move %s: %w", dst, ErrDestinationExists)
	case !errors.Is(err, unix.EXDEV):
		return fmt.Errorf("rename: %w", err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		return fmt.Errorf("cross-device copy: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// renameNoReplace uses renameat2(RENAME_NOREPLACE) where the kernel and
// filesystem support it, and a stat-then-rename otherwise.
func renameNoReplace(src, dst string) error {
	err := unix.Renameat2(unix.AT_FDCWD, src, unix.AT_FDCWD, dst, unix.RENAME_NOREPLACE)
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS) {
		if _, statErr := os.Lstat(dst); statErr == nil {
			return unix.EEXIST
		}
		return os.Rename(src, dst)
	}
	if err != nil {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: err}
	}
	return nil
}

// CopyFileVerified copies src to dst through a temporary sibling file, reads
// the copy back to compare SHA-256 digests, and links it into place without
// replacing an existing dst. src's permission bits are preserved.
func CopyFileVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".partial-"+uuid.NewString())
	defer os.Remove(tmp)

	srcSum, written, err := copyAndHash(in, tmp, info.Mode().Perm())
	if err != nil {
		return err
	}
	if written != info.Size() {
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	dstSum, err := hashFile(tmp)
	if err != nil {
		return fmt.Errorf("verify copy: %w", err)
	}
	if !slices.Equal(srcSum, dstSum) {
		return errors.New("copy hash mismatch: file corrupted during copy")
	}

	if err := os.Link(tmp, dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("move %s: %w", dst, ErrDestinationExists)
		}
		return fmt.Errorf("link into place: %w", err)
	}
	return nil
}

func copyAndHash(in io.Reader, path string, perm os.FileMode) ([]byte, int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return nil, 0, fmt.Errorf("create temp copy: %w", err)
	}
	h := sha256.New()
	n, err := io.Copy(out, io.TeeReader(in, h))
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, n, fmt.Errorf("write temp copy: %w", err)
	}
	return h.Sum(nil), n, nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
