package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
)

// Exists reports whether path exists. Permission errors count as existing
// so that callers do not silently treat an unreadable directory as absent.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// rename is replaced in tests to simulate moves across filesystems
var rename = os.Rename

// Move renames src to dst. When the rename crosses filesystems the tree is
// copied and src removed afterwards.
func Move(src, dst string) error {
	err := rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return goerr.Wrap(err, "failed to rename", goerr.V("src", src), goerr.V("dst", dst))
	}

	if err := CopyTree(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return err
	}
	if err := os.RemoveAll(src); err != nil {
		return goerr.Wrap(err, "failed to remove source after copy", goerr.V("src", src))
	}
	return nil
}

// CopyTree copies src (a file or directory) to dst, keeping permission bits
// and symlinks. dst must not exist.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return goerr.Wrap(walkErr, "failed to walk source", goerr.V("path", path))
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return goerr.Wrap(err, "failed to compute relative path", goerr.V("path", path))
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return goerr.Wrap(err, "failed to stat source", goerr.V("path", path))
		}

		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return goerr.Wrap(err, "failed to create directory", goerr.V("path", target))
			}
			return nil

		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return goerr.Wrap(err, "failed to read symlink", goerr.V("path", path))
			}
			if err := os.Symlink(link, target); err != nil {
				return goerr.Wrap(err, "failed to create symlink", goerr.V("path", target))
			}
			return nil

		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())

		default:
			// Sockets, devices and pipes never appear in a source tarball
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return goerr.Wrap(err, "failed to open source file", goerr.V("path", src))
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return goerr.Wrap(err, "failed to create destination file", goerr.V("path", dst))
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = goerr.Wrap(closeErr, "failed to close destination file", goerr.V("path", dst))
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return goerr.Wrap(err, "failed to copy file content", goerr.V("src", src), goerr.V("dst", dst))
	}
	return nil
}
