package usecase

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nxpatch/pkg/domain/model"
	"github.com/m-mizutani/nxpatch/pkg/domain/types"
)

// extractTarball extracts a gzip compressed tarball into destDir.
//
// The top-level directory is taken from the first member. A non-nil tree is
// returned as soon as it is known, even together with an error, so callers
// can remove whatever was partially extracted.
func extractTarball(ctx context.Context, archivePath, destDir string) (*model.ExtractedTree, error) {
	logger := ctxlog.From(ctx)

	destDir, err := filepath.Abs(destDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve extraction directory", goerr.V("dir", destDir), goerr.T(types.ErrTagFilesystem))
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open archive", goerr.V("path", archivePath), goerr.T(types.ErrTagArchive))
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gzip reader", goerr.V("path", archivePath), goerr.T(types.ErrTagArchive))
	}
	defer gz.Close()

	var tree *model.ExtractedTree
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return tree, goerr.Wrap(err, "extraction cancelled")
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return tree, goerr.Wrap(err, "failed to read tar entry", goerr.V("path", archivePath), goerr.T(types.ErrTagArchive))
		}

		// GitHub tarballs start with a pax global header carrying the commit id
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name := memberName(hdr.Name)
		if name == "" {
			continue
		}

		if tree == nil {
			topLevel := strings.SplitN(name, "/", 2)[0]
			if topLevel == ".." {
				return nil, goerr.New("invalid top-level entry in archive", goerr.V("entry", hdr.Name), goerr.T(types.ErrTagArchive))
			}
			tree = &model.ExtractedTree{
				Root:     filepath.Join(destDir, topLevel),
				TopLevel: topLevel,
			}
			logger.Debug("Detected top-level directory", "top_level", topLevel)
		}

		// Anything outside the top-level directory would survive cleanup
		if !within(name, tree.TopLevel) {
			return tree, goerr.New("archive entry outside the top-level directory",
				goerr.V("entry", hdr.Name),
				goerr.V("top_level", tree.TopLevel),
				goerr.T(types.ErrTagArchive),
			)
		}

		if err := extractEntry(tr, hdr, name, destDir, tree.TopLevel); err != nil {
			return tree, goerr.Wrap(err, "failed to extract entry", goerr.V("entry", hdr.Name))
		}

		tree.Files = append(tree.Files, name)
		if hdr.Typeflag == tar.TypeReg {
			tree.Size += hdr.Size
		}
	}

	if tree == nil {
		return nil, goerr.New("the archive is empty", goerr.V("path", archivePath), goerr.T(types.ErrTagArchive))
	}

	return tree, nil
}

// memberName normalizes a tar member name to a slash separated relative path
func memberName(name string) string {
	name = path.Clean(strings.TrimLeft(name, "/"))
	if name == "." {
		return ""
	}
	return name
}

// within reports whether the slash separated name is dir or lies below it
func within(name, dir string) bool {
	return name == dir || strings.HasPrefix(name, dir+"/")
}

// extractEntry writes a single tar member below destDir. Links must resolve
// inside topLevel and no member may be written through a symlink created
// by an earlier member.
func extractEntry(tr *tar.Reader, hdr *tar.Header, name, destDir, topLevel string) error {
	destPath, err := securePath(destDir, name)
	if err != nil {
		return err
	}
	if err := checkNoSymlinkParents(destDir, name); err != nil {
		return err
	}
	if err := removeSymlink(destPath); err != nil {
		return err
	}

	mode := hdr.FileInfo().Mode().Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(destPath, mode|0o700); err != nil {
			return goerr.Wrap(err, "failed to create directory", goerr.V("path", destPath), goerr.T(types.ErrTagFilesystem))
		}
		return nil

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return goerr.Wrap(err, "failed to create parent directories", goerr.V("path", filepath.Dir(destPath)), goerr.T(types.ErrTagFilesystem))
		}
		return writeFile(tr, destPath, mode)

	case tar.TypeSymlink:
		linkTarget := hdr.Linkname
		if filepath.IsAbs(linkTarget) || path.IsAbs(linkTarget) {
			return goerr.New("absolute symlink in archive", goerr.V("entry", name), goerr.V("link", linkTarget), goerr.T(types.ErrTagArchive))
		}
		// Resolved relative to the link's own directory
		if !within(path.Join(path.Dir(name), filepath.ToSlash(linkTarget)), topLevel) {
			return goerr.New("symlink points outside the top-level directory",
				goerr.V("entry", name),
				goerr.V("link", linkTarget),
				goerr.T(types.ErrTagArchive),
			)
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return goerr.Wrap(err, "failed to create parent directories", goerr.V("path", filepath.Dir(destPath)), goerr.T(types.ErrTagFilesystem))
		}
		_ = os.Remove(destPath)
		if err := os.Symlink(linkTarget, destPath); err != nil {
			return goerr.Wrap(err, "failed to create symlink", goerr.V("path", destPath), goerr.T(types.ErrTagFilesystem))
		}
		return nil

	case tar.TypeLink:
		srcName := memberName(hdr.Linkname)
		if !within(srcName, topLevel) {
			return goerr.New("hard link points outside the top-level directory",
				goerr.V("entry", name),
				goerr.V("link", hdr.Linkname),
				goerr.T(types.ErrTagArchive),
			)
		}
		src, err := securePath(destDir, srcName)
		if err != nil {
			return err
		}
		if err := checkNoSymlinkParents(destDir, srcName); err != nil {
			return err
		}
		_ = os.Remove(destPath)
		if err := os.Link(src, destPath); err != nil {
			return goerr.Wrap(err, "failed to create hard link", goerr.V("path", destPath), goerr.T(types.ErrTagFilesystem))
		}
		return nil

	default:
		// Device nodes, fifos and the like have no place in a source tree
		return nil
	}
}

// securePath joins name onto destDir and rejects results that escape destDir
func securePath(destDir, name string) (string, error) {
	destPath := filepath.Join(destDir, filepath.FromSlash(name))
	if destPath != destDir && !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", goerr.New("invalid file path detected",
			goerr.V("entry", name),
			goerr.V("dest", destPath),
			goerr.T(types.ErrTagArchive),
		)
	}
	return destPath, nil
}

// checkNoSymlinkParents rejects name when any of its existing parent
// directories below destDir is a symlink
func checkNoSymlinkParents(destDir, name string) error {
	dir := path.Dir(name)
	if dir == "." {
		return nil
	}

	cur := destDir
	for _, elem := range strings.Split(dir, "/") {
		cur = filepath.Join(cur, elem)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to inspect parent directory", goerr.V("path", cur), goerr.T(types.ErrTagFilesystem))
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return goerr.New("archive entry is placed through a symlink",
				goerr.V("entry", name),
				goerr.V("symlink", cur),
				goerr.T(types.ErrTagArchive),
			)
		}
	}
	return nil
}

// removeSymlink deletes destPath when it is a symlink so that writing the
// member never follows it
func removeSymlink(destPath string) error {
	info, err := os.Lstat(destPath)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	if err := os.Remove(destPath); err != nil {
		return goerr.Wrap(err, "failed to replace symlink", goerr.V("path", destPath), goerr.T(types.ErrTagFilesystem))
	}
	return nil
}

func writeFile(r io.Reader, destPath string, mode os.FileMode) (err error) {
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return goerr.Wrap(err, "failed to create destination file", goerr.V("path", destPath), goerr.T(types.ErrTagFilesystem))
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = goerr.Wrap(closeErr, "failed to close destination file", goerr.V("path", destPath), goerr.T(types.ErrTagFilesystem))
		}
	}()

	if _, err := io.Copy(out, r); err != nil {
		return goerr.Wrap(err, "failed to copy file content", goerr.V("path", destPath), goerr.T(types.ErrTagArchive))
	}
	return nil
}
