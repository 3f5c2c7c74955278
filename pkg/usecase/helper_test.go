package usecase_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/nxpatch/pkg/domain/model"
)

type tarEntry struct {
	Name     string
	Body     string
	Type     byte
	Linkname string
}

// buildTarGz creates an in-memory gzip tarball. When globalHeader is set the
// archive starts with a pax global header the way GitHub tarballs do.
func buildTarGz(t *testing.T, globalHeader bool, entries ...tarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if globalHeader {
		gt.NoError(t, tw.WriteHeader(&tar.Header{
			Typeflag:   tar.TypeXGlobalHeader,
			Name:       "pax_global_header",
			PAXRecords: map[string]string{"comment": "0123456789abcdef0123456789abcdef01234567"},
		}))
	}

	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Typeflag: e.Type,
			Linkname: e.Linkname,
			Mode:     0o644,
		}
		switch e.Type {
		case tar.TypeDir:
			hdr.Mode = 0o755
		case tar.TypeReg:
			hdr.Size = int64(len(e.Body))
		}
		gt.NoError(t, tw.WriteHeader(hdr))
		if e.Type == tar.TypeReg {
			_, err := tw.Write([]byte(e.Body))
			gt.NoError(t, err)
		}
	}

	gt.NoError(t, tw.Close())
	gt.NoError(t, gz.Close())
	return buf.Bytes()
}

// libnxTarball mimics a switchbrew/libnx release tarball rooted at top
func libnxTarball(t *testing.T, top string) []byte {
	t.Helper()
	return buildTarGz(t, true,
		tarEntry{Name: top + "/", Type: tar.TypeDir},
		tarEntry{Name: top + "/README.md", Type: tar.TypeReg, Body: "# libnx\n"},
		tarEntry{Name: top + "/nx/", Type: tar.TypeDir},
		tarEntry{Name: top + "/nx/Makefile", Type: tar.TypeReg, Body: "all: lib\n"},
		tarEntry{Name: top + "/nx/include/", Type: tar.TypeDir},
		tarEntry{Name: top + "/nx/include/switch.h", Type: tar.TypeReg, Body: "// new switch.h\n"},
	)
}

func writeArchive(t *testing.T, dir, tag string, data []byte) *model.Archive {
	t.Helper()
	release := &model.ReleaseInfo{Tag: tag}
	p := filepath.Join(dir, release.ArchiveFileName())
	gt.NoError(t, os.WriteFile(p, data, 0o644))
	return &model.Archive{Path: p, Tag: tag, Size: int64(len(data))}
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		gt.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		gt.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// snapshot returns every regular file below root keyed by slash path
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	gt.NoError(t, err)
	return files
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// fixedConfirmer answers every question the same way and records the questions
type fixedConfirmer struct {
	answer bool
	asked  []string
}

func fixed(answer bool) *fixedConfirmer {
	return &fixedConfirmer{answer: answer}
}

func (c *fixedConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	c.asked = append(c.asked, question)
	return c.answer, nil
}
