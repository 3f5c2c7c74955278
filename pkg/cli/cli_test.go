package cli_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/nxpatch/pkg/cli"
)

type fakeGitHub struct {
	server   *httptest.Server
	requests atomic.Int32
}

func libnxTarball(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	gt.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": "cafebabe"},
	}))
	for _, dir := range []string{"switchbrew-libnx-abc123/", "switchbrew-libnx-abc123/nx/"} {
		gt.NoError(t, tw.WriteHeader(&tar.Header{Name: dir, Typeflag: tar.TypeDir, Mode: 0o755}))
	}
	files := map[string]string{
		"switchbrew-libnx-abc123/README.md":   "# libnx\n",
		"switchbrew-libnx-abc123/nx/Makefile": "all: lib\n",
	}
	for name, body := range files {
		gt.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		gt.NoError(t, err)
	}

	gt.NoError(t, tw.Close())
	gt.NoError(t, gz.Close())
	return buf.Bytes()
}

// newFakeGitHub serves the latest release endpoint and the tarball it points at
func newFakeGitHub(t *testing.T, truncate bool) *fakeGitHub {
	t.Helper()

	tarball := libnxTarball(t)
	f := &fakeGitHub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/switchbrew/libnx/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"tag_name":"v4.9.0","tarball_url":"%s/tarball/v4.9.0"}`, f.server.URL)
	})
	mux.HandleFunc("/tarball/v4.9.0", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if truncate {
			w.Header().Set("Content-Length", fmt.Sprint(len(tarball)*4))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(tarball[:len(tarball)/2])
			return
		}
		_, _ = w.Write(tarball)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

type runResult struct {
	err    error
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := cli.Run(context.Background(), append([]string{"nxpatch"}, args...),
		cli.WithStdin(strings.NewReader(stdin)),
		cli.WithStdout(&stdout),
		cli.WithStderr(&stderr),
	)
	return runResult{err: err, stdout: stdout.String(), stderr: stderr.String()}
}

func mkProject(t *testing.T, files map[string]string) string {
	t.Helper()
	project := filepath.Join(t.TempDir(), "project")
	gt.NoError(t, os.MkdirAll(project, 0o755))
	for name, body := range files {
		p := filepath.Join(project, name)
		gt.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		gt.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return project
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	gt.NoError(t, err)
	return string(b)
}

func entries(t *testing.T, dir string) int {
	t.Helper()
	list, err := os.ReadDir(dir)
	gt.NoError(t, err)
	return len(list)
}

func TestRun_InvalidPath(t *testing.T) {
	gh := newFakeGitHub(t, false)
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	res := run(t, "", "--github-api-url", gh.server.URL, missing)
	gt.Error(t, res.err)
	gt.Number(t, cli.ExitCode(res.err)).Equal(1)
	gt.String(t, res.stdout).Contains("Error: The specified path '" + missing + "' is not a valid directory.")
	gt.Number(t, gh.requests.Load()).Equal(int32(0))
}

func TestRun_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "Makefile")
	gt.NoError(t, os.WriteFile(file, []byte("all:\n"), 0o644))

	res := run(t, "", file)
	gt.Number(t, cli.ExitCode(res.err)).Equal(1)
}

func TestRun_MissingArgument(t *testing.T) {
	res := run(t, "")
	gt.Number(t, cli.ExitCode(res.err)).Equal(1)
	gt.String(t, res.stdout).Contains("project_path is required")
}

func TestRun_ReplaceWithYes(t *testing.T) {
	gh := newFakeGitHub(t, false)
	work := t.TempDir()
	project := mkProject(t, map[string]string{"libnx/old.h": "// old\n", "source/main.c": "int main(){}\n"})

	res := run(t, "", "--yes", "--github-api-url", gh.server.URL, "--work-dir", work, project)
	gt.NoError(t, res.err)
	gt.Number(t, cli.ExitCode(res.err)).Equal(0)

	gt.Value(t, readFile(t, filepath.Join(project, "libnx", "Makefile"))).Equal("all: lib\n")
	_, err := os.Stat(filepath.Join(project, "libnx", "old.h"))
	gt.Value(t, os.IsNotExist(err)).Equal(true)
	gt.Value(t, readFile(t, filepath.Join(project, "source", "main.c"))).Equal("int main(){}\n")

	gt.String(t, res.stdout).Contains("Project path: " + project)
	gt.String(t, res.stdout).Contains("will be DELETED")
	gt.String(t, res.stdout).Contains("Successfully patched libnx source.")
	gt.String(t, res.stdout).Contains("make clean")
	gt.Value(t, strings.Contains(res.stdout, "(y/N)")).Equal(false)
	gt.Number(t, entries(t, work)).Equal(0)
}

func TestRun_TrailingYesFlag(t *testing.T) {
	gh := newFakeGitHub(t, false)
	work := t.TempDir()
	project := mkProject(t, map[string]string{"nx/old.h": "// old\n"})

	res := run(t, "", "--github-api-url", gh.server.URL, "--work-dir", work, project, "-y")
	gt.NoError(t, res.err)
	gt.Value(t, readFile(t, filepath.Join(project, "nx", "Makefile"))).Equal("all: lib\n")
}

func TestRun_Declined(t *testing.T) {
	gh := newFakeGitHub(t, false)
	work := t.TempDir()
	project := mkProject(t, map[string]string{"libnx/old.h": "// old\n"})

	res := run(t, "n\n", "--github-api-url", gh.server.URL, "--work-dir", work, project)
	gt.NoError(t, res.err)
	gt.String(t, res.stdout).Contains("Are you sure you want to continue? (y/N): ")
	gt.String(t, res.stdout).Contains("Aborting. No changes have been made.")

	gt.Value(t, readFile(t, filepath.Join(project, "libnx", "old.h"))).Equal("// old\n")
	gt.Number(t, entries(t, work)).Equal(0)
}

func TestRun_ConfirmedCreatesTarget(t *testing.T) {
	gh := newFakeGitHub(t, false)
	work := t.TempDir()
	project := mkProject(t, map[string]string{"Makefile": "all:\n"})

	res := run(t, "Y\n", "--github-api-url", gh.server.URL, "--work-dir", work, project)
	gt.NoError(t, res.err)
	gt.String(t, res.stdout).Contains("Note: No existing libnx folder found.")
	gt.Value(t, readFile(t, filepath.Join(project, "libnx", "Makefile"))).Equal("all: lib\n")
}

func TestRun_MissingTargetAbort(t *testing.T) {
	gh := newFakeGitHub(t, false)
	work := t.TempDir()
	project := mkProject(t, map[string]string{"Makefile": "all:\n"})

	res := run(t, "", "--yes", "--missing-target", "abort", "--github-api-url", gh.server.URL, "--work-dir", work, project)
	gt.NoError(t, res.err)
	gt.String(t, res.stdout).Contains("dkp-pacman")
	_, err := os.Stat(filepath.Join(project, "libnx"))
	gt.Value(t, os.IsNotExist(err)).Equal(true)
	gt.Number(t, entries(t, work)).Equal(0)

	res = run(t, "", "--yes", "--strict", "--missing-target", "abort", "--github-api-url", gh.server.URL, "--work-dir", work, project)
	gt.Error(t, res.err)
	gt.Number(t, cli.ExitCode(res.err)).Equal(2)
}

func TestRun_TruncatedDownload(t *testing.T) {
	gh := newFakeGitHub(t, true)
	work := t.TempDir()
	project := mkProject(t, map[string]string{"libnx/old.h": "// old\n"})

	res := run(t, "", "--yes", "--github-api-url", gh.server.URL, "--work-dir", work, project)
	gt.NoError(t, res.err)
	gt.String(t, res.stdout).Contains("An error occurred while downloading")
	gt.String(t, res.stdout).Contains("Failed to download libnx. Check your connection to GitHub.")

	gt.Value(t, readFile(t, filepath.Join(project, "libnx", "old.h"))).Equal("// old\n")
	gt.Number(t, entries(t, work)).Equal(0)
}

func TestRun_InvalidMissingTarget(t *testing.T) {
	project := mkProject(t, nil)

	res := run(t, "", "--missing-target", "explode", project)
	gt.Error(t, res.err)
	gt.Number(t, cli.ExitCode(res.err)).Equal(1)
}

func TestRun_ConfigFileCandidates(t *testing.T) {
	gh := newFakeGitHub(t, false)
	work := t.TempDir()
	project := mkProject(t, map[string]string{"vendor/nx/old.h": "// old\n"})
	cfgPath := filepath.Join(t.TempDir(), "nxpatch.toml")
	gt.NoError(t, os.WriteFile(cfgPath, []byte(`
[target]
candidates = ["thirdparty", "libnx"]
`), 0o644))
	gt.NoError(t, os.MkdirAll(filepath.Join(project, "thirdparty"), 0o755))

	res := run(t, "", "--yes", "--config", cfgPath, "--github-api-url", gh.server.URL, "--work-dir", work, project)
	gt.NoError(t, res.err)
	gt.Value(t, readFile(t, filepath.Join(project, "thirdparty", "Makefile"))).Equal("all: lib\n")
	gt.Value(t, readFile(t, filepath.Join(project, "vendor", "nx", "old.h"))).Equal("// old\n")
}

// lockedBuffer is a bytes.Buffer safe for one writer and concurrent readers
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_InterruptedAtPrompt(t *testing.T) {
	gh := newFakeGitHub(t, false)
	work := t.TempDir()
	project := mkProject(t, map[string]string{"libnx/old.h": "// old\n"})

	stdin, stdinWriter := io.Pipe()
	defer stdinWriter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr lockedBuffer
	done := make(chan error, 1)
	go func() {
		done <- cli.Run(ctx,
			[]string{"nxpatch", "--github-api-url", gh.server.URL, "--work-dir", work, project},
			cli.WithStdin(stdin),
			cli.WithStdout(&stdout),
			cli.WithStderr(&stderr),
		)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(stdout.String(), "(y/N)") {
		if time.Now().After(deadline) {
			t.Fatalf("prompt was not shown: %s", stdout.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		gt.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	gt.String(t, stdout.String()).Contains("Interrupted. No changes have been made.")
	gt.Value(t, readFile(t, filepath.Join(project, "libnx", "old.h"))).Equal("// old\n")
	gt.Number(t, entries(t, work)).Equal(0)
}

func TestExitCode(t *testing.T) {
	gt.Number(t, cli.ExitCode(nil)).Equal(0)
	gt.Number(t, cli.ExitCode(fmt.Errorf("flag provided but not defined"))).Equal(1)
	gt.Number(t, cli.ExitCode(fmt.Errorf("wrapped: %w", &cli.ExitError{Code: 2}))).Equal(2)
}
