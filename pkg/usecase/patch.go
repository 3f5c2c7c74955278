package usecase

import (
	"context"
	"io"
	"path/filepath"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nxpatch/pkg/domain/interfaces"
	"github.com/m-mizutani/nxpatch/pkg/domain/model"
	"github.com/m-mizutani/nxpatch/pkg/utils/console"
)

type patchUseCase struct {
	githubClient interfaces.GitHubClient
	replacer     interfaces.LibraryReplacer
	console      *console.Printer
	downloadDir  string
}

// PatchOption is a functional option for the patch use case
type PatchOption func(*patchUseCase)

// WithConsole sets where user-facing progress messages are printed
func WithConsole(p *console.Printer) PatchOption {
	return func(uc *patchUseCase) {
		uc.console = p
	}
}

// WithDownloadDir sets the directory the archive is downloaded into
func WithDownloadDir(dir string) PatchOption {
	return func(uc *patchUseCase) {
		uc.downloadDir = dir
	}
}

// NewPatch creates a new instance of PatchUseCase
func NewPatch(githubClient interfaces.GitHubClient, replacer interfaces.LibraryReplacer, opts ...PatchOption) interfaces.PatchUseCase {
	uc := &patchUseCase{
		githubClient: githubClient,
		replacer:     replacer,
		console:      console.New(io.Discard, true),
		downloadDir:  ".",
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Patch locates the latest release, downloads its tarball and hands it to
// the replacer. Nothing in the project changes before the replacer runs.
func (uc *patchUseCase) Patch(ctx context.Context, req *model.PatchRequest) (*model.PatchResult, error) {
	logger := ctxlog.From(ctx)

	logger.Info("Processing patch request",
		"project", req.ProjectPath,
		"skip_confirm", req.SkipConfirm,
	)

	uc.console.Infof("Finding latest libnx release...")
	release, err := uc.githubClient.LatestRelease(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to locate latest release")
	}

	uc.console.Infof("Downloading from %s", release.ArchiveURL)
	archive, err := uc.githubClient.DownloadArchive(ctx, release, uc.downloadDir)
	if err != nil {
		return &model.PatchResult{Release: release}, goerr.Wrap(err, "failed to download release archive", goerr.V("tag", release.Tag))
	}
	uc.console.Infof("Downloaded %s", filepath.Base(archive.Path))

	logger.Info("Downloaded release archive",
		"tag", release.Tag,
		"path", archive.Path,
		"size_bytes", archive.Size,
	)

	target, outcome, err := uc.replacer.Replace(ctx, archive, req)
	result := &model.PatchResult{
		Release: release,
		Target:  target,
		Outcome: outcome,
	}
	if err != nil {
		return result, goerr.Wrap(err, "failed to replace library", goerr.V("project", req.ProjectPath))
	}

	return result, nil
}
