package interfaces

import (
	"context"

	"github.com/m-mizutani/nxpatch/pkg/domain/model"
)

// ReleaseLocator finds the latest release of the source repository
type ReleaseLocator interface {
	// LatestRelease fetches the latest release and its source tarball URL
	LatestRelease(ctx context.Context) (*model.ReleaseInfo, error)
}

// ArchiveFetcher downloads release tarballs
type ArchiveFetcher interface {
	// DownloadArchive streams the release tarball into dir
	DownloadArchive(ctx context.Context, release *model.ReleaseInfo, dir string) (*model.Archive, error)
}

// GitHubClient defines operations for interacting with GitHub releases
type GitHubClient interface {
	ReleaseLocator
	ArchiveFetcher
}
