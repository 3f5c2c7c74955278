package github

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nxpatch/pkg/domain/interfaces"
	"github.com/m-mizutani/nxpatch/pkg/domain/model"
	"github.com/m-mizutani/nxpatch/pkg/domain/types"
)

const (
	// DefaultOwner and DefaultRepo identify the libnx repository
	DefaultOwner = "switchbrew"
	DefaultRepo  = "libnx"

	// DefaultAPIURL is the public GitHub REST API endpoint
	DefaultAPIURL = "https://api.github.com/"

	// chunkSize bounds memory use while streaming the archive to disk
	chunkSize = 8 << 10
)

// config holds internal client configuration
type config struct {
	owner      string
	repo       string
	apiURL     string
	token      string
	userAgent  string
	httpClient *http.Client
}

// Option is a functional option for client configuration
type Option func(*config)

// WithRepo sets the repository to read releases from
func WithRepo(owner, repo string) Option {
	return func(c *config) {
		c.owner = owner
		c.repo = repo
	}
}

// WithAPIURL overrides the GitHub API base URL
func WithAPIURL(apiURL string) Option {
	return func(c *config) {
		c.apiURL = apiURL
	}
}

// WithToken sets a GitHub token for authenticated requests
func WithToken(token string) Option {
	return func(c *config) {
		c.token = token
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) Option {
	return func(c *config) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

type client struct {
	githubClient *github.Client
	owner        string
	repo         string
}

// NewClient creates a GitHub releases client
func NewClient(opts ...Option) (interfaces.GitHubClient, error) {
	cfg := &config{
		owner:      DefaultOwner,
		repo:       DefaultRepo,
		apiURL:     DefaultAPIURL,
		userAgent:  types.AppName + "/" + types.Version,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.owner == "" || cfg.repo == "" {
		return nil, goerr.New("repository owner and name are required",
			goerr.V("owner", cfg.owner),
			goerr.V("repo", cfg.repo),
			goerr.T(types.ErrTagInput),
		)
	}

	baseURL, err := url.Parse(cfg.apiURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid GitHub API URL", goerr.V("url", cfg.apiURL), goerr.T(types.ErrTagInput))
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, goerr.New("GitHub API URL must be absolute", goerr.V("url", cfg.apiURL), goerr.T(types.ErrTagInput))
	}
	// go-github requires a trailing slash on BaseURL
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}

	githubClient := github.NewClient(cfg.httpClient)
	if cfg.token != "" {
		githubClient = githubClient.WithAuthToken(cfg.token)
	}
	githubClient.BaseURL = baseURL
	githubClient.UserAgent = cfg.userAgent

	return &client{
		githubClient: githubClient,
		owner:        cfg.owner,
		repo:         cfg.repo,
	}, nil
}

// LatestRelease fetches the latest release and extracts its source tarball URL
func (c *client) LatestRelease(ctx context.Context) (*model.ReleaseInfo, error) {
	logger := ctxlog.From(ctx)

	release, _, err := c.githubClient.Repositories.GetLatestRelease(ctx, c.owner, c.repo)
	if err != nil {
		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			return nil, goerr.Wrap(err, "GitHub API rate limit exceeded",
				goerr.V("reset_at", rateErr.Rate.Reset.Time),
				goerr.T(types.ErrTagNetwork),
			)
		}
		return nil, goerr.Wrap(err, "failed to fetch latest release",
			goerr.V("owner", c.owner),
			goerr.V("repo", c.repo),
			goerr.T(types.ErrTagNetwork),
		)
	}

	info := &model.ReleaseInfo{
		Tag:        release.GetTagName(),
		ArchiveURL: release.GetTarballURL(),
	}
	if info.Tag == "" {
		info.Tag = model.DefaultTag
	}

	if info.ArchiveURL == "" {
		return nil, goerr.New("could not find a suitable asset to download",
			goerr.V("owner", c.owner),
			goerr.V("repo", c.repo),
			goerr.V("tag", info.Tag),
			goerr.T(types.ErrTagRelease),
		)
	}

	logger.Debug("Found latest release",
		"owner", c.owner,
		"repo", c.repo,
		"tag", info.Tag,
		"archive_url", info.ArchiveURL,
	)

	return info, nil
}

// DownloadArchive streams the release tarball into dir in fixed-size chunks.
// A partially written file is removed when the download fails.
func (c *client) DownloadArchive(ctx context.Context, release *model.ReleaseInfo, dir string) (*model.Archive, error) {
	logger := ctxlog.From(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, release.ArchiveURL, http.NoBody)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create download request", goerr.V("url", release.ArchiveURL), goerr.T(types.ErrTagNetwork))
	}

	// Use the same client so the token and User-Agent apply to the download
	resp, err := c.githubClient.Client().Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download archive", goerr.V("url", release.ArchiveURL), goerr.T(types.ErrTagNetwork))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, goerr.New("unexpected status code while downloading archive",
			goerr.V("url", release.ArchiveURL),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(b)),
			goerr.T(types.ErrTagNetwork),
		)
	}

	path := filepath.Join(dir, release.ArchiveFileName())
	size, err := writeChunked(path, resp.Body)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("Failed to remove partial archive", "path", path, "error", rmErr)
		}
		return nil, goerr.Wrap(err, "failed to save archive",
			goerr.V("url", release.ArchiveURL),
			goerr.V("path", path),
			goerr.T(types.ErrTagNetwork),
		)
	}

	logger.Debug("Saved archive", "path", path, "size_bytes", size)

	return &model.Archive{
		Path: path,
		Tag:  release.Tag,
		Size: size,
	}, nil
}

// writeChunked copies r into a new file at path, chunkSize bytes at a time
func writeChunked(path string, r io.Reader) (written int64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create archive file", goerr.T(types.ErrTagFilesystem))
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = goerr.Wrap(closeErr, "failed to close archive file", goerr.T(types.ErrTagFilesystem))
		}
	}()

	buf := make([]byte, chunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return written, goerr.Wrap(writeErr, "failed to write archive chunk", goerr.T(types.ErrTagFilesystem))
			}
			written += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, goerr.Wrap(readErr, "failed to read archive stream", goerr.V("written", written))
		}
	}
}
