package config

import (
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/nxpatch/pkg/domain/types"
	githubinfra "github.com/m-mizutani/nxpatch/pkg/infra/github"
)

// GitHub holds GitHub configuration
type GitHub struct {
	Token  string
	APIURL string
	Repo   string
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub token used to raise the API rate limit",
			Destination: &c.Token,
			Sources:     cli.EnvVars("NXPATCH_GITHUB_TOKEN", "GITHUB_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "github-api-url",
			Usage:       "GitHub API base URL",
			Value:       githubinfra.DefaultAPIURL,
			Destination: &c.APIURL,
			Sources:     cli.EnvVars("NXPATCH_GITHUB_API_URL"),
		},
		&cli.StringFlag{
			Name:        "github-repo",
			Usage:       "Repository to fetch releases from, as owner/name",
			Value:       githubinfra.DefaultOwner + "/" + githubinfra.DefaultRepo,
			Destination: &c.Repo,
			Sources:     cli.EnvVars("NXPATCH_GITHUB_REPO"),
		},
	}
}

// ParseRepo splits an owner/name repository reference
func ParseRepo(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", goerr.New("repository must be in owner/name form", goerr.V("repo", s), goerr.T(types.ErrTagInput))
	}
	return owner, repo, nil
}

// LogValue implements slog.LogValuer and omits the token
func (c GitHub) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api_url", c.APIURL),
		slog.String("repo", c.Repo),
		slog.Bool("authenticated", c.Token != ""),
	)
}
