package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/nxpatch/pkg/domain/types"
)

// File points at an optional TOML configuration file
type File struct {
	Path string
}

// FileConfig is the content of the configuration file
type FileConfig struct {
	Source SourceConfig `toml:"source"`
	Target TargetConfig `toml:"target"`
}

// SourceConfig describes where the library comes from
type SourceConfig struct {
	Owner   string `toml:"owner"`
	Repo    string `toml:"repo"`
	Subtree string `toml:"subtree"`
	APIURL  string `toml:"api_url"`
}

// TargetConfig describes where the library goes in the project
type TargetConfig struct {
	Candidates []string `toml:"candidates"`
	Missing    string   `toml:"missing"`
}

// Flags returns CLI flags for the configuration file
func (c *File) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to a TOML configuration file",
			Destination: &c.Path,
			Sources:     cli.EnvVars("NXPATCH_CONFIG"),
		},
	}
}

// Load reads the configuration file. An unset path yields an empty config.
func (c *File) Load() (*FileConfig, error) {
	var cfg FileConfig
	if c.Path == "" {
		return &cfg, nil
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open config file", goerr.V("path", c.Path), goerr.T(types.ErrTagInput))
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", c.Path), goerr.T(types.ErrTagInput))
	}

	for _, name := range cfg.Target.Candidates {
		if !isRelativeInside(name) {
			return nil, goerr.New("target candidates must be relative paths inside the project",
				goerr.V("path", c.Path),
				goerr.V("candidate", name),
				goerr.T(types.ErrTagInput),
			)
		}
	}

	return &cfg, nil
}

// isRelativeInside reports whether name is a non-empty relative path that
// stays below the directory it is joined to
func isRelativeInside(name string) bool {
	if name == "" || filepath.IsAbs(name) {
		return false
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}
