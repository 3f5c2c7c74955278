package config

import (
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/nxpatch/pkg/domain/model"
)

// Patch holds options that control the replacement itself
type Patch struct {
	Yes           bool
	MissingTarget string
	WorkDir       string
	Strict        bool
}

// Flags returns CLI flags for patch configuration
func (c *Patch) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "yes",
			Aliases:     []string{"y"},
			Usage:       "Skip the confirmation prompt",
			Destination: &c.Yes,
		},
		&cli.StringFlag{
			Name:        "missing-target",
			Usage:       "What to do when neither libnx nor nx exists in the project (create, abort)",
			Value:       string(model.MissingTargetCreate),
			Destination: &c.MissingTarget,
			Sources:     cli.EnvVars("NXPATCH_MISSING_TARGET"),
		},
		&cli.StringFlag{
			Name:        "work-dir",
			Usage:       "Directory the archive is downloaded and extracted into",
			Value:       ".",
			Destination: &c.WorkDir,
			Sources:     cli.EnvVars("NXPATCH_WORK_DIR"),
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "Exit with status 2 when the update fails",
			Destination: &c.Strict,
			Sources:     cli.EnvVars("NXPATCH_STRICT"),
		},
	}
}
