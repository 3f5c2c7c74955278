package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/nxpatch/pkg/cli/config"
	"github.com/m-mizutani/nxpatch/pkg/domain/model"
	"github.com/m-mizutani/nxpatch/pkg/domain/types"
	githubinfra "github.com/m-mizutani/nxpatch/pkg/infra/github"
	"github.com/m-mizutani/nxpatch/pkg/infra/prompt"
	"github.com/m-mizutani/nxpatch/pkg/usecase"
	"github.com/m-mizutani/nxpatch/pkg/utils/console"
	"github.com/m-mizutani/nxpatch/pkg/utils/safe"
)

// settings is the merged result of flags, environment and config file
type settings struct {
	owner      string
	repo       string
	apiURL     string
	token      string
	subtree    string
	candidates []string
	policy     model.MissingTargetPolicy
	workDir    string
}

func cmdPatch(rc *runConfig, sentryCfg *config.Sentry) *cli.Command {
	var (
		githubCfg config.GitHub
		patchCfg  config.Patch
		fileCfg   config.File
	)

	var flags []cli.Flag
	flags = append(flags, patchCfg.Flags()...)
	flags = append(flags, githubCfg.Flags()...)
	flags = append(flags, fileCfg.Flags()...)

	return &cli.Command{
		Usage:     "Replace the libnx source in a Nintendo Switch homebrew project with the latest release",
		ArgsUsage: "<project_path>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			out := console.New(rc.stdout, !config.IsTerminal(rc.stdout) || os.Getenv("NO_COLOR") != "")

			projectArg, yes, err := parseArgs(c.Args().Slice())
			if err != nil {
				out.Errorf("Error: %v", err)
				return &ExitError{Code: ExitInvalidPath}
			}
			patchCfg.Yes = patchCfg.Yes || yes

			projectPath, ok := resolveProjectPath(projectArg)
			if !ok {
				out.Errorf("Error: The specified path '%s' is not a valid directory.", projectArg)
				return &ExitError{Code: ExitInvalidPath}
			}

			fc, err := fileCfg.Load()
			if err != nil {
				out.Errorf("Error: %v", err)
				return &ExitError{Code: ExitInvalidPath, Err: err}
			}

			s, err := resolveSettings(c, &githubCfg, &patchCfg, fc)
			if err != nil {
				out.Errorf("Error: %v", err)
				return &ExitError{Code: ExitInvalidPath, Err: err}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			// After the first signal, restore default handling so a second one terminates
			go func() {
				<-ctx.Done()
				stop()
			}()

			logger := ctxlog.From(ctx)
			logger.Info("Starting nxpatch",
				slog.String("project", projectPath),
				slog.Any("github", githubCfg),
				slog.String("missing_target", s.policy.String()),
			)

			out.Infof("Project path: %s", projectPath)

			githubClient, err := githubinfra.NewClient(
				githubinfra.WithRepo(s.owner, s.repo),
				githubinfra.WithAPIURL(s.apiURL),
				githubinfra.WithToken(s.token),
			)
			if err != nil {
				out.Errorf("Error: %v", err)
				return &ExitError{Code: ExitInvalidPath, Err: err}
			}

			replacer := usecase.NewReplacer(
				prompt.NewLineConfirmer(rc.stdin, rc.stdout),
				usecase.WithReplacerConsole(out),
				usecase.WithExtractDir(s.workDir),
				usecase.WithSubtree(s.subtree),
				usecase.WithCandidates(s.candidates...),
				usecase.WithMissingTargetPolicy(s.policy),
			)
			patchUC := usecase.NewPatch(githubClient, replacer,
				usecase.WithConsole(out),
				usecase.WithDownloadDir(s.workDir),
			)

			var result *model.PatchResult
			err = safe.Run(ctx, func(ctx context.Context) error {
				var err error
				result, err = patchUC.Patch(ctx, &model.PatchRequest{
					ProjectPath: projectPath,
					SkipConfirm: patchCfg.Yes,
				})
				return err
			})
			if err != nil {
				reportFailure(out, err)
				sentryCfg.Capture(err)
				if patchCfg.Strict {
					return &ExitError{Code: ExitFailed, Err: err}
				}
				logger.Warn("Update failed", slog.Any("error", err))
				return nil
			}

			logger.Info("Finished",
				slog.String("outcome", string(result.Outcome)),
				slog.String("tag", result.Release.Tag),
			)
			return nil
		},
	}
}

// parseArgs picks the project path out of the positional arguments. Flags
// given after the path are left there by the parser, so -y/--yes is
// recognized in that position too.
func parseArgs(args []string) (projectPath string, yes bool, err error) {
	var positional []string
	for _, a := range args {
		switch {
		case a == "-y" || a == "--yes":
			yes = true
		case strings.HasPrefix(a, "-") && a != "-":
			return "", false, goerr.New("unknown option "+a, goerr.T(types.ErrTagInput))
		default:
			positional = append(positional, a)
		}
	}

	switch len(positional) {
	case 0:
		return "", false, goerr.New("project_path is required", goerr.T(types.ErrTagInput))
	case 1:
		return positional[0], yes, nil
	default:
		return "", false, goerr.New("too many arguments: "+strings.Join(positional[1:], " "), goerr.T(types.ErrTagInput))
	}
}

// resolveProjectPath expands a leading ~ and reports whether the result is
// an existing directory
func resolveProjectPath(p string) (string, bool) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return p, false
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return abs, false
	}
	return abs, true
}

// resolveSettings merges flags and environment (highest), the config file
// and the defaults
func resolveSettings(c *cli.Command, githubCfg *config.GitHub, patchCfg *config.Patch, fc *config.FileConfig) (*settings, error) {
	s := &settings{
		owner:      githubinfra.DefaultOwner,
		repo:       githubinfra.DefaultRepo,
		apiURL:     githubCfg.APIURL,
		token:      githubCfg.Token,
		subtree:    model.DefaultSubtree,
		candidates: model.DefaultCandidates,
		workDir:    patchCfg.WorkDir,
	}

	if fc.Source.Owner != "" {
		s.owner = fc.Source.Owner
	}
	if fc.Source.Repo != "" {
		s.repo = fc.Source.Repo
	}
	if c.IsSet("github-repo") {
		owner, repo, err := config.ParseRepo(githubCfg.Repo)
		if err != nil {
			return nil, err
		}
		s.owner, s.repo = owner, repo
	}

	if fc.Source.APIURL != "" && !c.IsSet("github-api-url") {
		s.apiURL = fc.Source.APIURL
	}
	if fc.Source.Subtree != "" {
		s.subtree = fc.Source.Subtree
	}
	if len(fc.Target.Candidates) > 0 {
		s.candidates = fc.Target.Candidates
	}

	policyName := patchCfg.MissingTarget
	if fc.Target.Missing != "" && !c.IsSet("missing-target") {
		policyName = fc.Target.Missing
	}
	policy, err := model.ParseMissingTargetPolicy(policyName)
	if err != nil {
		return nil, err
	}
	s.policy = policy

	if s.workDir == "" {
		s.workDir = "."
	}

	return s, nil
}

// reportFailure prints a message matching the category of err
func reportFailure(out *console.Printer, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		out.Errorf("Interrupted. No changes have been made.")
	case goerr.HasTag(err, types.ErrTagNetwork):
		out.Errorf("An error occurred while downloading: %v", err)
		out.Errorf("Failed to download libnx. Check your connection to GitHub.")
	case goerr.HasTag(err, types.ErrTagRelease):
		out.Errorf("Error: %v", innermost(err))
		out.Errorf("Failed to download libnx. Check your connection to GitHub.")
	case goerr.HasTag(err, types.ErrTagArchive), goerr.HasTag(err, types.ErrTagFilesystem):
		out.Errorf("An error occurred during the replacement process: %v", err)
	default:
		out.Errorf("Error: %v", innermost(err))
	}
}

// innermost returns the deepest error in the chain
func innermost(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
