package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/nxpatch/pkg/cli/config"
	"github.com/m-mizutani/nxpatch/pkg/domain/types"
)

// Exit codes returned by ExitCode
const (
	ExitOK          = 0
	ExitInvalidPath = 1
	ExitFailed      = 2
)

// ExitError carries the process exit code for a finished run. It does not
// implement cli.ExitCoder so that urfave/cli never calls os.Exit itself.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by Run to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

type runConfig struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Option is a functional option for Run
type Option func(*runConfig)

// WithStdin sets where confirmation answers are read from
func WithStdin(r io.Reader) Option {
	return func(c *runConfig) {
		c.stdin = r
	}
}

// WithStdout sets where user-facing messages are written
func WithStdout(w io.Writer) Option {
	return func(c *runConfig) {
		c.stdout = w
	}
}

// WithStderr sets where logs are written
func WithStderr(w io.Writer) Option {
	return func(c *runConfig) {
		c.stderr = w
	}
}

// Run runs the CLI application
func Run(ctx context.Context, args []string, opts ...Option) error {
	rc := &runConfig{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(rc)
	}

	var (
		loggerCfg config.Logger
		sentryCfg config.Sentry
		logger    *slog.Logger
		flush     = func() {}
	)

	cmd := cmdPatch(rc, &sentryCfg)
	cmd.Name = types.AppName
	cmd.Version = types.Version
	cmd.Writer = rc.stdout
	cmd.ErrWriter = rc.stderr
	cmd.Flags = append(cmd.Flags, loggerCfg.Flags()...)
	cmd.Flags = append(cmd.Flags, sentryCfg.Flags()...)
	cmd.Before = func(ctx context.Context, c *cli.Command) (context.Context, error) {
		var err error
		logger, err = loggerCfg.Configure(rc.stderr)
		if err != nil {
			return nil, err
		}

		flush, err = sentryCfg.Configure()
		if err != nil {
			return nil, err
		}

		logger = logger.With("run_id", uuid.NewString())
		slog.SetDefault(logger)
		ctx = ctxlog.With(ctx, logger)
		return ctx, nil
	}

	err := cmd.Run(ctx, args)
	flush()
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Err == nil {
			return err
		}
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(rc.stderr, nil))
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		return err
	}

	return nil
}
