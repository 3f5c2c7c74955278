package usecase

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nxpatch/pkg/domain/interfaces"
	"github.com/m-mizutani/nxpatch/pkg/domain/model"
	"github.com/m-mizutani/nxpatch/pkg/domain/types"
	"github.com/m-mizutani/nxpatch/pkg/utils/console"
	"github.com/m-mizutani/nxpatch/pkg/utils/fsutil"
)

// ConfirmQuestion is asked before the target directory is replaced
const ConfirmQuestion = "Are you sure you want to continue?"

// PackageManagerHint is shown when the missing target policy is abort
const PackageManagerHint = "If your project builds against the libnx installed by devkitPro, update it with the package manager instead:\n  sudo dkp-pacman -Syu libnx"

type replacer struct {
	confirmer  interfaces.Confirmer
	console    *console.Printer
	workDir    string
	subtree    string
	candidates []string
	policy     model.MissingTargetPolicy
}

// ReplacerOption is a functional option for the library replacer
type ReplacerOption func(*replacer)

// WithReplacerConsole sets where user-facing messages are printed
func WithReplacerConsole(p *console.Printer) ReplacerOption {
	return func(r *replacer) {
		r.console = p
	}
}

// WithExtractDir sets the directory the archive is extracted into
func WithExtractDir(dir string) ReplacerOption {
	return func(r *replacer) {
		r.workDir = dir
	}
}

// WithSubtree sets the library directory inside the extracted archive
func WithSubtree(subtree string) ReplacerOption {
	return func(r *replacer) {
		r.subtree = subtree
	}
}

// WithCandidates sets the conventional target directory names in priority order
func WithCandidates(names ...string) ReplacerOption {
	return func(r *replacer) {
		r.candidates = names
	}
}

// WithMissingTargetPolicy sets the behavior when no candidate directory exists
func WithMissingTargetPolicy(p model.MissingTargetPolicy) ReplacerOption {
	return func(r *replacer) {
		r.policy = p
	}
}

// NewReplacer creates a new LibraryReplacer
func NewReplacer(confirmer interfaces.Confirmer, opts ...ReplacerOption) interfaces.LibraryReplacer {
	r := &replacer{
		confirmer:  confirmer,
		console:    console.New(io.Discard, true),
		workDir:    ".",
		subtree:    model.DefaultSubtree,
		candidates: model.DefaultCandidates,
		policy:     model.MissingTargetCreate,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Replace extracts the archive, resolves the target directory, asks for
// confirmation and swaps the directories. The extracted tree and the archive
// file are removed on every return path.
func (r *replacer) Replace(ctx context.Context, archive *model.Archive, req *model.PatchRequest) (_ *model.Target, _ model.PatchOutcome, err error) {
	logger := ctxlog.From(ctx)

	var tree *model.ExtractedTree
	defer func() {
		r.cleanup(ctx, tree, archive)
	}()

	r.console.Infof("Extracting archive...")
	tree, err = extractTarball(ctx, archive.Path, r.workDir)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to extract archive", goerr.V("archive", archive.Path))
	}

	logger.Info("Extracted archive",
		"archive", archive.Path,
		"top_level", tree.TopLevel,
		"file_count", len(tree.Files),
		"total_size_bytes", tree.Size,
	)

	sourcePath := filepath.Join(tree.Root, r.subtree)
	if info, statErr := os.Stat(sourcePath); statErr != nil || !info.IsDir() {
		return nil, "", goerr.New("could not find '"+r.subtree+"' directory inside the extracted archive",
			goerr.V("path", sourcePath),
			goerr.T(types.ErrTagArchive),
		)
	}

	target, err := r.resolveTarget(req.ProjectPath)
	if err != nil {
		return nil, "", err
	}

	if target.Existed {
		r.console.Warnf("Warning: %s will be DELETED and replaced with the latest version.", target.Path)
	} else {
		r.console.Infof("Note: No existing %s folder found. Will create new one at %s", target.Name, target.Path)
	}

	if !req.SkipConfirm {
		ok, err := r.confirmer.Confirm(ctx, ConfirmQuestion)
		if err != nil {
			return target, "", goerr.Wrap(err, "failed to read confirmation", goerr.T(types.ErrTagInput))
		}
		if !ok {
			r.console.Infof("Aborting. No changes have been made.")
			logger.Info("User declined replacement", "target", target.Path)
			return target, model.OutcomeDeclined, nil
		}
	}

	r.console.Infof("Updating %s...", target.Path)

	// Not atomic: a crash between removal and move leaves the target missing
	if fsutil.Exists(target.Path) {
		if err := os.RemoveAll(target.Path); err != nil {
			return target, "", goerr.Wrap(err, "failed to remove old library", goerr.V("path", target.Path), goerr.T(types.ErrTagFilesystem))
		}
	}
	if err := os.MkdirAll(filepath.Dir(target.Path), 0o755); err != nil {
		return target, "", goerr.Wrap(err, "failed to create parent directory", goerr.V("path", filepath.Dir(target.Path)), goerr.T(types.ErrTagFilesystem))
	}
	if err := fsutil.Move(sourcePath, target.Path); err != nil {
		return target, "", goerr.Wrap(err, "failed to move new library into place",
			goerr.V("src", sourcePath),
			goerr.V("dst", target.Path),
			goerr.T(types.ErrTagFilesystem),
		)
	}

	logger.Info("Replaced library", "target", target.Path, "tag", archive.Tag)

	r.console.Successf("Successfully patched libnx source.")
	printRecompilationInstructions(r.console)

	return target, model.OutcomeUpdated, nil
}

// resolveTarget returns the first candidate that exists under projectPath,
// or applies the missing target policy when none does
func (r *replacer) resolveTarget(projectPath string) (*model.Target, error) {
	for _, name := range r.candidates {
		p := filepath.Join(projectPath, name)
		if fsutil.Exists(p) {
			return &model.Target{Path: p, Name: name, Existed: true}, nil
		}
	}

	if len(r.candidates) == 0 {
		return nil, goerr.New("no target directory candidates configured", goerr.T(types.ErrTagTarget))
	}

	switch r.policy {
	case model.MissingTargetAbort:
		return nil, goerr.New("no "+strings.Join(r.candidates, " or ")+" directory was found in "+projectPath+". "+PackageManagerHint,
			goerr.V("project", projectPath),
			goerr.V("candidates", r.candidates),
			goerr.T(types.ErrTagTarget),
		)
	default:
		name := r.candidates[0]
		return &model.Target{Path: filepath.Join(projectPath, name), Name: name, Existed: false}, nil
	}
}

func (r *replacer) cleanup(ctx context.Context, tree *model.ExtractedTree, archive *model.Archive) {
	logger := ctxlog.From(ctx)

	if tree != nil && tree.Root != "" {
		if err := os.RemoveAll(tree.Root); err != nil {
			logger.Warn("Failed to remove extracted directory", "path", tree.Root, "error", err)
		}
	}

	if archive != nil && archive.Path != "" {
		if err := os.Remove(archive.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove archive", "path", archive.Path, "error", err)
		}
	}
}

func printRecompilationInstructions(p *console.Printer) {
	p.Infof("\nTo recompile your project with the updated libnx, run the following commands:")
	p.Infof("  make clean")
	p.Infof("  make")
}
