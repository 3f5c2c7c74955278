package interfaces

import (
	"context"

	"github.com/m-mizutani/nxpatch/pkg/domain/model"
)

// PatchUseCase runs the whole locate, fetch and replace flow
type PatchUseCase interface {
	// Patch replaces the libnx copy inside the requested project
	Patch(ctx context.Context, req *model.PatchRequest) (*model.PatchResult, error)
}

// LibraryReplacer swaps the project's libnx copy with the one from an archive
type LibraryReplacer interface {
	// Replace extracts archive and moves its library subtree into the project.
	// The archive and the extracted tree are removed before Replace returns.
	Replace(ctx context.Context, archive *model.Archive, req *model.PatchRequest) (*model.Target, model.PatchOutcome, error)
}
