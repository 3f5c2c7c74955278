package types

import "github.com/m-mizutani/goerr/v2"

// Error categories attached to goerr errors with goerr.T
var (
	ErrTagInput      = goerr.NewTag("input")
	ErrTagNetwork    = goerr.NewTag("network")
	ErrTagRelease    = goerr.NewTag("release")
	ErrTagArchive    = goerr.NewTag("archive")
	ErrTagTarget     = goerr.NewTag("target")
	ErrTagFilesystem = goerr.NewTag("filesystem")
)
