package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/nxpatch/pkg/domain/types"
)

// DefaultCandidates are the conventional libnx directory names, in priority order
var DefaultCandidates = []string{"libnx", "nx"}

// DefaultSubtree is the library source directory inside the release tarball
const DefaultSubtree = "nx"

// Target is the resolved directory inside the project that receives the library
type Target struct {
	Path    string // Absolute or project-relative path of the target
	Name    string // Conventional name that matched (or was chosen)
	Existed bool   // False when the target is going to be created
}

// MissingTargetPolicy decides what happens when no conventional directory exists
type MissingTargetPolicy string

const (
	// MissingTargetCreate creates a new directory named after the first candidate
	MissingTargetCreate MissingTargetPolicy = "create"
	// MissingTargetAbort stops the run and points at devkitPro's package manager
	MissingTargetAbort MissingTargetPolicy = "abort"
)

// ParseMissingTargetPolicy converts a flag value into a MissingTargetPolicy
func ParseMissingTargetPolicy(s string) (MissingTargetPolicy, error) {
	switch p := MissingTargetPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case MissingTargetCreate, MissingTargetAbort:
		return p, nil
	default:
		return "", goerr.New("unknown missing target policy, want create or abort",
			goerr.V("policy", s),
			goerr.T(types.ErrTagInput),
		)
	}
}

// String implements fmt.Stringer
func (p MissingTargetPolicy) String() string {
	return string(p)
}
