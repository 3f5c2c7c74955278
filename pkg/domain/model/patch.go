package model

// PatchOutcome is how a run that did not fail ended
type PatchOutcome string

const (
	OutcomeUpdated  PatchOutcome = "updated"
	OutcomeDeclined PatchOutcome = "declined"
)

// PatchRequest holds the inputs of one patch run
type PatchRequest struct {
	ProjectPath string // Homebrew project directory
	SkipConfirm bool   // Set by --yes
}

// PatchResult represents the result of a patch run
type PatchResult struct {
	Release *ReleaseInfo
	Target  *Target
	Outcome PatchOutcome
}
