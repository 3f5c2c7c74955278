package interfaces

import "context"

// Confirmer asks the user a yes/no question
type Confirmer interface {
	// Confirm returns true only for an affirmative answer
	Confirm(ctx context.Context, question string) (bool, error)
}
