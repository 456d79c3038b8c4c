package agents

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAlias is returned when an empty model name is resolved.
	ErrEmptyAlias = errors.New("agent alias is empty")

	// ErrAgentNotFound is matched by every NotFoundError.
	ErrAgentNotFound = errors.New("agent not found")
)

// NotFoundError is returned when no catalog entry is similar enough to the
// requested alias.
type NotFoundError struct {
	// Alias is the requested model name
	Alias string

	// Closest is the best scoring label, empty when nothing scored
	Closest string

	// Score is the similarity of Closest
	Score float64

	// Threshold is the similarity the match had to reach
	Threshold float64
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Closest == "" {
		return fmt.Sprintf("agent %q not found", e.Alias)
	}
	return fmt.Sprintf("agent %q not found (closest %q scored %.2f, need %.2f)",
		e.Alias, e.Closest, e.Score, e.Threshold)
}

// Is makes errors.Is(err, ErrAgentNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrAgentNotFound
}
