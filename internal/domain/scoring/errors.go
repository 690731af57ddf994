package scoring

import (
	"errors"
	"fmt"

	"github.com/okian/rallyscore/internal/domain/model"
)

// Sentinel kinds for scoring errors.
var (
	// ErrInvalidState is an internal invariant violation; it is never recovered.
	ErrInvalidState = errors.New("invalid score state")
	// ErrUnresolvedDependency marks rows whose score depends on an unknown winner.
	ErrUnresolvedDependency = errors.New("unresolved point dependency")
	// ErrDataIntegrity marks groups whose point order cannot be trusted.
	ErrDataIntegrity = errors.New("data integrity")
)

// UnresolvedError identifies the point whose winner is unknown and the row
// that cannot be scored because of it. For the offending row At equals
// PointIndex.
type UnresolvedError struct {
	Key        model.GroupKey
	PointIndex int
	At         int
}

func (e *UnresolvedError) Error() string {
	if e.At == e.PointIndex {
		return fmt.Sprintf("unresolved point winner: %s point=%d", e.Key, e.PointIndex)
	}
	return fmt.Sprintf("score indeterminate at point=%d: depends on unresolved %s point=%d", e.At, e.Key, e.PointIndex)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolvedDependency }

// IntegrityError reports a group that was not scored.
type IntegrityError struct {
	Key        model.GroupKey
	PointIndex int
	Previous   int
	Reason     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s point=%d (after %d): %s", e.Key, e.PointIndex, e.Previous, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrDataIntegrity }
