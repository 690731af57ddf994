// Package repository persists matches and scored rallies.
package repository

import (
	"context"

	"github.com/okian/rallyscore/internal/domain/model"
)

// Store provides read/write access to matches and scored rallies.
type Store interface {
	// SaveMatch inserts or replaces match metadata.
	SaveMatch(ctx context.Context, m model.Match) error

	// GetMatch returns ErrNotFound for an unknown id.
	GetMatch(ctx context.Context, id int) (model.Match, error)

	// ListMatches returns matches ordered by date then id.
	ListMatches(ctx context.Context) ([]model.Match, error)

	// SaveRallies stores scored points. A point already stored for the same
	// (match, set, game, point index) is overwritten when it changed, so a
	// rescored or corrected point replaces the old one. Returns how many
	// points were inserted or updated.
	SaveRallies(ctx context.Context, batchID string, points []model.EnrichedPoint) (int, error)

	// ListRallies returns the stored points of a match in scoring order.
	ListRallies(ctx context.Context, matchID int) ([]model.EnrichedPoint, error)

	// Count returns the number of stored rallies.
	Count(ctx context.Context) (int, error)

	Close() error
}
