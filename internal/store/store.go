// Package store persists completed search sessions for the sessions and
// export commands.
package store

import (
	"context"

	"github.com/civicsignal/legisearch/internal/model"
)

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Reason model.CompletionReason `json:"reason,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// SessionRecord is a persisted session plus its citations.
type SessionRecord struct {
	Session   model.SearchSession `json:"session"`
	Citations []model.Citation    `json:"citations"`
}

// Store defines the persistence interface for session history.
type Store interface {
	SaveSession(ctx context.Context, rec SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]SessionRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}
