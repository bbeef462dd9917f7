package confirm

import (
	"context"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// PendingContext is everything needed to resume a request after the user
// answers an ambiguity question.
type PendingContext struct {
	// Ref is the confirmation reference handed to the caller.
	Ref string `json:"ref"`
	// TaskID is the task that raised the ambiguity.
	TaskID          string           `json:"task_id"`
	ChainID         string           `json:"chain_id"`
	SessionID       string           `json:"session_id"`
	UserID          string           `json:"user_id,omitempty"`
	OriginalRequest string           `json:"original_request"`
	Ambiguity       models.Ambiguity `json:"ambiguity"`
	Snapshot        chain.Snapshot   `json:"snapshot"`
	PausedAt        time.Time        `json:"paused_at"`
	// Attempts counts unrecognized answers so far.
	Attempts int `json:"attempts"`
}

// ExpiresAt returns when the context stops being loadable.
func (p *PendingContext) ExpiresAt(ttl time.Duration) time.Time {
	return p.PausedAt.Add(ttl)
}

// Store persists pending contexts with a TTL measured from PausedAt.
//
// Load removes the context it returns, so each saved context can be
// resumed at most once; unknown and expired refs return a
// *models.ExpiredConfirmationError. Saving a context removes any other
// pending context of the same session.
type Store interface {
	Save(ctx context.Context, p *PendingContext) error
	Load(ctx context.Context, ref string) (*PendingContext, error)
	// Peek returns the context like Load but leaves it in place.
	Peek(ctx context.Context, ref string) (*PendingContext, error)
	// Lookup returns the ref of the session's unexpired pending context
	// without removing it.
	Lookup(ctx context.Context, sessionID string) (string, bool, error)
}
