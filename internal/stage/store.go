package stage

import "context"

// Store persists sessions. Load returns a *models.SessionNotFoundError for
// unknown or expired IDs.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
