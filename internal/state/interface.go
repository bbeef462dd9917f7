package state

import (
	"context"
	"io"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/confirm"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Purger removes stale stage sessions.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ExpiredPurger removes expired pending confirmations.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// MenuStore records and lists completed menus.
type MenuStore interface {
	SaveMenu(ctx context.Context, m *models.Menu) error
	ListMenus(ctx context.Context, userID string, limit int) ([]*models.Menu, error)
}

// Compile-time verification of the store implementations.
var (
	_ io.Closer      = (*DB)(nil)
	_ Migrator       = (*DB)(nil)
	_ MenuStore      = (*DB)(nil)
	_ stage.Store    = (*SessionStore)(nil)
	_ stage.Store    = (*MemorySessionStore)(nil)
	_ Purger         = (*SessionStore)(nil)
	_ Purger         = (*MemorySessionStore)(nil)
	_ confirm.Store  = (*ConfirmationStore)(nil)
	_ confirm.Store  = (*MemoryConfirmationStore)(nil)
	_ ExpiredPurger  = (*ConfirmationStore)(nil)
	_ ExpiredPurger  = (*MemoryConfirmationStore)(nil)
	_ chain.Observer = (*TaskLog)(nil)
)
