package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/domain"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/idx"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface for the local history database.
type Store interface {
	Issuances() Issuances

	ApplyMigrations() error

	// Close releases the underlying database handle.
	Close() error
}

type Issuances interface {
	// Record appends an issuance. IDs are unique; a repeat is ErrAlreadyExists.
	Record(ctx context.Context, iss domain.Issuance) error

	// Get returns one issuance by id.
	Get(ctx context.Context, id idx.ID) (domain.Issuance, error)

	// FindByFingerprint returns the issuance whose token hashes to fp.
	FindByFingerprint(ctx context.Context, fp string) (domain.Issuance, error)

	// List returns up to limit issuances, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]domain.Issuance, error)

	// Prune deletes issuances created before the cutoff and reports how many.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
