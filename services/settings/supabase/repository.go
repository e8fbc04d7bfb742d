// Package supabase provides settings-specific database operations.
package supabase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vegdirect/storefront/internal/database"
)

// Table names
const (
	tableSettings = "settings"

	// RowID identifies the singleton settings row.
	RowID = 1
)

// RepositoryInterface defines settings-specific data access methods.
// This interface allows for easy mocking in tests.
type RepositoryInterface interface {
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// Repository provides settings-specific data access methods.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new settings repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

// Get fetches the singleton settings row.
func (r *Repository) Get(ctx context.Context) (*Settings, error) {
	return database.GenericGetByField[Settings](r.base, ctx, tableSettings, "id", strconv.Itoa(RowID))
}

// Save upserts the singleton row, pinning its ID so a second row can never
// appear.
func (r *Repository) Save(ctx context.Context, s *Settings) error {
	if s == nil {
		return fmt.Errorf("settings cannot be nil")
	}
	s.ID = RowID
	s.UpdatedAt = time.Now().UTC()
	return database.GenericUpsert(r.base, ctx, tableSettings, s, "id", func(rows []Settings) {
		if len(rows) > 0 {
			*s = rows[0]
		}
	})
}
