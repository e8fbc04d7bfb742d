// Package supabase provides accounts-specific database operations.
package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vegdirect/storefront/internal/database"
)

// Table names
const (
	tableProfiles = "profiles"
	tableAPIKeys  = "api_keys"
)

// ProfileQuery narrows and pages a profile listing.
type ProfileQuery struct {
	Role   string
	Search string
	Page   int
	Limit  int
}

// =============================================================================
// Repository Interface
// =============================================================================

// RepositoryInterface defines accounts-specific data access methods.
// This interface allows for easy mocking in tests.
type RepositoryInterface interface {
	// Profile operations
	CreateProfile(ctx context.Context, p *Profile) error
	UpdateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	ListProfiles(ctx context.Context, q ProfileQuery) ([]Profile, int64, error)
	ListByRole(ctx context.Context, role string) ([]Profile, error)
	SetActive(ctx context.Context, id string, active bool) error

	// API key operations
	CreateAPIKey(ctx context.Context, k *APIKey) error
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// =============================================================================
// Repository Implementation
// =============================================================================

// Repository provides accounts-specific data access methods.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new accounts repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

// =============================================================================
// Profile Operations
// =============================================================================

// CreateProfile inserts a profile row keyed by the auth user ID.
func (r *Repository) CreateProfile(ctx context.Context, p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	if p.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	p.SetTimestamps()
	return database.GenericCreate(r.base, ctx, tableProfiles, p, func(rows []Profile) {
		if len(rows) > 0 {
			*p = rows[0]
		}
	})
}

// UpdateProfile replaces a profile row.
func (r *Repository) UpdateProfile(ctx context.Context, p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	if p.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	p.UpdatedAt = time.Now().UTC()
	return database.GenericUpdate(r.base, ctx, tableProfiles, "id", p.ID, p)
}

// GetProfile fetches a profile by auth user ID.
func (r *Repository) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return database.GenericGetByField[Profile](r.base, ctx, tableProfiles, "id", id)
}

// ListProfiles returns a page of profiles with the exact total count.
func (r *Repository) ListProfiles(ctx context.Context, q ProfileQuery) ([]Profile, int64, error) {
	spec := database.NewQuery().WithCount().OrderAsc("full_name")
	if q.Role != "" {
		spec.Eq("role", q.Role)
	}
	if term := sanitizeTerm(q.Search); term != "" {
		pattern := "*" + term + "*"
		spec.Or(fmt.Sprintf("full_name.ilike.%s,email.ilike.%s,company_name.ilike.%s", pattern, pattern, pattern))
	}
	if q.Limit > 0 {
		spec.Limit(q.Limit)
		if q.Page > 1 {
			spec.Offset((q.Page - 1) * q.Limit)
		}
	}
	return database.GenericListPage[Profile](r.base, ctx, tableProfiles, spec.Build())
}

// ListByRole returns active profiles holding a role, for assignment lists.
func (r *Repository) ListByRole(ctx context.Context, role string) ([]Profile, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: invalid role %q", database.ErrInvalidInput, role)
	}
	q := database.NewQuery().Eq("role", role).Eq("active", "true").OrderAsc("full_name").Build()
	return database.GenericListWithQuery[Profile](r.base, ctx, tableProfiles, q)
}

// SetActive toggles a profile without touching other columns.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	patch := map[string]any{"active": active, "updated_at": time.Now().UTC()}
	return database.GenericUpdate(r.base, ctx, tableProfiles, "id", id, patch)
}

// =============================================================================
// API Key Operations
// =============================================================================

// CreateAPIKey stores a new key row.
func (r *Repository) CreateAPIKey(ctx context.Context, k *APIKey) error {
	if k == nil {
		return fmt.Errorf("api key cannot be nil")
	}
	if k.Prefix == "" || k.KeyHash == "" {
		return fmt.Errorf("prefix and key_hash cannot be empty")
	}
	k.CreatedAt = time.Now().UTC()
	return database.GenericCreate(r.base, ctx, tableAPIKeys, k, func(rows []APIKey) {
		if len(rows) > 0 {
			*k = rows[0]
		}
	})
}

// ListAPIKeys returns all key rows, newest first.
func (r *Repository) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	q := database.NewQuery().OrderDesc("created_at").Build()
	return database.GenericListWithQuery[APIKey](r.base, ctx, tableAPIKeys, q)
}

// GetAPIKeyByPrefix fetches a non-revoked key row by its lookup prefix.
func (r *Repository) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	q := database.NewQuery().Eq("prefix", prefix).Eq("revoked", "false").Limit(1).Build()
	rows, err := database.GenericListWithQuery[APIKey](r.base, ctx, tableAPIKeys, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: api key prefix %s", database.ErrNotFound, prefix)
	}
	return &rows[0], nil
}

// RevokeAPIKey marks a key unusable. Rows are kept for the audit trail.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	return database.GenericUpdate(r.base, ctx, tableAPIKeys, "id", id, map[string]any{"revoked": true})
}

// TouchAPIKey records the last successful use.
func (r *Repository) TouchAPIKey(ctx context.Context, id string) error {
	return database.GenericUpdate(r.base, ctx, tableAPIKeys, "id", id, map[string]any{"last_used_at": time.Now().UTC()})
}

// sanitizeTerm strips characters with filter-expression meaning from a
// caller-supplied search term.
func sanitizeTerm(term string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '"', '\\':
			return -1
		}
		return r
	}, strings.TrimSpace(term))
}
