// Package supabase provides catalog-specific database operations.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vegdirect/storefront/internal/database"
)

// Table names
const (
	tableProducts = "products"
)

// ListQuery narrows and pages a product listing.
type ListQuery struct {
	Search          string
	Category        string
	IncludeInactive bool
	Page            int
	Limit           int
}

// =============================================================================
// Repository Interface
// =============================================================================

// RepositoryInterface defines catalog-specific data access methods.
// This interface allows for easy mocking in tests.
type RepositoryInterface interface {
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	List(ctx context.Context, q ListQuery) ([]Product, int64, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	SetImagePath(ctx context.Context, id, path string) error

	// CompareAndSetStock updates the stock level only when the current value
	// still matches expected. It reports whether the swap took effect.
	CompareAndSetStock(ctx context.Context, id string, expected, next int) (bool, error)
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// =============================================================================
// Repository Implementation
// =============================================================================

// Repository provides catalog-specific data access methods.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new catalog repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

// Create inserts a new product.
func (r *Repository) Create(ctx context.Context, p *Product) error {
	if p == nil {
		return fmt.Errorf("product cannot be nil")
	}
	if p.SKU == "" {
		return fmt.Errorf("sku cannot be empty")
	}
	p.SetTimestamps()
	return database.GenericCreate(r.base, ctx, tableProducts, p, func(rows []Product) {
		if len(rows) > 0 {
			*p = rows[0]
		}
	})
}

// Update replaces a product row by ID.
func (r *Repository) Update(ctx context.Context, p *Product) error {
	if p == nil {
		return fmt.Errorf("product cannot be nil")
	}
	if p.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	p.UpdatedAt = time.Now().UTC()
	return database.GenericUpdate(r.base, ctx, tableProducts, "id", p.ID, p)
}

// GetByID fetches a product by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Product, error) {
	return database.GenericGetByField[Product](r.base, ctx, tableProducts, "id", id)
}

// GetBySKU fetches a product by its unique SKU.
func (r *Repository) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	return database.GenericGetByField[Product](r.base, ctx, tableProducts, "sku", sku)
}

// List returns a page of products with the exact total count.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]Product, int64, error) {
	spec := database.NewQuery().WithCount().OrderAsc("name")
	if !q.IncludeInactive {
		spec.Eq("active", "true")
	}
	if q.Category != "" {
		spec.Eq("category", q.Category)
	}
	if term := sanitizeTerm(q.Search); term != "" {
		pattern := "*" + term + "*"
		spec.Or(fmt.Sprintf("name.ilike.%s,name_en.ilike.%s,sku.ilike.%s", pattern, pattern, pattern))
	}
	if q.Limit > 0 {
		spec.Limit(q.Limit)
		if q.Page > 1 {
			spec.Offset((q.Page - 1) * q.Limit)
		}
	}
	return database.GenericListPage[Product](r.base, ctx, tableProducts, spec.Build())
}

// SetActive toggles product visibility without touching other columns.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	patch := map[string]any{"active": active, "updated_at": time.Now().UTC()}
	return database.GenericUpdate(r.base, ctx, tableProducts, "id", id, patch)
}

// SetImagePath records the stored image object path.
func (r *Repository) SetImagePath(ctx context.Context, id, path string) error {
	patch := map[string]any{"image_path": path, "updated_at": time.Now().UTC()}
	return database.GenericUpdate(r.base, ctx, tableProducts, "id", id, patch)
}

// Delete removes a product row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return database.GenericDelete(r.base, ctx, tableProducts, "id", id)
}

// CompareAndSetStock performs an optimistic stock swap: the update filters on
// the expected stock value, so a concurrent writer makes it a no-op.
func (r *Repository) CompareAndSetStock(ctx context.Context, id string, expected, next int) (bool, error) {
	patch := map[string]any{"stock": next, "updated_at": time.Now().UTC()}
	data, _, err := r.base.Client().DB.From(tableProducts).
		Update(patch).
		Eq("id", id).
		Eq("stock", strconv.Itoa(expected)).
		Execute(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: update %s: %v", database.ErrDatabaseError, tableProducts, err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", database.ErrDatabaseError, tableProducts, err)
	}
	return len(rows) > 0, nil
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
