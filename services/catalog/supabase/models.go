// Package supabase provides catalog-specific database operations.
package supabase

import "time"

// Product units sold by the storefront.
const (
	UnitKilogram = "kg"
	UnitBunch    = "bunch"
	UnitBox      = "box"
)

// ValidUnit reports whether a unit is one the storefront sells by.
func ValidUnit(unit string) bool {
	switch unit {
	case UnitKilogram, UnitBunch, UnitBox:
		return true
	}
	return false
}

// Product represents a catalog row. Name holds the primary-language name;
// NameEN and NameKO are optional translations shown to non-Vietnamese buyers.
type Product struct {
	ID          string  `json:"id,omitempty"`
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	NameEN      string  `json:"name_en,omitempty"`
	NameKO      string  `json:"name_ko,omitempty"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency,omitempty"`
	Stock       int     `json:"stock"`
	ImagePath   string  `json:"image_path,omitempty"`
	Active      bool    `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetTimestamps stamps creation and update times.
func (p *Product) SetTimestamps() {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}
