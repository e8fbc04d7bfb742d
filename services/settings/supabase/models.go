// Package supabase provides settings-specific database operations.
package supabase

import "time"

// Admin navigation items governed by menu toggles.
const (
	MenuDashboard = "dashboard"
	MenuOrders    = "orders"
	MenuProducts  = "products"
	MenuUsers     = "users"
	MenuEmailLogs = "email_logs"
	MenuSettings  = "settings"
)

// KnownMenuItem reports whether name is a toggleable admin menu entry.
func KnownMenuItem(name string) bool {
	switch name {
	case MenuDashboard, MenuOrders, MenuProducts, MenuUsers, MenuEmailLogs, MenuSettings:
		return true
	}
	return false
}

// Settings is the storefront's singleton configuration row.
type Settings struct {
	ID           int             `json:"id"`
	StoreName    string          `json:"store_name"`
	LogoURL      string          `json:"logo_url,omitempty"`
	SupportEmail string          `json:"support_email,omitempty"`
	AdminEmail   string          `json:"admin_email,omitempty"`
	Currency     string          `json:"currency"`
	VATPercent   float64         `json:"vat_percent"`
	MenuToggles  map[string]bool `json:"menu_toggles,omitempty"`

	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Default returns the settings used until an admin saves the row.
func Default() *Settings {
	return &Settings{
		ID:         RowID,
		StoreName:  "VegDirect",
		Currency:   "VND",
		VATPercent: 8,
		MenuToggles: map[string]bool{
			MenuDashboard: true,
			MenuOrders:    true,
			MenuProducts:  true,
			MenuUsers:     true,
			MenuEmailLogs: true,
			MenuSettings:  true,
		},
	}
}
