// Package supabase provides accounts-specific database operations.
package supabase

import "time"

// Roles a profile may hold.
const (
	RoleCustomer = "customer"
	RoleDriver   = "driver"
	RoleAdmin    = "admin"
)

// ValidRole reports whether role is one the storefront assigns.
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Address is a delivery address embedded in a profile. Coordinates are
// optional and usually attached from a geocode lookup.
type Address struct {
	Label  string   `json:"label,omitempty"`
	Street string   `json:"street"`
	Ward   string   `json:"ward,omitempty"`
	City   string   `json:"city"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
}

// NotificationPrefs records which emails the user opted into.
type NotificationPrefs struct {
	OrderUpdates bool `json:"order_updates"`
	Promotions   bool `json:"promotions"`
}

// Profile mirrors a row in the profiles table. Its ID equals the hosted
// auth user ID.
type Profile struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	FullName      string            `json:"full_name,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	Role          string            `json:"role"`
	CompanyName   string            `json:"company_name,omitempty"`
	Addresses     []Address         `json:"addresses,omitempty"`
	Notifications NotificationPrefs `json:"notifications"`
	Active        bool              `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetTimestamps stamps creation and update times.
func (p *Profile) SetTimestamps() {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// APIKey is a server-to-server credential. Only the bcrypt hash of the raw
// key is stored; the prefix narrows the lookup.
type APIKey struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"key_hash"`
	CreatedBy  string     `json:"created_by,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"created_at"`
}
