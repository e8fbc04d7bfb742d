package accounts

import (
	"time"

	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
)

// UpdateProfileInput carries the self-service editable profile fields. Email
// and role are managed elsewhere.
type UpdateProfileInput struct {
	FullName      *string                             `json:"full_name"`
	Phone         *string                             `json:"phone"`
	CompanyName   *string                             `json:"company_name"`
	Notifications *accountssupabase.NotificationPrefs `json:"notifications"`
}

// AddressInput is a delivery address submitted by the customer.
type AddressInput struct {
	Label  string   `json:"label"`
	Street string   `json:"street"`
	Ward   string   `json:"ward"`
	City   string   `json:"city"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
}

// AdminUpdateUserInput carries the fields an admin may change on any user.
type AdminUpdateUserInput struct {
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
	FullName *string `json:"full_name"`
}

// DriverView is the reduced listing used by order assignment pickers.
type DriverView struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// CreateAPIKeyInput names a new server API key.
type CreateAPIKeyInput struct {
	Name string `json:"name"`
}

// APIKeyCreated is returned once at creation time and is the only place the
// raw key ever appears.
type APIKeyCreated struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	Key    string `json:"key"`
}

// APIKeyView is the listing shape. The stored hash is never exposed.
type APIKeyView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedBy  string     `json:"created_by"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"created_at"`
}

func apiKeyView(k accountssupabase.APIKey) APIKeyView {
	return APIKeyView{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		CreatedBy:  k.CreatedBy,
		LastUsedAt: k.LastUsedAt,
		Revoked:    k.Revoked,
		CreatedAt:  k.CreatedAt,
	}
}
