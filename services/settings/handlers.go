package settings

import (
	"fmt"
	"net/http"

	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/pkg/money"
	settingssupabase "github.com/vegdirect/storefront/services/settings/supabase"
)

// VAT percent bounds accepted from the admin form.
const (
	minVATPercent = 0
	maxVATPercent = 50
)

// PublicSettings is the subset exposed without authentication: branding,
// currency, VAT and the menu toggles.
type PublicSettings struct {
	StoreName    string          `json:"store_name"`
	LogoURL      string          `json:"logo_url,omitempty"`
	SupportEmail string          `json:"support_email,omitempty"`
	Currency     string          `json:"currency"`
	VATPercent   float64         `json:"vat_percent"`
	MenuToggles  map[string]bool `json:"menu_toggles,omitempty"`
}

// UpdateSettingsInput replaces the singleton row.
type UpdateSettingsInput struct {
	StoreName    string          `json:"store_name"`
	LogoURL      string          `json:"logo_url"`
	SupportEmail string          `json:"support_email"`
	AdminEmail   string          `json:"admin_email"`
	Currency     string          `json:"currency"`
	VATPercent   float64         `json:"vat_percent"`
	MenuToggles  map[string]bool `json:"menu_toggles"`
}

func publicView(s *settingssupabase.Settings) PublicSettings {
	return PublicSettings{
		StoreName:    s.StoreName,
		LogoURL:      s.LogoURL,
		SupportEmail: s.SupportEmail,
		Currency:     s.Currency,
		VATPercent:   s.VATPercent,
		MenuToggles:  s.MenuToggles,
	}
}

// handleGetPublicSettings serves the storefront's branding subset.
func (s *Service) handleGetPublicSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.Current(r.Context())
	if err != nil {
		s.Logger().WithError(err).Error("settings fetch failed")
		httputil.InternalError(w, "failed to load settings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, publicView(current))
}

// handleGetAdminSettings serves the full row.
func (s *Service) handleGetAdminSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.Current(r.Context())
	if err != nil {
		httputil.InternalError(w, "failed to load settings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, current)
}

// handleUpdateSettings validates and saves the singleton row.
func (s *Service) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input UpdateSettingsInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	if input.StoreName == "" {
		httputil.BadRequest(w, "store_name is required")
		return
	}
	if !money.Supported(input.Currency) {
		httputil.BadRequest(w, fmt.Sprintf("unsupported currency code %q", input.Currency))
		return
	}
	if input.VATPercent < minVATPercent || input.VATPercent > maxVATPercent {
		httputil.BadRequest(w, fmt.Sprintf("vat_percent must be between %d and %d", minVATPercent, maxVATPercent))
		return
	}
	for name := range input.MenuToggles {
		if !settingssupabase.KnownMenuItem(name) {
			httputil.BadRequest(w, fmt.Sprintf("unknown menu item %q", name))
			return
		}
	}

	row := &settingssupabase.Settings{
		StoreName:    input.StoreName,
		LogoURL:      input.LogoURL,
		SupportEmail: input.SupportEmail,
		AdminEmail:   input.AdminEmail,
		Currency:     input.Currency,
		VATPercent:   input.VATPercent,
		MenuToggles:  input.MenuToggles,
		UpdatedBy:    middleware.GetUserID(r.Context()),
	}
	if err := s.repo.Save(r.Context(), row); err != nil {
		s.Logger().WithError(err).Error("settings save failed")
		httputil.InternalError(w, "failed to save settings")
		return
	}

	s.invalidate(r.Context())
	httputil.WriteJSON(w, http.StatusOK, row)
}
