package accounts

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/middleware"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
)

// =============================================================================
// Self-service profile handlers
// =============================================================================

// loadProfile fetches the caller's profile, provisioning a default row on
// first contact. New sign-ups only exist in the auth backend until then.
func (s *Service) loadProfile(r *http.Request, userID string) (*accountssupabase.Profile, error) {
	ctx := r.Context()

	p, err := s.repo.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !database.IsNotFound(err) {
		return nil, err
	}

	fresh := &accountssupabase.Profile{
		ID:     userID,
		Role:   accountssupabase.RoleCustomer,
		Active: true,
		Notifications: accountssupabase.NotificationPrefs{
			OrderUpdates: true,
		},
	}
	if token := middleware.GetAccessToken(ctx); token != "" && s.DB() != nil {
		if user, err := s.DB().Client().Auth.GetUser(ctx, token); err == nil {
			fresh.Email = user.Email
			fresh.Phone = user.Phone
			if name, ok := user.UserMetadata["full_name"].(string); ok {
				fresh.FullName = name
			}
		} else {
			s.Logger().WithError(err).Warn("auth user introspection failed")
		}
	}

	if err := s.repo.CreateProfile(ctx, fresh); err != nil {
		// A concurrent first request may have provisioned the row already.
		if p, getErr := s.repo.GetProfile(ctx, userID); getErr == nil {
			return p, nil
		}
		return nil, err
	}
	return fresh, nil
}

func (s *Service) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	p, err := s.loadProfile(r, userID)
	if err != nil {
		s.Logger().WithError(err).Error("failed to load profile")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	var input UpdateProfileInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	p, err := s.loadProfile(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if input.FullName != nil {
		p.FullName = *input.FullName
	}
	if input.Phone != nil {
		p.Phone = *input.Phone
	}
	if input.CompanyName != nil {
		p.CompanyName = *input.CompanyName
	}
	if input.Notifications != nil {
		p.Notifications = *input.Notifications
	}

	if err := s.repo.UpdateProfile(r.Context(), p); err != nil {
		s.Logger().WithError(err).Error("failed to update profile")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// =============================================================================
// Address book handlers
// =============================================================================

func validateAddress(input AddressInput) (accountssupabase.Address, string) {
	if input.Street == "" {
		return accountssupabase.Address{}, "street is required"
	}
	if input.City == "" {
		return accountssupabase.Address{}, "city is required"
	}
	if (input.Lat == nil) != (input.Lon == nil) {
		return accountssupabase.Address{}, "lat and lon must be provided together"
	}
	return accountssupabase.Address{
		Label:  input.Label,
		Street: input.Street,
		Ward:   input.Ward,
		City:   input.City,
		Lat:    input.Lat,
		Lon:    input.Lon,
	}, ""
}

func (s *Service) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	var input AddressInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	addr, msg := validateAddress(input)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}

	p, err := s.loadProfile(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(p.Addresses) >= maxAddresses {
		httputil.BadRequest(w, "address book is full")
		return
	}

	p.Addresses = append(p.Addresses, addr)
	if err := s.repo.UpdateProfile(r.Context(), p); err != nil {
		s.Logger().WithError(err).Error("failed to add address")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) addressIndex(w http.ResponseWriter, r *http.Request, p *accountssupabase.Profile) (int, bool) {
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || idx < 0 || idx >= len(p.Addresses) {
		httputil.BadRequest(w, "address index out of range")
		return 0, false
	}
	return idx, true
}

func (s *Service) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	var input AddressInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	addr, msg := validateAddress(input)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}

	p, err := s.loadProfile(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	idx, ok := s.addressIndex(w, r, p)
	if !ok {
		return
	}

	p.Addresses[idx] = addr
	if err := s.repo.UpdateProfile(r.Context(), p); err != nil {
		s.Logger().WithError(err).Error("failed to update address")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	p, err := s.loadProfile(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	idx, ok := s.addressIndex(w, r, p)
	if !ok {
		return
	}

	p.Addresses = append(p.Addresses[:idx], p.Addresses[idx+1:]...)
	if err := s.repo.UpdateProfile(r.Context(), p); err != nil {
		s.Logger().WithError(err).Error("failed to delete address")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
