package accounts

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/pkg/pagination"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
)

// =============================================================================
// Admin user handlers
// =============================================================================

func (s *Service) handleListUsers(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	role := r.URL.Query().Get("role")
	if role != "" && !accountssupabase.ValidRole(role) {
		httputil.BadRequest(w, "unknown role: "+role)
		return
	}

	query := accountssupabase.ProfileQuery{
		Role:   role,
		Search: r.URL.Query().Get("search"),
		Page:   params.Page,
		Limit:  params.Limit,
	}
	profiles, total, err := s.repo.ListProfiles(r.Context(), query)
	if err != nil {
		s.Logger().WithError(err).Error("failed to list users")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(profiles, total, params))
}

func (s *Service) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.repo.GetProfile(r.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "user not found")
			return
		}
		s.Logger().WithError(err).Error("failed to get user")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var input AdminUpdateUserInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.Role != nil && !accountssupabase.ValidRole(*input.Role) {
		httputil.BadRequest(w, "unknown role: "+*input.Role)
		return
	}

	p, err := s.repo.GetProfile(r.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "user not found")
			return
		}
		httputil.WriteError(w, err)
		return
	}

	roleChanged := false
	if input.Role != nil && *input.Role != p.Role {
		p.Role = *input.Role
		roleChanged = true
	}
	if input.Active != nil {
		p.Active = *input.Active
	}
	if input.FullName != nil {
		p.FullName = *input.FullName
	}

	if err := s.repo.UpdateProfile(r.Context(), p); err != nil {
		s.Logger().WithError(err).Error("failed to update user")
		httputil.WriteError(w, err)
		return
	}
	if roleChanged {
		s.invalidateRole(r.Context(), id)
		s.Logger().WithFields(map[string]interface{}{
			"user_id": id,
			"role":    p.Role,
			"admin":   middleware.GetUserID(r.Context()),
		}).Info("user role changed")
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// handleDeactivateUser deactivates a user. Rows are never deleted so order
// history keeps its author.
func (s *Service) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == middleware.GetUserID(r.Context()) {
		httputil.BadRequest(w, "cannot deactivate your own account")
		return
	}

	if err := s.repo.SetActive(r.Context(), id, false); err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "user not found")
			return
		}
		s.Logger().WithError(err).Error("failed to deactivate user")
		httputil.WriteError(w, err)
		return
	}
	s.invalidateRole(r.Context(), id)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"active": false,
	})
}

func (s *Service) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.repo.ListByRole(r.Context(), accountssupabase.RoleDriver)
	if err != nil {
		s.Logger().WithError(err).Error("failed to list drivers")
		httputil.WriteError(w, err)
		return
	}

	drivers := make([]DriverView, 0, len(profiles))
	for _, p := range profiles {
		drivers = append(drivers, DriverView{
			ID:       p.ID,
			FullName: p.FullName,
			Phone:    p.Phone,
			Email:    p.Email,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"drivers": drivers})
}

// =============================================================================
// Admin API key handlers
// =============================================================================

func (s *Service) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var input CreateAPIKeyInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	raw, prefix, err := GenerateAPIKey()
	if err != nil {
		s.Logger().WithError(err).Error("api key generation failed")
		httputil.InternalError(w, "failed to generate key")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		s.Logger().WithError(err).Error("api key hashing failed")
		httputil.InternalError(w, "failed to generate key")
		return
	}

	key := &accountssupabase.APIKey{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Prefix:    prefix,
		KeyHash:   string(hash),
		CreatedBy: middleware.GetUserID(r.Context()),
	}
	if err := s.repo.CreateAPIKey(r.Context(), key); err != nil {
		s.Logger().WithError(err).Error("failed to store api key")
		httputil.WriteError(w, err)
		return
	}

	s.Logger().WithFields(map[string]interface{}{
		"key_id": key.ID,
		"name":   key.Name,
	}).Info("api key created")
	httputil.WriteJSON(w, http.StatusCreated, APIKeyCreated{
		ID:     key.ID,
		Name:   key.Name,
		Prefix: prefix,
		Key:    raw,
	})
}

func (s *Service) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.repo.ListAPIKeys(r.Context())
	if err != nil {
		s.Logger().WithError(err).Error("failed to list api keys")
		httputil.WriteError(w, err)
		return
	}

	views := make([]APIKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, apiKeyView(k))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"keys": views})
}

func (s *Service) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.repo.RevokeAPIKey(r.Context(), id); err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "api key not found")
			return
		}
		s.Logger().WithError(err).Error("failed to revoke api key")
		httputil.WriteError(w, err)
		return
	}

	s.Logger().WithField("key_id", id).Info("api key revoked")
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"revoked": true,
	})
}
