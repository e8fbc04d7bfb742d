package geocode

import (
	"net/http"
	"strconv"

	"github.com/vegdirect/storefront/internal/errors"
	"github.com/vegdirect/storefront/internal/httputil"
)

// handleSearch handles GET /geocode/search?q=&limit=
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.BadRequest(w, "limit must be a number")
			return
		}
		limit = n
	}

	result, err := s.search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleReverse handles GET /geocode/reverse?lat=&lon=
func (s *Service) handleReverse(w http.ResponseWriter, r *http.Request) {
	lat, err := coordParam(r, "lat")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lon, err := coordParam(r, "lon")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := s.reverse(r.Context(), lat, lon)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func coordParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.Validation(name + " is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Validation(name + " must be a number")
	}
	return v, nil
}
