package mailer

import (
	"net/http"

	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/pkg/pagination"
	mailersupabase "github.com/vegdirect/storefront/services/mailer/supabase"
)

// handleDispatch composes and sends one mail.
// POST /email/dispatch
func (s *Service) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	queued, err := s.dispatch(r.Context(), &req)
	if err != nil {
		s.Logger().WithContext(r.Context()).WithError(err).Warn("email dispatch failed")
		httputil.WriteError(w, err)
		return
	}

	msg := "email sent"
	if queued {
		msg = "email queued"
	}
	httputil.WriteJSON(w, http.StatusOK, DispatchResponse{Success: true, Message: msg})
}

// handleListLogs returns a filtered page of email logs.
// GET /admin/email/logs?type=&status=&page=&limit=
func (s *Service) handleListLogs(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	q := mailersupabase.LogQuery{Page: params.Page, Limit: params.Limit}

	if v := r.URL.Query().Get("type"); v != "" {
		if !mailersupabase.ValidType(v) {
			httputil.BadRequest(w, "unknown email type: "+v)
			return
		}
		q.Type = v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		if !mailersupabase.ValidLogStatus(v) {
			httputil.BadRequest(w, "unknown log status: "+v)
			return
		}
		q.Status = v
	}

	rows, total, err := s.repo.ListLogs(r.Context(), q)
	if err != nil {
		s.Logger().WithError(err).Error("failed to list email logs")
		httputil.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []mailersupabase.EmailLog{}
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(rows, total, params))
}
