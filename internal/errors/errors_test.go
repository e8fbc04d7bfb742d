package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestGetServiceErrorUnwrapsChain(t *testing.T) {
	cause := stderrors.New("boom")
	err := Internal("order lookup failed", cause)

	wrapped := stderrors.Join(stderrors.New("outer"), err)

	se := GetServiceError(wrapped)
	if se == nil {
		t.Fatal("expected service error in chain")
	}
	if se.Code != CodeInternal {
		t.Errorf("code = %s, want %s", se.Code, CodeInternal)
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("expected cause to remain reachable via errors.Is")
	}
}

func TestGetServiceErrorReturnsNilForPlainError(t *testing.T) {
	if se := GetServiceError(stderrors.New("plain")); se != nil {
		t.Errorf("expected nil, got %v", se)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad input"), http.StatusBadRequest},
		{Unauthorized("no header"), http.StatusUnauthorized},
		{InvalidToken(nil), http.StatusUnauthorized},
		{Forbidden("admin only"), http.StatusForbidden},
		{NotFound("order"), http.StatusNotFound},
		{Conflict("stock underflow"), http.StatusConflict},
		{RateLimitExceeded(10, "1s"), http.StatusTooManyRequests},
		{Upstream("geocoder", nil), http.StatusBadGateway},
		{Internal("unexpected", nil), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWithDetailsAccumulates(t *testing.T) {
	err := Validation("missing fields").
		WithDetails("field", "driver_id").
		WithDetails("reason", "empty")

	if len(err.Details) != 2 {
		t.Fatalf("details = %d entries, want 2", len(err.Details))
	}
	if err.Details["field"] != "driver_id" {
		t.Errorf("field detail = %v", err.Details["field"])
	}
}

func TestIsCode(t *testing.T) {
	err := NotFound("product")
	if !IsCode(err, CodeNotFound) {
		t.Error("expected CodeNotFound match")
	}
	if IsCode(err, CodeConflict) {
		t.Error("unexpected CodeConflict match")
	}
}
