// Package database provides the shared repository base over hosted row
// storage. Service-specific repositories wrap *Repository and call the
// generic helpers with their own table names and record types.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vegdirect/storefront/internal/supabase"
)

// Sentinel errors wrapped by repository operations.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDatabaseError = errors.New("database error")
	ErrInvalidInput  = errors.New("invalid input")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput reports whether err wraps ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Repository is the shared data-access base.
type Repository struct {
	client *supabase.Client
}

// NewRepository wraps a backend client.
func NewRepository(client *supabase.Client) *Repository {
	return &Repository{client: client}
}

// Client exposes the underlying backend client for operations the generic
// helpers do not cover (RPC, storage, realtime).
func (r *Repository) Client() *supabase.Client {
	return r.client
}

// HealthCheck verifies the row-storage endpoint is reachable.
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: health check: %v", ErrDatabaseError, err)
	}
	return nil
}

// ValidateUserID rejects empty or malformed user identifiers before they
// reach a filter expression.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id cannot be empty", ErrInvalidInput)
	}
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("%w: user_id must be a UUID", ErrInvalidInput)
	}
	return nil
}
