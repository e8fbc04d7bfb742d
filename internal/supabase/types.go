// Package supabase implements the hosted-backend client: PostgREST row
// storage, GoTrue auth, object storage and realtime change feeds behind a
// retrying, circuit-broken HTTP core.
package supabase

import (
	"errors"
	"fmt"
	"time"
)

// Config configures the client.
type Config struct {
	// ProjectURL is the backend base URL, e.g. https://xyz.supabase.co.
	ProjectURL string
	// AnonKey is the public API key used for user-scoped requests.
	AnonKey string
	// ServiceKey is the privileged key for server-side operations.
	ServiceKey string
	// AllowedHosts restricts outbound hosts; defaults to the project host.
	AllowedHosts []string
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration
	// DefaultHeaders are attached to every request.
	DefaultHeaders map[string]string
	// Retry overrides the default retry policy when non-nil.
	Retry *RetryConfig
	// OnRequestOutcome, when set, observes each request outcome
	// ("ok", "error", "retry").
	OnRequestOutcome func(outcome string)
	// OnBreakerOpen, when set, observes circuit-breaker trips.
	OnBreakerOpen func()
}

// User is a hosted-auth user record.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Session is an issued auth session.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// SignUpRequest registers a new user.
type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// =============================================================================
// Filters and ordering
// =============================================================================

// FilterOperator is a PostgREST filter operator.
type FilterOperator string

const (
	OpEq    FilterOperator = "eq"
	OpNeq   FilterOperator = "neq"
	OpGt    FilterOperator = "gt"
	OpGte   FilterOperator = "gte"
	OpLt    FilterOperator = "lt"
	OpLte   FilterOperator = "lte"
	OpLike  FilterOperator = "like"
	OpILike FilterOperator = "ilike"
	OpIs    FilterOperator = "is"
	OpIn    FilterOperator = "in"
	OpCs    FilterOperator = "cs"
)

// OrderDirection is a PostgREST order direction.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// =============================================================================
// Storage types
// =============================================================================

// Bucket is a storage bucket.
type Bucket struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileObject is a stored object.
type FileObject struct {
	Name     string `json:"name"`
	BucketID string `json:"bucket_id"`
}

// UploadOptions controls file uploads.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// =============================================================================
// Errors
// =============================================================================

// Error is a structured backend error (PostgREST/GoTrue/Storage).
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("supabase: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether the backend signalled a missing row/object.
// PostgREST answers 406 for an empty single-object request.
func (e *Error) IsNotFound() bool {
	return e.StatusCode == 404 || e.StatusCode == 406
}

// IsFunctionMissing reports whether an RPC target does not exist, which is
// the trigger for client-side fallback aggregation.
func (e *Error) IsFunctionMissing() bool {
	// PGRST202: function not found in the schema cache.
	return e.StatusCode == 404 || e.Code == "PGRST202" || e.Code == "42883"
}

// AsError extracts a backend *Error from err's chain, or nil.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return nil
}
