package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vegdirect/storefront/internal/database"
)

// Table names
const (
	tableEmailLogs = "email_logs"
)

// LogQuery narrows and pages the admin email-log listing.
type LogQuery struct {
	Type   string
	Status string
	Page   int
	Limit  int
}

// RepositoryInterface defines email-log data access methods.
// This interface allows for easy mocking in tests.
type RepositoryInterface interface {
	CreateLog(ctx context.Context, l *EmailLog) error
	PatchLog(ctx context.Context, id string, fields map[string]any) error
	ListLogs(ctx context.Context, q LogQuery) ([]EmailLog, int64, error)

	// DeleteLogsBefore removes logs created before cutoff and reports how
	// many rows went away. An empty sweep is not an error.
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// Repository provides email-log data access methods.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new mailer repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

// CreateLog inserts a new log row and assigns the generated ID.
func (r *Repository) CreateLog(ctx context.Context, l *EmailLog) error {
	if l == nil {
		return fmt.Errorf("email log cannot be nil")
	}
	l.SetTimestamps()
	return database.GenericCreate(r.base, ctx, tableEmailLogs, l, func(rows []EmailLog) {
		if len(rows) > 0 {
			*l = rows[0]
		}
	})
}

// PatchLog applies a partial column update to a log row.
func (r *Repository) PatchLog(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = time.Now().UTC()
	return database.GenericUpdate(r.base, ctx, tableEmailLogs, "id", id, patch)
}

// ListLogs returns a filtered page of logs, newest first, with the exact
// total.
func (r *Repository) ListLogs(ctx context.Context, q LogQuery) ([]EmailLog, int64, error) {
	spec := database.NewQuery().WithCount().OrderDesc("created_at")
	if q.Type != "" {
		spec.Eq("email_type", q.Type)
	}
	if q.Status != "" {
		spec.Eq("status", q.Status)
	}
	if q.Limit > 0 {
		spec.Limit(q.Limit)
		if q.Page > 1 {
			spec.Offset((q.Page - 1) * q.Limit)
		}
	}
	return database.GenericListPage[EmailLog](r.base, ctx, tableEmailLogs, spec.Build())
}

// DeleteLogsBefore removes logs created before cutoff.
func (r *Repository) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	data, _, err := r.base.Client().DB.From(tableEmailLogs).Delete().
		Lt("created_at", cutoff.UTC().Format(time.RFC3339)).
		Execute(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: sweep %s: %v", database.ErrDatabaseError, tableEmailLogs, err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, nil
	}
	return int64(len(rows)), nil
}
