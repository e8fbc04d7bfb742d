// Package supabase provides email-log database operations.
package supabase

import "time"

// Email types
const (
	TypeOrderConfirmation = "order_confirmation"
	TypeStatusUpdate      = "status_update"
	TypeDriverAssigned    = "driver_assigned"
	TypeInvoiceIssued     = "invoice_issued"
	TypeDailySummary      = "daily_summary"
)

// Log statuses. A row is created as queued and settles into sent or failed
// once the provider call finishes.
const (
	StatusQueued = "queued"
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ValidType reports whether t names a dispatchable email type.
func ValidType(t string) bool {
	switch t {
	case TypeOrderConfirmation, TypeStatusUpdate, TypeDriverAssigned, TypeInvoiceIssued, TypeDailySummary:
		return true
	}
	return false
}

// ValidLogStatus reports whether s names a log status.
func ValidLogStatus(s string) bool {
	return s == StatusQueued || s == StatusSent || s == StatusFailed
}

// EmailLog records one dispatch attempt. The error column keeps the provider
// failure text so support can answer "did the customer get the mail".
type EmailLog struct {
	ID        string    `json:"id,omitempty"`
	Recipient string    `json:"recipient"`
	EmailType string    `json:"email_type"`
	OrderID   string    `json:"order_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SetTimestamps stamps creation and update times.
func (l *EmailLog) SetTimestamps() {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
}
