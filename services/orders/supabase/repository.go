package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/vegdirect/storefront/internal/database"
)

// Table names
const (
	tableOrders     = "orders"
	tableOrderItems = "order_items"
	tableCarts      = "carts"
	tableInvoices   = "invoices"
)

// OrderQuery narrows and pages the admin order listing.
type OrderQuery struct {
	Status        string
	PaymentStatus string
	DriverID      string
	Page          int
	Limit         int
}

// =============================================================================
// Repository Interface
// =============================================================================

// RepositoryInterface defines order-specific data access methods.
// This interface allows for easy mocking in tests.
type RepositoryInterface interface {
	CreateOrder(ctx context.Context, o *Order) error
	CreateOrderItems(ctx context.Context, items []OrderItem) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID string, page, limit int) ([]Order, int64, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]Order, int64, error)
	ListAssigned(ctx context.Context, driverID string) ([]Order, error)
	PatchOrder(ctx context.Context, id string, fields map[string]any) error
	DeleteOrder(ctx context.Context, id string) error

	// ProductInOpenOrders reports whether a product is referenced by an
	// order that is still pending or processing.
	ProductInOpenOrders(ctx context.Context, productID string) (bool, error)

	GetCart(ctx context.Context, userID string) (*Cart, error)
	SaveCart(ctx context.Context, c *Cart) error
	DeleteCart(ctx context.Context, userID string) error

	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	GetInvoiceByOrder(ctx context.Context, orderID string) (*Invoice, error)
	PatchInvoice(ctx context.Context, id string, fields map[string]any) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)

// =============================================================================
// Repository Implementation
// =============================================================================

// Repository provides order-specific data access methods.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a new orders repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

// CreateOrder inserts an order row.
func (r *Repository) CreateOrder(ctx context.Context, o *Order) error {
	if o == nil {
		return fmt.Errorf("order cannot be nil")
	}
	if o.UserID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	o.SetTimestamps()
	return database.GenericCreate(r.base, ctx, tableOrders, o, func(rows []Order) {
		if len(rows) > 0 {
			*o = rows[0]
		}
	})
}

// CreateOrderItems inserts the snapshot lines of an order in one call.
func (r *Repository) CreateOrderItems(ctx context.Context, items []OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("order items cannot be empty")
	}
	return database.GenericCreate(r.base, ctx, tableOrderItems, items, func(rows []OrderItem) {
		if len(rows) == len(items) {
			copy(items, rows)
		}
	})
}

// GetOrder fetches an order by ID.
func (r *Repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	return database.GenericGetByField[Order](r.base, ctx, tableOrders, "id", id)
}

// ListOrderItems returns the snapshot lines of an order.
func (r *Repository) ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	return database.GenericListByField[OrderItem](r.base, ctx, tableOrderItems, "order_id", orderID)
}

// ListOrdersByUser returns a page of the user's orders, newest first.
func (r *Repository) ListOrdersByUser(ctx context.Context, userID string, page, limit int) ([]Order, int64, error) {
	if err := database.ValidateUserID(userID); err != nil {
		return nil, 0, err
	}
	spec := database.NewQuery().WithCount().
		Eq("user_id", userID).
		OrderDesc("created_at")
	if limit > 0 {
		spec.Limit(limit)
		if page > 1 {
			spec.Offset((page - 1) * limit)
		}
	}
	return database.GenericListPage[Order](r.base, ctx, tableOrders, spec.Build())
}

// ListOrders returns a filtered admin page of orders, newest first, with the
// exact total.
func (r *Repository) ListOrders(ctx context.Context, q OrderQuery) ([]Order, int64, error) {
	spec := database.NewQuery().WithCount().OrderDesc("created_at")
	if q.Status != "" {
		spec.Eq("status", q.Status)
	}
	if q.PaymentStatus != "" {
		spec.Eq("payment_status", q.PaymentStatus)
	}
	if q.DriverID != "" {
		spec.Eq("assigned_driver_id", q.DriverID)
	}
	if q.Limit > 0 {
		spec.Limit(q.Limit)
		if q.Page > 1 {
			spec.Offset((q.Page - 1) * q.Limit)
		}
	}
	return database.GenericListPage[Order](r.base, ctx, tableOrders, spec.Build())
}

// ListAssigned returns the driver's open deliveries, oldest first so the
// longest-waiting order tops the run sheet.
func (r *Repository) ListAssigned(ctx context.Context, driverID string) ([]Order, error) {
	if err := database.ValidateUserID(driverID); err != nil {
		return nil, err
	}
	spec := database.NewQuery().
		Eq("assigned_driver_id", driverID).
		In("status", StatusPending, StatusProcessing).
		OrderAsc("created_at")
	return database.GenericListWithQuery[Order](r.base, ctx, tableOrders, spec.Build())
}

// PatchOrder applies a partial column update to an order.
func (r *Repository) PatchOrder(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = time.Now().UTC()
	return database.GenericUpdate(r.base, ctx, tableOrders, "id", id, patch)
}

// DeleteOrder removes an order row. Only checkout rollback uses this; the
// admin plane cancels instead.
func (r *Repository) DeleteOrder(ctx context.Context, id string) error {
	return database.GenericDelete(r.base, ctx, tableOrders, "id", id)
}

// ProductInOpenOrders checks order_items joined against open orders.
func (r *Repository) ProductInOpenOrders(ctx context.Context, productID string) (bool, error) {
	type row struct {
		ID string `json:"id"`
	}
	spec := database.NewQuery().
		Select("id,orders!inner(status)").
		Eq("product_id", productID).
		In("orders.status", StatusPending, StatusProcessing).
		Limit(1)
	rows, err := database.GenericListWithQuery[row](r.base, ctx, tableOrderItems, spec.Build())
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// =============================================================================
// Carts
// =============================================================================

// GetCart fetches the user's staged cart.
func (r *Repository) GetCart(ctx context.Context, userID string) (*Cart, error) {
	if err := database.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return database.GenericGetByField[Cart](r.base, ctx, tableCarts, "user_id", userID)
}

// SaveCart upserts the user's single cart row.
func (r *Repository) SaveCart(ctx context.Context, c *Cart) error {
	if c == nil {
		return fmt.Errorf("cart cannot be nil")
	}
	if err := database.ValidateUserID(c.UserID); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	return database.GenericUpsert(r.base, ctx, tableCarts, c, "user_id", func(rows []Cart) {
		if len(rows) > 0 {
			*c = rows[0]
		}
	})
}

// DeleteCart drops the user's cart row.
func (r *Repository) DeleteCart(ctx context.Context, userID string) error {
	return database.GenericDelete(r.base, ctx, tableCarts, "user_id", userID)
}

// =============================================================================
// Invoices
// =============================================================================

// CreateInvoice inserts an invoice row.
func (r *Repository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv == nil {
		return fmt.Errorf("invoice cannot be nil")
	}
	if inv.OrderID == "" {
		return fmt.Errorf("order id cannot be empty")
	}
	inv.SetTimestamps()
	return database.GenericCreate(r.base, ctx, tableInvoices, inv, func(rows []Invoice) {
		if len(rows) > 0 {
			*inv = rows[0]
		}
	})
}

// GetInvoice fetches an invoice by ID.
func (r *Repository) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	return database.GenericGetByField[Invoice](r.base, ctx, tableInvoices, "id", id)
}

// GetInvoiceByOrder fetches the invoice attached to an order.
func (r *Repository) GetInvoiceByOrder(ctx context.Context, orderID string) (*Invoice, error) {
	return database.GenericGetByField[Invoice](r.base, ctx, tableInvoices, "order_id", orderID)
}

// PatchInvoice applies a partial column update to an invoice.
func (r *Repository) PatchInvoice(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = time.Now().UTC()
	return database.GenericUpdate(r.base, ctx, tableInvoices, "id", id, patch)
}
