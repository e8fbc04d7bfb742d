package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
	mailersupabase "github.com/vegdirect/storefront/services/mailer/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

// =============================================================================
// Template Tests
// =============================================================================

func TestMailTemplatesCoverAllTypes(t *testing.T) {
	types := []string{
		mailersupabase.TypeOrderConfirmation,
		mailersupabase.TypeStatusUpdate,
		mailersupabase.TypeDriverAssigned,
		mailersupabase.TypeInvoiceIssued,
		mailersupabase.TypeDailySummary,
	}

	assert.Len(t, mailTemplates, len(types))
	for _, emailType := range types {
		assert.Contains(t, mailTemplates, emailType)
		assert.True(t, mailersupabase.ValidType(emailType))
	}
}

func TestComposeOrderConfirmation(t *testing.T) {
	req := confirmationReq()
	branding := Branding{StoreName: "VegDirect", SupportEmail: "support@vegdirect.vn"}

	msg, err := composeMail(&req, branding, "orders@vegdirect.vn")
	require.NoError(t, err)

	assert.Equal(t, "lan@pho24.vn", msg.To)
	assert.Equal(t, "orders@vegdirect.vn", msg.From)
	assert.Equal(t, "Order VD-260825-AAAA1111 confirmed", msg.Subject)

	assert.Contains(t, msg.HTML, "Hi Lan")
	assert.Contains(t, msg.HTML, "Rau muống")
	assert.Contains(t, msg.HTML, "36.000 ₫")
	assert.Contains(t, msg.HTML, "71.280 ₫")
	assert.Contains(t, msg.HTML, "12 Hang Gai, Ha Noi")
	assert.Contains(t, msg.HTML, "support@vegdirect.vn")
}

func TestComposeStatusUpdatePhrases(t *testing.T) {
	phrases := map[string]string{
		orderssupabase.StatusPending:    "received",
		orderssupabase.StatusProcessing: "being prepared",
		orderssupabase.StatusCompleted:  "delivered",
		orderssupabase.StatusCancelled:  "cancelled",
	}

	for status, phrase := range phrases {
		order := sampleOrder()
		order.Status = status
		msg, err := composeMail(&DispatchRequest{
			Type:      mailersupabase.TypeStatusUpdate,
			Recipient: "lan@pho24.vn",
			Customer:  "Lan",
			Order:     order,
		}, Branding{StoreName: "VegDirect"}, "orders@vegdirect.vn")
		require.NoError(t, err, status)

		assert.Equal(t, "Order VD-260825-AAAA1111 is "+phrase, msg.Subject)
		assert.Contains(t, msg.HTML, "your order is now "+phrase)
	}
}

func TestComposeCancellationReassures(t *testing.T) {
	order := sampleOrder()
	order.Status = orderssupabase.StatusCancelled

	msg, err := composeMail(&DispatchRequest{
		Type:      mailersupabase.TypeStatusUpdate,
		Recipient: "lan@pho24.vn",
		Order:     order,
	}, Branding{StoreName: "VegDirect"}, "orders@vegdirect.vn")
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "Nothing will be charged")
}

func TestComposeDriverAssignedPaymentModes(t *testing.T) {
	cod := sampleOrder()
	msg, err := composeMail(&DispatchRequest{
		Type:      mailersupabase.TypeDriverAssigned,
		Recipient: "tai@vegdirect.vn",
		Customer:  "Tài",
		Order:     cod,
	}, Branding{StoreName: "VegDirect"}, "orders@vegdirect.vn")
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "Collect 71.280 ₫ on delivery")

	paid := sampleOrder()
	paid.PaymentStatus = orderssupabase.PaymentPaid
	msg, err = composeMail(&DispatchRequest{
		Type:      mailersupabase.TypeDriverAssigned,
		Recipient: "tai@vegdirect.vn",
		Customer:  "Tài",
		Order:     paid,
	}, Branding{StoreName: "VegDirect"}, "orders@vegdirect.vn")
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "nothing to collect")
}

func TestComposeInvoiceIssued(t *testing.T) {
	msg, err := composeMail(&DispatchRequest{
		Type:      mailersupabase.TypeInvoiceIssued,
		Recipient: "lan@pho24.vn",
		Customer:  "Lan",
		Order:     sampleOrder(),
		Invoice:   &orderssupabase.Invoice{InvoiceNumber: "INV-2026-0007", Status: "pending"},
	}, Branding{StoreName: "VegDirect"}, "orders@vegdirect.vn")
	require.NoError(t, err)

	assert.Equal(t, "Invoice INV-2026-0007 for order VD-260825-AAAA1111", msg.Subject)
	assert.Contains(t, msg.HTML, "71.280 ₫")
}

func TestRenderDailySummary(t *testing.T) {
	data := &mailData{
		Branding: Branding{StoreName: "VegDirect"},
		Summary: &summaryFigures{
			Day:        "2026-08-24",
			Orders:     12,
			Revenue:    "1.450.000 ₫",
			Pending:    3,
			Processing: 2,
			Completed:  6,
			Cancelled:  1,
		},
	}

	msg, err := renderMail(mailersupabase.TypeDailySummary, data, "admin@vegdirect.vn", "orders@vegdirect.vn")
	require.NoError(t, err)

	assert.Equal(t, "VegDirect daily summary: 2026-08-24", msg.Subject)
	assert.Contains(t, msg.HTML, "12 orders placed, 1.450.000 ₫ paid")
}

func TestRenderUnknownTypeFails(t *testing.T) {
	_, err := renderMail("marketing_blast", &mailData{}, "a@b.c", "orders@vegdirect.vn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown email type")
}

func TestBuildMailDataDefaults(t *testing.T) {
	d := buildMailData(&DispatchRequest{Order: sampleOrder()}, Branding{StoreName: "VegDirect"})
	assert.Equal(t, "there", d.Customer, "missing customer name falls back to a greeting")
	assert.Equal(t, "71.280 ₫", d.Total)

	// Unknown statuses pass through unchanged rather than guessing a phrase.
	assert.Equal(t, "refunded", statusPhrase("refunded"))
}

func TestFormatAddressSkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "12 Hang Gai, Hoan Kiem, Ha Noi", formatAddress(accountssupabase.Address{
		Street: "12 Hang Gai",
		Ward:   "Hoan Kiem",
		City:   "Ha Noi",
	}))
	assert.Equal(t, "12 Hang Gai, Ha Noi", formatAddress(accountssupabase.Address{
		Street: "12 Hang Gai",
		City:   "Ha Noi",
	}))
	assert.Equal(t, "", formatAddress(accountssupabase.Address{}))
}
