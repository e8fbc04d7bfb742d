package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/vegdirect/storefront/internal/errors"
	"github.com/vegdirect/storefront/pkg/money"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
	mailersupabase "github.com/vegdirect/storefront/services/mailer/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

// mailLine is one rendered order line.
type mailLine struct {
	Name      string
	Quantity  int
	Unit      string
	UnitPrice string
	LineTotal string
}

// summaryFigures carries the daily digest numbers, amounts pre-formatted.
type summaryFigures struct {
	Day        string
	Orders     int
	Revenue    string
	Pending    int
	Processing int
	Completed  int
	Cancelled  int
}

// mailData is the render context shared by all templates. Amounts are
// formatted before rendering so templates stay logic-free.
type mailData struct {
	Branding    Branding
	Customer    string
	Order       *orderssupabase.Order
	Invoice     *orderssupabase.Invoice
	Lines       []mailLine
	Subtotal    string
	VAT         string
	Total       string
	Address     string
	StatusLabel string
	Summary     *summaryFigures
}

const layoutTemplate = `{{define "layout"}}<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:#f4f6f4;font-family:Arial,Helvetica,sans-serif;color:#22301f;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="560" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="background:#2f6b3a;padding:20px 28px;">
{{if .Branding.LogoURL}}<img src="{{.Branding.LogoURL}}" alt="{{.Branding.StoreName}}" height="36" style="display:block;">{{else}}<span style="color:#ffffff;font-size:20px;font-weight:bold;">{{.Branding.StoreName}}</span>{{end}}
</td></tr>
<tr><td style="padding:28px;">{{template "body" .}}</td></tr>
<tr><td style="padding:16px 28px;background:#f0f4ef;font-size:12px;color:#5d6b59;">
{{.Branding.StoreName}}{{if .Branding.SupportEmail}} &middot; <a href="mailto:{{.Branding.SupportEmail}}" style="color:#2f6b3a;">{{.Branding.SupportEmail}}</a>{{end}}
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>{{end}}`

const orderConfirmationBody = `{{define "body"}}<h2 style="margin:0 0 12px;font-size:18px;">Order {{.Order.OrderNumber}} confirmed</h2>
<p style="margin:0 0 16px;font-size:14px;">Hi {{.Customer}}, thanks for your order. We are getting it ready.</p>
<table width="100%" cellpadding="6" cellspacing="0" style="border-collapse:collapse;font-size:14px;">
<tr style="background:#f0f4ef;"><th align="left">Item</th><th align="right">Qty</th><th align="right">Price</th><th align="right">Total</th></tr>
{{range .Lines}}<tr><td style="border-bottom:1px solid #e3e8e2;">{{.Name}}{{if .Unit}} ({{.Unit}}){{end}}</td><td align="right" style="border-bottom:1px solid #e3e8e2;">{{.Quantity}}</td><td align="right" style="border-bottom:1px solid #e3e8e2;">{{.UnitPrice}}</td><td align="right" style="border-bottom:1px solid #e3e8e2;">{{.LineTotal}}</td></tr>
{{end}}<tr><td colspan="3" align="right">Subtotal</td><td align="right">{{.Subtotal}}</td></tr>
<tr><td colspan="3" align="right">VAT ({{.Order.VATPercent}}%)</td><td align="right">{{.VAT}}</td></tr>
<tr><td colspan="3" align="right" style="font-weight:bold;">Total</td><td align="right" style="font-weight:bold;">{{.Total}}</td></tr>
</table>
{{if .Address}}<p style="margin:16px 0 0;font-size:14px;">Delivery to: {{.Address}}</p>{{end}}
{{end}}`

const statusUpdateBody = `{{define "body"}}<h2 style="margin:0 0 12px;font-size:18px;">Order {{.Order.OrderNumber}}</h2>
<p style="margin:0 0 16px;font-size:14px;">Hi {{.Customer}}, your order is now {{.StatusLabel}}.</p>
{{if eq .Order.Status "cancelled"}}<p style="margin:0 0 16px;font-size:14px;">Nothing will be charged for a cancelled order. Reply to this mail if that was not you.</p>{{end}}<p style="margin:0;font-size:14px;">Order total: {{.Total}}</p>
{{end}}`

const driverAssignedBody = `{{define "body"}}<h2 style="margin:0 0 12px;font-size:18px;">New delivery: order {{.Order.OrderNumber}}</h2>
<p style="margin:0 0 16px;font-size:14px;">Hi {{.Customer}}, this order was just assigned to you.</p>
{{if .Address}}<p style="margin:0 0 8px;font-size:14px;">Deliver to: {{.Address}}</p>{{end}}{{if eq .Order.PaymentStatus "paid"}}<p style="margin:0;font-size:14px;">Paid online, nothing to collect.</p>{{else}}<p style="margin:0;font-size:14px;">Collect {{.Total}} on delivery.</p>{{end}}
{{end}}`

const invoiceIssuedBody = `{{define "body"}}<h2 style="margin:0 0 12px;font-size:18px;">Invoice {{.Invoice.InvoiceNumber}}</h2>
<p style="margin:0 0 16px;font-size:14px;">Hi {{.Customer}}, the invoice for order {{.Order.OrderNumber}} is ready.</p>
<p style="margin:0 0 8px;font-size:14px;">Amount: {{.Total}}</p>
<p style="margin:0;font-size:14px;">Invoice status: {{.Invoice.Status}}</p>
{{end}}`

const dailySummaryBody = `{{define "body"}}<h2 style="margin:0 0 12px;font-size:18px;">Orders on {{.Summary.Day}}</h2>
<p style="margin:0 0 16px;font-size:14px;">{{.Summary.Orders}} orders placed, {{.Summary.Revenue}} paid.</p>
<table width="100%" cellpadding="6" cellspacing="0" style="border-collapse:collapse;font-size:14px;">
<tr style="background:#f0f4ef;"><th align="left">Status</th><th align="right">Orders</th></tr>
<tr><td>Pending</td><td align="right">{{.Summary.Pending}}</td></tr>
<tr><td>Processing</td><td align="right">{{.Summary.Processing}}</td></tr>
<tr><td>Completed</td><td align="right">{{.Summary.Completed}}</td></tr>
<tr><td>Cancelled</td><td align="right">{{.Summary.Cancelled}}</td></tr>
</table>
{{end}}`

var mailTemplates = map[string]*template.Template{
	mailersupabase.TypeOrderConfirmation: mustMailTemplate(orderConfirmationBody),
	mailersupabase.TypeStatusUpdate:      mustMailTemplate(statusUpdateBody),
	mailersupabase.TypeDriverAssigned:    mustMailTemplate(driverAssignedBody),
	mailersupabase.TypeInvoiceIssued:     mustMailTemplate(invoiceIssuedBody),
	mailersupabase.TypeDailySummary:      mustMailTemplate(dailySummaryBody),
}

func mustMailTemplate(body string) *template.Template {
	t := template.Must(template.New("mail").Parse(layoutTemplate))
	return template.Must(t.Parse(body))
}

// statusPhrase turns a status code into the wording customers see.
func statusPhrase(status string) string {
	switch status {
	case orderssupabase.StatusPending:
		return "received"
	case orderssupabase.StatusProcessing:
		return "being prepared"
	case orderssupabase.StatusCompleted:
		return "delivered"
	case orderssupabase.StatusCancelled:
		return "cancelled"
	}
	return status
}

func formatAddress(a accountssupabase.Address) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Street, a.Ward, a.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// buildMailData formats the request payload for rendering.
func buildMailData(req *DispatchRequest, branding Branding) *mailData {
	d := &mailData{
		Branding: branding,
		Customer: req.Customer,
		Order:    req.Order,
		Invoice:  req.Invoice,
	}
	if d.Customer == "" {
		d.Customer = "there"
	}
	if o := req.Order; o != nil {
		d.Subtotal = money.Format(o.Subtotal, o.Currency)
		d.VAT = money.Format(o.VATAmount, o.Currency)
		d.Total = money.Format(o.Total, o.Currency)
		d.Address = formatAddress(o.DeliveryAddress)
		d.StatusLabel = statusPhrase(o.Status)
		for _, it := range req.Items {
			d.Lines = append(d.Lines, mailLine{
				Name:      it.ProductName,
				Quantity:  it.Quantity,
				Unit:      it.Unit,
				UnitPrice: money.Format(it.UnitPrice, o.Currency),
				LineTotal: money.Format(it.LineTotal, o.Currency),
			})
		}
	}
	return d
}

func subjectFor(emailType string, d *mailData) string {
	switch emailType {
	case mailersupabase.TypeOrderConfirmation:
		return fmt.Sprintf("Order %s confirmed", d.Order.OrderNumber)
	case mailersupabase.TypeStatusUpdate:
		return fmt.Sprintf("Order %s is %s", d.Order.OrderNumber, d.StatusLabel)
	case mailersupabase.TypeDriverAssigned:
		return fmt.Sprintf("New delivery: order %s", d.Order.OrderNumber)
	case mailersupabase.TypeInvoiceIssued:
		return fmt.Sprintf("Invoice %s for order %s", d.Invoice.InvoiceNumber, d.Order.OrderNumber)
	case mailersupabase.TypeDailySummary:
		return fmt.Sprintf("%s daily summary: %s", d.Branding.StoreName, d.Summary.Day)
	}
	return d.Branding.StoreName
}

// renderMail executes the template for emailType and wraps the result in a
// transport message.
func renderMail(emailType string, data *mailData, to, from string) (*Message, error) {
	tpl, ok := mailTemplates[emailType]
	if !ok {
		return nil, errors.Validation("unknown email type: " + emailType)
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return nil, errors.Internal("render email template", err)
	}
	return &Message{To: to, From: from, Subject: subjectFor(emailType, data), HTML: buf.String()}, nil
}

// composeMail builds the message for a dispatch request.
func composeMail(req *DispatchRequest, branding Branding, from string) (*Message, error) {
	return renderMail(req.Type, buildMailData(req, branding), req.Recipient, from)
}
