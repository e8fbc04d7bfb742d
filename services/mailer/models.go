package mailer

import (
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

// DispatchRequest is the payload accepted by the dispatch endpoint. Order,
// Items and Invoice carry the data the template renders; callers that only
// know the order ID can omit them for types that don't need them.
type DispatchRequest struct {
	Type      string                     `json:"type"`
	OrderID   string                     `json:"order_id,omitempty"`
	Recipient string                     `json:"recipient"`
	Customer  string                     `json:"customer,omitempty"`
	Order     *orderssupabase.Order      `json:"order,omitempty"`
	Items     []orderssupabase.OrderItem `json:"items,omitempty"`
	Invoice   *orderssupabase.Invoice    `json:"invoice,omitempty"`
	Branding  *Branding                  `json:"branding,omitempty"`
}

// Branding is the store identity stamped on every mail. When the request
// leaves it empty the dispatcher fills it from the store settings.
type Branding struct {
	StoreName    string `json:"store_name"`
	LogoURL      string `json:"logo_url,omitempty"`
	SupportEmail string `json:"support_email,omitempty"`
}

// DispatchResponse reports the outcome of a dispatch call.
type DispatchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Message is a fully composed mail ready for the transport provider.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// queuedMail is the broker payload: the composed message plus the log row
// the consumer settles once the provider call finishes.
type queuedMail struct {
	LogID   string  `json:"log_id,omitempty"`
	Type    string  `json:"type"`
	Message Message `json:"message"`
}
