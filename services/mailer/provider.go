package mailer

import (
	"context"

	"github.com/vegdirect/storefront/internal/httputil"
)

// Provider delivers composed messages to the transactional mail service.
type Provider interface {
	Send(ctx context.Context, msg *Message) error
}

// HTTPProvider posts messages to the provider's REST endpoint, authenticated
// with the account API key. Transient failures are retried by the underlying
// client.
type HTTPProvider struct {
	client *httputil.Client
}

// NewHTTPProvider builds a provider client for the given endpoint.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{client: httputil.NewClient(httputil.ClientConfig{
		BaseURL:   baseURL,
		AuthToken: apiKey,
	})}
}

// Send posts one message.
func (p *HTTPProvider) Send(ctx context.Context, msg *Message) error {
	resp, err := p.client.Post(ctx, "/messages", msg)
	if err != nil {
		return err
	}
	return httputil.DecodeResponse(resp, nil)
}
