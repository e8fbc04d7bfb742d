package geocode

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vegdirect/storefront/internal/httputil"
)

const maxProviderResponse = 1 << 20

// Provider performs address lookups. The HTTP client below talks to a
// GeoJSON lookup API; tests substitute fakes.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Suggestion, error)
	Reverse(ctx context.Context, lat, lon float64) ([]Suggestion, error)
}

// HTTPProvider queries an OSM-style lookup service that speaks GeoJSON
// (Nominatim, Photon and compatible deployments).
type HTTPProvider struct {
	http *httputil.Client
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider client. The user agent identifies this
// deployment; public lookup services refuse anonymous clients.
func NewHTTPProvider(baseURL, userAgent string) *HTTPProvider {
	return &HTTPProvider{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL:   baseURL,
			UserAgent: userAgent,
		}),
	}
}

// Search returns up to limit suggestions for a free-text query.
func (p *HTTPProvider) Search(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "geojson")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(limit))

	body, err := p.fetch(ctx, "/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return parseFeatures(body), nil
}

// Reverse resolves a coordinate. The provider answers with a feature
// collection holding at most one feature.
func (p *HTTPProvider) Reverse(ctx context.Context, lat, lon float64) ([]Suggestion, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "geojson")
	params.Set("addressdetails", "1")

	body, err := p.fetch(ctx, "/reverse?"+params.Encode())
	if err != nil {
		return nil, err
	}
	// An unmatchable coordinate comes back as {"error": ...} with status 200.
	if gjson.GetBytes(body, "error").Exists() {
		return nil, nil
	}
	return parseFeatures(body), nil
}

func (p *HTTPProvider) fetch(ctx context.Context, path string) ([]byte, error) {
	resp, err := p.http.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _, _ := httputil.ReadAllWithLimit(resp.Body, 8<<10)
		return nil, fmt.Errorf("lookup failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return httputil.ReadAllStrict(resp.Body, maxProviderResponse)
}

// parseFeatures extracts suggestions from a GeoJSON feature collection.
// Features without point coordinates are dropped.
func parseFeatures(body []byte) []Suggestion {
	features := gjson.GetBytes(body, "features").Array()
	out := make([]Suggestion, 0, len(features))
	for _, f := range features {
		coords := f.Get("geometry.coordinates").Array()
		if len(coords) < 2 {
			continue
		}
		addr := f.Get("properties.address")
		s := Suggestion{
			Label:   f.Get("properties.display_name").String(),
			Street:  joinStreet(addr.Get("house_number").String(), addr.Get("road").String()),
			City:    firstOf(addr, "city", "town", "village", "state"),
			Country: addr.Get("country").String(),
			Lon:     coords[0].Float(),
			Lat:     coords[1].Float(),
		}
		if s.Label == "" {
			s.Label = strings.Join(nonEmpty(s.Street, s.City, s.Country), ", ")
		}
		out = append(out, s)
	}
	return out
}

func joinStreet(houseNumber, road string) string {
	return strings.TrimSpace(houseNumber + " " + road)
}

func firstOf(addr gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := addr.Get(key).String(); v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
