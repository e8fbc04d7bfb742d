package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const searchFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {
        "display_name": "12, Hàng Gai, Hoàn Kiếm, Hà Nội, 10000, Việt Nam",
        "address": {
          "house_number": "12",
          "road": "Hàng Gai",
          "city": "Hà Nội",
          "country": "Việt Nam"
        }
      },
      "geometry": {"type": "Point", "coordinates": [105.8516, 21.0313]}
    },
    {
      "type": "Feature",
      "properties": {
        "address": {"road": "Hàng Bạc", "town": "Hoàn Kiếm", "country": "Việt Nam"}
      },
      "geometry": {"type": "Point", "coordinates": [105.852, 21.034]}
    },
    {
      "type": "Feature",
      "properties": {"display_name": "boundary without a point"},
      "geometry": {"type": "Polygon", "coordinates": []}
    }
  ]
}`

func TestHTTPProviderSearch(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(srv.URL, "vegdirect-test/1.0")
	got, err := provider.Search(context.Background(), "hàng gai", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotReq.URL.Path != "/search" {
		t.Errorf("path = %s, want /search", gotReq.URL.Path)
	}
	q := gotReq.URL.Query()
	if q.Get("q") != "hàng gai" || q.Get("format") != "geojson" || q.Get("addressdetails") != "1" || q.Get("limit") != "5" {
		t.Errorf("query = %s", gotReq.URL.RawQuery)
	}
	if ua := gotReq.Header.Get("User-Agent"); ua != "vegdirect-test/1.0" {
		t.Errorf("user agent = %q", ua)
	}

	if len(got) != 2 {
		t.Fatalf("suggestions = %d, want 2 (feature without point coordinates dropped)", len(got))
	}
	first := got[0]
	if first.Label != "12, Hàng Gai, Hoàn Kiếm, Hà Nội, 10000, Việt Nam" {
		t.Errorf("label = %q", first.Label)
	}
	if first.Street != "12 Hàng Gai" || first.City != "Hà Nội" || first.Country != "Việt Nam" {
		t.Errorf("address fields = %+v", first)
	}
	if first.Lat != 21.0313 || first.Lon != 105.8516 {
		t.Errorf("coordinates = %v,%v (GeoJSON order is lon,lat)", first.Lat, first.Lon)
	}

	// No display_name: label composed from parts, city falls back to town.
	second := got[1]
	if second.Label != "Hàng Bạc, Hoàn Kiếm, Việt Nam" {
		t.Errorf("composed label = %q", second.Label)
	}
	if second.City != "Hoàn Kiếm" {
		t.Errorf("city fallback = %q", second.City)
	}
}

func TestHTTPProviderReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "21.0313" || q.Get("lon") != "105.8516" {
			t.Errorf("coordinates = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(srv.URL, "vegdirect-test/1.0")
	got, err := provider.Reverse(context.Background(), 21.0313, 105.8516)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if len(got) == 0 || got[0].Street != "12 Hàng Gai" {
		t.Errorf("got = %+v", got)
	}
}

func TestHTTPProviderReverseUnmatched(t *testing.T) {
	// The provider reports unmatchable coordinates as an error payload with
	// a 200 status.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": "Unable to geocode"}`))
	}))
	defer srv.Close()

	provider := NewHTTPProvider(srv.URL, "vegdirect-test/1.0")
	got, err := provider.Reverse(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got = %+v, want none", got)
	}
}

func TestHTTPProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	provider := NewHTTPProvider(srv.URL, "vegdirect-test/1.0")
	_, err := provider.Search(context.Background(), "hanoi", 5)
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "agent blocked") {
		t.Errorf("err = %v", err)
	}
}
