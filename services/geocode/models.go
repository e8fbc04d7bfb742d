package geocode

// Suggestion is one address candidate returned to the storefront. Street
// carries the house number when the provider knows it, so the value can be
// copied straight into an address form.
type Suggestion struct {
	Label   string  `json:"label"`
	Street  string  `json:"street,omitempty"`
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// SearchResponse is the forward-geocoding payload.
type SearchResponse struct {
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
}

// ReverseResponse resolves a coordinate to the nearest known address.
type ReverseResponse struct {
	Lat     float64    `json:"lat"`
	Lon     float64    `json:"lon"`
	Address Suggestion `json:"address"`
}
