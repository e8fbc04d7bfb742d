package catalog

import (
	catalogsupabase "github.com/vegdirect/storefront/services/catalog/supabase"
)

// CreateProductInput is the admin payload for a new product.
type CreateProductInput struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	NameEN      string  `json:"name_en"`
	NameKO      string  `json:"name_ko"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Stock       int     `json:"stock"`
	Active      *bool   `json:"active"`
}

// UpdateProductInput carries a partial product update; nil fields are left
// untouched. Stock is adjusted through its own endpoint.
type UpdateProductInput struct {
	Name        *string  `json:"name"`
	NameEN      *string  `json:"name_en"`
	NameKO      *string  `json:"name_ko"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Unit        *string  `json:"unit"`
	Price       *float64 `json:"price"`
	Currency    *string  `json:"currency"`
	Active      *bool    `json:"active"`
}

// AdjustStockInput changes stock by a signed delta.
type AdjustStockInput struct {
	Delta int `json:"delta"`
}

// ProductView is a product row plus its derived public image URL.
type ProductView struct {
	catalogsupabase.Product
	ImageURL string `json:"image_url,omitempty"`
}

// DeleteResult reports what a delete request actually did: rows referenced
// by open orders are deactivated instead of removed.
type DeleteResult struct {
	Deleted     bool   `json:"deleted"`
	Deactivated bool   `json:"deactivated"`
	Message     string `json:"message"`
}

// ImageUploadResponse returns the stored object path and its public URL.
type ImageUploadResponse struct {
	ImagePath string `json:"image_path"`
	ImageURL  string `json:"image_url"`
}
