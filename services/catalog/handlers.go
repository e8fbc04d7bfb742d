package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/internal/supabase"
	"github.com/vegdirect/storefront/pkg/pagination"
	catalogsupabase "github.com/vegdirect/storefront/services/catalog/supabase"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// =============================================================================
// Storefront Handlers
// =============================================================================

// handleListProducts returns the product listing. Customers see active rows
// only; admins may pass include_inactive=true.
func (s *Service) handleListProducts(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	query := catalogsupabase.ListQuery{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Page:     params.Page,
		Limit:    params.Limit,
	}
	if r.URL.Query().Get("include_inactive") == "true" &&
		middleware.GetUserRole(r.Context()) == middleware.RoleAdmin {
		query.IncludeInactive = true
	}

	cacheable := s.cache != nil && query == (catalogsupabase.ListQuery{Page: 1, Limit: pagination.DefaultLimit})
	if cacheable {
		if body, ok, err := s.cache.Get(r.Context(), listCacheKey); err == nil && ok {
			s.recordCacheOutcome("hit")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
			return
		}
		s.recordCacheOutcome("miss")
	}

	items, total, err := s.repo.List(r.Context(), query)
	if err != nil {
		s.Logger().WithError(err).Error("product listing failed")
		httputil.InternalError(w, "failed to list products")
		return
	}

	views := make([]ProductView, 0, len(items))
	for _, p := range items {
		views = append(views, ProductView{Product: p, ImageURL: s.publicImageURL(p.ImagePath)})
	}
	resp := pagination.NewResult(views, total, params)

	if cacheable {
		if body, err := json.Marshal(resp); err == nil {
			if err := s.cache.Set(r.Context(), listCacheKey, string(body), listCacheTTL); err != nil {
				s.Logger().WithError(err).Warn("catalog cache write failed")
			}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleGetProduct returns one product. Inactive rows are hidden from
// non-admin callers.
func (s *Service) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "product not found")
			return
		}
		httputil.InternalError(w, "failed to fetch product")
		return
	}
	if !p.Active && middleware.GetUserRole(r.Context()) != middleware.RoleAdmin {
		httputil.NotFound(w, "product not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ProductView{Product: *p, ImageURL: s.publicImageURL(p.ImagePath)})
}

// =============================================================================
// Admin Handlers
// =============================================================================

// handleCreateProduct creates a product row.
func (s *Service) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var input CreateProductInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.SKU == "" {
		httputil.BadRequest(w, "sku is required")
		return
	}
	if input.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	if !catalogsupabase.ValidUnit(input.Unit) {
		httputil.BadRequest(w, "unit must be: kg, bunch, or box")
		return
	}
	if input.Price <= 0 {
		httputil.BadRequest(w, "price must be positive")
		return
	}
	if input.Stock < 0 {
		httputil.BadRequest(w, "stock cannot be negative")
		return
	}

	if existing, err := s.repo.GetBySKU(r.Context(), input.SKU); err == nil && existing != nil {
		httputil.Conflict(w, "a product with this sku already exists")
		return
	} else if err != nil && !database.IsNotFound(err) {
		httputil.InternalError(w, "failed to check sku")
		return
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}
	currency := input.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	p := &catalogsupabase.Product{
		SKU:         input.SKU,
		Name:        input.Name,
		NameEN:      input.NameEN,
		NameKO:      input.NameKO,
		Description: input.Description,
		Category:    input.Category,
		Unit:        input.Unit,
		Price:       input.Price,
		Currency:    currency,
		Stock:       input.Stock,
		Active:      active,
	}
	if err := s.repo.Create(r.Context(), p); err != nil {
		s.Logger().WithError(err).Error("product create failed")
		httputil.InternalError(w, "failed to create product")
		return
	}

	s.invalidateListCache(r.Context())
	httputil.WriteJSON(w, http.StatusCreated, ProductView{Product: *p, ImageURL: s.publicImageURL(p.ImagePath)})
}

// handleUpdateProduct applies a partial update.
func (s *Service) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var input UpdateProductInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	p, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "product not found")
			return
		}
		httputil.InternalError(w, "failed to fetch product")
		return
	}

	if input.Unit != nil && !catalogsupabase.ValidUnit(*input.Unit) {
		httputil.BadRequest(w, "unit must be: kg, bunch, or box")
		return
	}
	if input.Price != nil && *input.Price <= 0 {
		httputil.BadRequest(w, "price must be positive")
		return
	}

	if input.Name != nil {
		p.Name = *input.Name
	}
	if input.NameEN != nil {
		p.NameEN = *input.NameEN
	}
	if input.NameKO != nil {
		p.NameKO = *input.NameKO
	}
	if input.Description != nil {
		p.Description = *input.Description
	}
	if input.Category != nil {
		p.Category = *input.Category
	}
	if input.Unit != nil {
		p.Unit = *input.Unit
	}
	if input.Price != nil {
		p.Price = *input.Price
	}
	if input.Currency != nil {
		p.Currency = *input.Currency
	}
	if input.Active != nil {
		p.Active = *input.Active
	}

	if err := s.repo.Update(r.Context(), p); err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "product not found")
			return
		}
		httputil.InternalError(w, "failed to update product")
		return
	}

	s.invalidateListCache(r.Context())
	httputil.WriteJSON(w, http.StatusOK, ProductView{Product: *p, ImageURL: s.publicImageURL(p.ImagePath)})
}

// handleDeleteProduct removes a product, or deactivates it when open orders
// still reference it.
func (s *Service) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.repo.GetByID(r.Context(), id); err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "product not found")
			return
		}
		httputil.InternalError(w, "failed to fetch product")
		return
	}

	if s.orders != nil {
		referenced, err := s.orders.ProductInOpenOrders(r.Context(), id)
		if err != nil {
			httputil.InternalError(w, "failed to check open orders")
			return
		}
		if referenced {
			if err := s.repo.SetActive(r.Context(), id, false); err != nil {
				httputil.InternalError(w, "failed to deactivate product")
				return
			}
			s.invalidateListCache(r.Context())
			httputil.WriteJSON(w, http.StatusOK, DeleteResult{
				Deactivated: true,
				Message:     "product is referenced by open orders and was deactivated instead",
			})
			return
		}
	}

	if err := s.repo.Delete(r.Context(), id); err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "product not found")
			return
		}
		httputil.InternalError(w, "failed to delete product")
		return
	}

	s.invalidateListCache(r.Context())
	httputil.WriteJSON(w, http.StatusOK, DeleteResult{Deleted: true, Message: "product deleted"})
}

// handleAdjustStock changes stock by a delta with an optimistic swap so
// concurrent adjustments never lose writes or drive stock negative.
func (s *Service) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var input AdjustStockInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.Delta == 0 {
		httputil.BadRequest(w, "delta must be non-zero")
		return
	}

	for attempt := 0; attempt < stockRetries; attempt++ {
		p, err := s.repo.GetByID(r.Context(), id)
		if err != nil {
			if database.IsNotFound(err) {
				httputil.NotFound(w, "product not found")
				return
			}
			httputil.InternalError(w, "failed to fetch product")
			return
		}

		next := p.Stock + input.Delta
		if next < 0 {
			httputil.Conflict(w, fmt.Sprintf("insufficient stock: have %d, requested change %d", p.Stock, input.Delta))
			return
		}

		swapped, err := s.repo.CompareAndSetStock(r.Context(), id, p.Stock, next)
		if err != nil {
			httputil.InternalError(w, "failed to update stock")
			return
		}
		if swapped {
			p.Stock = next
			s.invalidateListCache(r.Context())
			httputil.WriteJSON(w, http.StatusOK, ProductView{Product: *p, ImageURL: s.publicImageURL(p.ImagePath)})
			return
		}
	}
	httputil.Conflict(w, "stock is being updated concurrently, retry")
}

// handleUploadImage stores raw image bytes and records the object path.
func (s *Service) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	contentType := r.Header.Get("Content-Type")
	ext, ok := imageExtensions[contentType]
	if !ok {
		httputil.BadRequest(w, "content type must be image/jpeg, image/png, or image/webp")
		return
	}

	data, err := httputil.ReadAllStrict(r.Body, maxImageBytes)
	if err != nil {
		httputil.BadRequest(w, "image exceeds the size limit")
		return
	}
	if len(data) == 0 {
		httputil.BadRequest(w, "image body is empty")
		return
	}

	if _, err := s.repo.GetByID(r.Context(), id); err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "product not found")
			return
		}
		httputil.InternalError(w, "failed to fetch product")
		return
	}

	path := fmt.Sprintf("products/%s/%s%s", id, uuid.NewString(), ext)
	if _, err := s.DB().Client().Storage.Upload(r.Context(), s.bucket, path, data, supabase.UploadOptions{
		ContentType:  contentType,
		CacheControl: "3600",
		Upsert:       true,
	}); err != nil {
		s.Logger().WithError(err).Error("product image upload failed")
		httputil.InternalError(w, "failed to store image")
		return
	}

	if err := s.repo.SetImagePath(r.Context(), id, path); err != nil {
		httputil.InternalError(w, "failed to record image path")
		return
	}

	s.invalidateListCache(r.Context())
	httputil.WriteJSON(w, http.StatusOK, ImageUploadResponse{
		ImagePath: path,
		ImageURL:  s.publicImageURL(path),
	})
}
