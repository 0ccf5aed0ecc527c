package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"tophome-storefront/internal/domain"

	"github.com/go-chi/chi/v5"
)

// Catalog is the product source behind the pages and the API
type Catalog interface {
	List(ctx context.Context, q domain.ProductQuery) *domain.ProductPage
	Get(ctx context.Context, id domain.ProductID) (*domain.Product, error)
	Categories() []string
}

// CatalogHandler serves product listing and detail
type CatalogHandler struct {
	catalog  Catalog
	renderer *Renderer
}

func NewCatalogHandler(catalog Catalog, renderer *Renderer) *CatalogHandler {
	return &CatalogHandler{
		catalog:  catalog,
		renderer: renderer,
	}
}

type homeView struct {
	Query      domain.ProductQuery
	Page       *domain.ProductPage
	Categories []string
	PrevURL    string
	NextURL    string
}

// Home renders the catalog page
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	q := parseProductQuery(r.URL.Query())
	page := h.catalog.List(r.Context(), q)

	view := homeView{
		Query:      q,
		Page:       page,
		Categories: h.catalog.Categories(),
	}
	if page.PageIndex > 1 {
		view.PrevURL = pageURL(q, page.PageIndex-1)
	}
	if page.PageSize > 0 && page.PageIndex < (page.Count+page.PageSize-1)/page.PageSize {
		view.NextURL = pageURL(q, page.PageIndex+1)
	}

	data := newPage(r, "المتجر")
	data.Data = view
	h.renderer.Render(w, r, http.StatusOK, PageHome, data)
}

// Product renders a product detail page
func (h *CatalogHandler) Product(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), domain.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.renderer.Render(w, r, http.StatusNotFound, PageNotFound, newPage(r, "غير موجود"))
		return
	}

	data := newPage(r, product.Name)
	data.Data = map[string]any{"Product": *product}
	h.renderer.Render(w, r, http.StatusOK, PageProduct, data)
}

// NotFound renders the not-found page for unmatched routes
func (h *CatalogHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusNotFound, PageNotFound, newPage(r, "غير موجود"))
}

// ListProducts returns one page of products as JSON
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page := h.catalog.List(r.Context(), parseProductQuery(r.URL.Query()))
	writeJSON(w, http.StatusOK, page)
}

// GetProduct returns a product as JSON
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), domain.ProductID(chi.URLParam(r, "productId")))
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			http.Error(w, `{"error":"Product not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error":"Failed to retrieve product"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories := h.catalog.Categories()
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
	})
}

// parseProductQuery reads page, pageSize, category and search. Malformed
// numbers are ignored and the catalog applies its defaults.
func parseProductQuery(values url.Values) domain.ProductQuery {
	q := domain.ProductQuery{
		Category: values.Get("category"),
		Search:   values.Get("search"),
	}
	if page, err := strconv.Atoi(values.Get("page")); err == nil {
		q.PageIndex = page
	}
	if size, err := strconv.Atoi(values.Get("pageSize")); err == nil {
		q.PageSize = size
	}
	return q
}

func pageURL(q domain.ProductQuery, page int) string {
	values := url.Values{}
	values.Set("page", strconv.Itoa(page))
	if q.Category != "" {
		values.Set("category", q.Category)
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	return "/?" + values.Encode()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
