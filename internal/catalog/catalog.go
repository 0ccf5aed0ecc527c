// Package catalog serves products from the remote API, falling back to the
// bundled product list whenever the API cannot answer.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/observability"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 50
)

//go:embed data/products.json
var bundledProducts []byte

// ProductsClient is the remote part of the catalog
type ProductsClient interface {
	ListProducts(ctx context.Context, q domain.ProductQuery) (*domain.ProductPage, error)
	GetProduct(ctx context.Context, id domain.ProductID) (*domain.Product, error)
}

type Service struct {
	remote  ProductsClient
	timeout time.Duration
	local   []domain.Product
}

// NewService creates a catalog backed by remote with the bundled product list as fallback
func NewService(remote ProductsClient, timeout time.Duration) (*Service, error) {
	var local []domain.Product
	if err := json.Unmarshal(bundledProducts, &local); err != nil {
		return nil, fmt.Errorf("failed to load bundled products: %w", err)
	}
	return NewServiceWithProducts(remote, timeout, local), nil
}

// NewServiceWithProducts creates a catalog with an explicit fallback list
func NewServiceWithProducts(remote ProductsClient, timeout time.Duration, local []domain.Product) *Service {
	return &Service{
		remote:  remote,
		timeout: timeout,
		local:   local,
	}
}

// List returns one page of products. It does not fail: any remote error
// (network, timeout, non-2xx, malformed body) yields the bundled list
// filtered and paginated the same way.
func (s *Service) List(ctx context.Context, q domain.ProductQuery) *domain.ProductPage {
	q = normalizeQuery(q)

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := s.remote.ListProducts(reqCtx, q)
	if err == nil {
		return page
	}

	observability.CatalogFallbacksTotal.WithLabelValues("list").Inc()
	observability.FromContext(ctx).Warn("product list unavailable, serving bundled catalog",
		slog.String("error", err.Error()))
	return Paginate(Filter(s.local, q), q)
}

// Get returns a product by id from the API, else from the bundled list.
func (s *Service) Get(ctx context.Context, id domain.ProductID) (*domain.Product, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, err := s.remote.GetProduct(reqCtx, id)
	if err == nil {
		return product, nil
	}

	observability.CatalogFallbacksTotal.WithLabelValues("get").Inc()
	observability.FromContext(ctx).Warn("product lookup unavailable, using bundled catalog",
		slog.String("product_id", id.String()),
		slog.String("error", err.Error()))

	for _, p := range s.local {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, domain.ErrProductNotFound
}

// Categories lists the distinct categories of the bundled catalog
func (s *Service) Categories() []string {
	seen := make(map[string]bool)
	var categories []string
	for _, p := range s.local {
		key := strings.ToLower(p.Category)
		if p.Category == "" || seen[key] {
			continue
		}
		seen[key] = true
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories
}

func normalizeQuery(q domain.ProductQuery) domain.ProductQuery {
	if q.PageIndex < 1 {
		q.PageIndex = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Category = strings.TrimSpace(q.Category)
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Filter keeps products matching the query's category (case-insensitive
// equality) and search term (case-insensitive substring of name or description).
func Filter(products []domain.Product, q domain.ProductQuery) []domain.Product {
	category := strings.ToLower(q.Category)
	search := strings.ToLower(q.Search)

	filtered := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if category != "" && strings.ToLower(p.Category) != category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered
}

// Paginate slices products into the page selected by q. Count is the total
// number of products before slicing.
func Paginate(products []domain.Product, q domain.ProductQuery) *domain.ProductPage {
	q = normalizeQuery(q)

	start := len(products)
	if q.PageIndex-1 <= len(products)/q.PageSize {
		start = min((q.PageIndex-1)*q.PageSize, len(products))
	}
	end := start + q.PageSize
	if end > len(products) {
		end = len(products)
	}

	items := make([]domain.Product, end-start)
	copy(items, products[start:end])

	return &domain.ProductPage{
		PageIndex: q.PageIndex,
		PageSize:  q.PageSize,
		Count:     len(products),
		Items:     items,
	}
}
