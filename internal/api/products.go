package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"tophome-storefront/internal/domain"
)

func (c *Client) ListProducts(ctx context.Context, q domain.ProductQuery) (*domain.ProductPage, error) {
	query := url.Values{}
	if q.PageIndex > 0 {
		query.Set("pageIndex", strconv.Itoa(q.PageIndex))
	}
	if q.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.Category != "" {
		query.Set("category", q.Category)
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}

	data, err := c.send(ctx, "list_products", http.MethodGet, "/Product", query, nil)
	if err != nil {
		return nil, err
	}

	var page domain.ProductPage
	if err := decode("list_products", data, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []domain.Product{}
	}
	return &page, nil
}

func (c *Client) GetProduct(ctx context.Context, id domain.ProductID) (*domain.Product, error) {
	data, err := c.send(ctx, "get_product", http.MethodGet, "/Product/"+url.PathEscape(id.String()), nil, nil)
	if err != nil {
		return nil, err
	}

	var product domain.Product
	if err := decode("get_product", data, &product); err != nil {
		return nil, err
	}
	return &product, nil
}
