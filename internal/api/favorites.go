package api

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"tophome-storefront/internal/domain"
)

type createFavoriteRequest struct {
	ProductID int `json:"productId"`
}

// CreateFavorite adds a product to the remote favorites. The endpoint only
// accepts numeric ids.
func (c *Client) CreateFavorite(ctx context.Context, id domain.ProductID) error {
	n, err := id.Int()
	if err != nil {
		return &Error{Status: http.StatusBadRequest, Message: FallbackMessage, Err: err}
	}

	_, err = c.send(ctx, "create_favorite", http.MethodPost, "/WishList/create", nil, createFavoriteRequest{ProductID: n})
	return err
}

func (c *Client) ListFavorites(ctx context.Context) ([]domain.Product, error) {
	data, err := c.send(ctx, "list_favorites", http.MethodGet, "/WishList/get-favorites", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeFavorites(data)
}

func (c *Client) DeleteFavorite(ctx context.Context, id domain.ProductID) error {
	query := url.Values{"productId": []string{id.String()}}
	_, err := c.send(ctx, "delete_favorite", http.MethodDelete, "/WishList/Delete", query, nil)
	return err
}

// decodeFavorites accepts both a bare product array and {"items": [...]}
func decodeFavorites(data []byte) ([]domain.Product, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []domain.Product{}, nil
	}

	var items []domain.Product
	if trimmed[0] == '[' {
		if err := decode("list_favorites", trimmed, &items); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			Items []domain.Product `json:"items"`
		}
		if err := decode("list_favorites", trimmed, &wrapped); err != nil {
			return nil, err
		}
		items = wrapped.Items
	}

	if items == nil {
		items = []domain.Product{}
	}
	return items, nil
}
