package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProductID identifies a product. The remote API emits ids both as JSON
// strings and as JSON numbers, so ids are held and compared as strings.
type ProductID string

// UnmarshalJSON accepts "42", 42 and null.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid product id: %w", err)
		}
		*id = ProductID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid product id %s: %w", data, err)
	}
	*id = ProductID(n.String())
	return nil
}

func (id ProductID) String() string {
	return string(id)
}

// Int converts the id to the numeric form expected by the favorites endpoint.
func (id ProductID) Int() (int, error) {
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return 0, fmt.Errorf("%w: product id %q is not numeric", ErrInvalidInput, string(id))
	}
	return n, nil
}

// Product is the catalog entity served by the remote API.
// Only ID is interpreted by the storefront; the rest is passed through to pages.
type Product struct {
	ID          ProductID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	OldPrice    float64   `json:"oldPrice,omitempty"`
	PictureURL  string    `json:"pictureUrl,omitempty"`
	Category    string    `json:"category,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	Stock       int       `json:"stock,omitempty"`
}

// ProductPage is one page of catalog results.
type ProductPage struct {
	PageIndex int       `json:"pageIndex"`
	PageSize  int       `json:"pageSize"`
	Count     int       `json:"count"`
	Items     []Product `json:"items"`
}

// ProductQuery filters and paginates the catalog. PageIndex is 1-based.
type ProductQuery struct {
	PageIndex int
	PageSize  int
	Category  string
	Search    string
}
