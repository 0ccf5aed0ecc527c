package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"tophome-storefront/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// ProductOptions allows customizing product fixture creation
type ProductOptions struct {
	ID       domain.ProductID
	Name     string
	Category string
	Price    float64
}

// NewTestProduct creates a test product with sensible defaults
func NewTestProduct(opts ...func(*ProductOptions)) domain.Product {
	n := idCounter.Add(1)
	o := &ProductOptions{
		ID:       domain.ProductID(fmt.Sprintf("%d", 1000+n)),
		Name:     fmt.Sprintf("Test Chair %d", n),
		Category: "chairs",
		Price:    99.5,
	}

	for _, opt := range opts {
		opt(o)
	}

	return domain.Product{
		ID:       o.ID,
		Name:     o.Name,
		Category: o.Category,
		Price:    o.Price,
	}
}

// WithProductID sets the product ID
func WithProductID(id string) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.ID = domain.ProductID(id)
	}
}

// WithProductName sets the product name
func WithProductName(name string) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.Name = name
	}
}

// WithCategory sets the product category
func WithCategory(category string) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.Category = category
	}
}

// NewTestToken signs a JWT carrying the given expiry. The storefront never
// verifies signatures, so the key is arbitrary.
func NewTestToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	return signClaims(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": expiresAt.Unix(),
	})
}

// NewTestTokenWithoutExpiry signs a JWT with no exp claim
func NewTestTokenWithoutExpiry(t *testing.T) string {
	t.Helper()
	return signClaims(t, jwt.MapClaims{"sub": "user-1"})
}

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}
