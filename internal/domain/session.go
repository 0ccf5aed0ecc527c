package domain

import "context"

// Session is the authenticated identity held for one shopper.
// Empty strings stand for absent values; IsAuthenticated is true exactly
// when Token is non-empty.
type Session struct {
	Token           string `json:"token"`
	UserName        string `json:"userName"`
	Email           string `json:"email"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// StateRepository is durable key/value storage for per-shopper client state.
type StateRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
