package domain

import "errors"

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrMissingToken     = errors.New("token is required")
	ErrStateNotFound    = errors.New("client state not found")
)
