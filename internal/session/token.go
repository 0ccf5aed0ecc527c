package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a bearer token cannot be decoded as a JWT.
var ErrMalformedToken = errors.New("malformed token")

// TokenExpiry decodes the exp claim of a JWT without verifying its signature.
// The remote API owns the signing key; the storefront only needs the expiry
// to tear the session down locally. A nil time means the token carries no exp.
func TokenExpiry(token string) (*time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return nil, nil
	}

	t := exp.Time
	return &t, nil
}
