package auth

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid or expired token")

// Principal is the verified caller behind a bearer token
type Principal struct {
	Identity  string
	Email     string
	ExpiresAt time.Time
}

// TokenVerifier validates a raw bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}
