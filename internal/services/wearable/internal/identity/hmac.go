package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HMAC verifies HS256 tokens signed with the backend's shared JWT secret.
type HMAC struct {
	secret []byte
	opts   []jwt.ParserOption
}

type HMACConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

func NewHMAC(cfg HMACConfig) (*HMAC, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &HMAC{
		secret: []byte(cfg.Secret),
		opts:   opts,
	}, nil
}

func (h *HMAC) Verify(ctx context.Context, rawToken string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (any, error) {
		return h.secret, nil
	}, h.opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Subject, nil
}
