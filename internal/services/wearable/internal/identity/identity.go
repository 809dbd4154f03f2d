// Package identity resolves bearer tokens issued by the identity backend to
// local user ids. Every verifier satisfies middleware.TokenVerifier.
package identity

import "errors"

const (
	ModeHMAC   = "hmac"
	ModeJWKS   = "jwks"
	ModeRemote = "remote"
)

var ErrInvalidToken = errors.New("invalid token")
