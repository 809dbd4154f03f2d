package oauth

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

const MethodS256 = "S256"

// PKCE is a proof key for a single authorization attempt (RFC 7636).
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE generates a fresh verifier and its S256 challenge.
func NewPKCE() PKCE {
	v := oauth2.GenerateVerifier()
	return PKCE{
		Verifier:  v,
		Challenge: oauth2.S256ChallengeFromVerifier(v),
		Method:    MethodS256,
	}
}

// NewState returns an unguessable value for the state parameter.
func NewState() string {
	return randString(32)
}

func randString(size int) string {
	b := make([]byte, size)

	// rand.Read never returns an error
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
