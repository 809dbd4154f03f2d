package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// JWKS verifies asymmetric tokens against the backend's published key set.
type JWKS struct {
	verifier *oidc.IDTokenVerifier
}

type JWKSConfig struct {
	URL      string
	Issuer   string
	Audience string
	Client   *http.Client
}

// NewJWKS creates a verifier that fetches keys lazily. ctx must outlive the
// verifier because key refreshes run on it.
func NewJWKS(ctx context.Context, cfg JWKSConfig) (*JWKS, error) {
	if cfg.URL == "" {
		return nil, errors.New("jwks url is required")
	}

	if cfg.Client != nil {
		ctx = oidc.ClientContext(ctx, cfg.Client)
	}

	keys := oidc.NewRemoteKeySet(ctx, cfg.URL)
	return &JWKS{
		verifier: oidc.NewVerifier(cfg.Issuer, keys, &oidc.Config{
			ClientID:             cfg.Audience,
			SkipClientIDCheck:    cfg.Audience == "",
			SkipIssuerCheck:      cfg.Issuer == "",
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
		}),
	}, nil
}

func (j *JWKS) Verify(ctx context.Context, rawToken string) (string, error) {
	tok, err := j.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if tok.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return tok.Subject, nil
}
