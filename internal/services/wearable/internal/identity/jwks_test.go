package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKID = "test-key"

func startJWKS(t *testing.T, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()

	jwk := map[string]string{
		"kty": "RSA",
		"kid": testKID,
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{jwk}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID

	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}

func newTestJWKS(t *testing.T) (*JWKS, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := startJWKS(t, &key.PublicKey)
	v, err := NewJWKS(context.Background(), JWKSConfig{
		URL:      srv.URL,
		Issuer:   "identity.test",
		Audience: "authenticated",
		Client:   srv.Client(),
	})
	require.NoError(t, err)
	return v, key
}

func TestNewJWKS_RequiresURL(t *testing.T) {
	_, err := NewJWKS(context.Background(), JWKSConfig{})
	require.Error(t, err)
}

func TestJWKS_Verify(t *testing.T) {
	v, key := newTestJWKS(t)

	uid, err := v.Verify(context.Background(), signRS256(t, key, validClaims("user-42")))
	require.NoError(t, err)
	assert.Equal(t, "user-42", uid)
}

func TestJWKS_Verify_Invalid(t *testing.T) {
	v, key := newTestJWKS(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	expired := validClaims("user-42")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	otherIssuer := validClaims("user-42")
	otherIssuer.Issuer = "evil.test"

	tbl := []struct {
		name string
		raw  string
	}{
		{name: "garbage", raw: "not-a-token"},
		{name: "foreign key", raw: signRS256(t, other, validClaims("user-42"))},
		{name: "expired", raw: signRS256(t, key, expired)},
		{name: "issuer", raw: signRS256(t, key, otherIssuer)},
		{name: "hs256", raw: signHS256(t, testSecret, validClaims("user-42"))},
	}

	for _, c := range tbl {
		t.Run(c.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), c.raw)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
