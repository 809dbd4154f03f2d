package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGarmin struct {
	tokenFunc        func(w http.ResponseWriter, form url.Values)
	userIDFunc       func(w http.ResponseWriter, r *http.Request)
	registrationFunc func(w http.ResponseWriter, r *http.Request)
}

func startFakeGarmin(t *testing.T, f *fakeGarmin) (*httptest.Server, *Garmin) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.tokenFunc(w, r.PostForm)
	})
	mux.HandleFunc("GET /user/id", func(w http.ResponseWriter, r *http.Request) {
		f.userIDFunc(w, r)
	})
	mux.HandleFunc("DELETE /user/registration", func(w http.ResponseWriter, r *http.Request) {
		f.registrationFunc(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := NewGarmin(GarminConfig{
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		RedirectURL:     "http://localhost:3000/garmin/oauth/callback",
		AuthURL:         srv.URL + "/oauth2Confirm",
		TokenURL:        srv.URL + "/oauth/token",
		UserIDURL:       srv.URL + "/user/id",
		RegistrationURL: srv.URL + "/user/registration",
		Timeout:         5 * time.Second,
	})
	return srv, g
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGarmin_Configured(t *testing.T) {
	assert.True(t, NewGarmin(GarminConfig{ClientID: "id", ClientSecret: "secret"}).Configured())
	assert.False(t, NewGarmin(GarminConfig{ClientID: "id"}).Configured())
	assert.False(t, NewGarmin(GarminConfig{}).Configured())
}

func TestGarmin_AuthCodeURL(t *testing.T) {
	g := NewGarmin(GarminConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:3000/garmin/oauth/callback",
	})

	pkce := oauth.NewPKCE()
	raw := g.AuthCodeURL("abc123:user-42", pkce)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "connect.garmin.com", u.Host)
	assert.Equal(t, "/oauth2Confirm", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, pkce.Challenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "http://localhost:3000/garmin/oauth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "abc123:user-42", q.Get("state"))
	assert.Empty(t, q.Get("client_secret"))
}

func TestGarmin_Exchange(t *testing.T) {
	_, g := startFakeGarmin(t, &fakeGarmin{
		tokenFunc: func(w http.ResponseWriter, form url.Values) {
			assert.Equal(t, "authorization_code", form.Get("grant_type"))
			assert.Equal(t, "client-id", form.Get("client_id"))
			assert.Equal(t, "client-secret", form.Get("client_secret"))
			assert.Equal(t, "xyz", form.Get("code"))
			assert.Equal(t, "verifier", form.Get("code_verifier"))
			assert.Equal(t, "http://localhost:3000/garmin/oauth/callback", form.Get("redirect_uri"))

			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "access",
				"refresh_token": "refresh",
				"token_type":    "bearer",
				"expires_in":    3600,
			})
		},
	})

	toks, err := g.Exchange(context.Background(), "xyz", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "access", toks.AccessToken)
	assert.Equal(t, "refresh", toks.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), toks.Expiry, time.Minute)
}

func TestGarmin_Exchange_MissingRefreshToken(t *testing.T) {
	_, g := startFakeGarmin(t, &fakeGarmin{
		tokenFunc: func(w http.ResponseWriter, form url.Values) {
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "access", "token_type": "bearer"})
		},
	})

	_, err := g.Exchange(context.Background(), "xyz", "verifier")
	require.ErrorIs(t, err, ErrMissingRefreshToken)
}

func TestGarmin_Exchange_Rejected(t *testing.T) {
	_, g := startFakeGarmin(t, &fakeGarmin{
		tokenFunc: func(w http.ResponseWriter, form url.Values) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		},
	})

	_, err := g.Exchange(context.Background(), "xyz", "verifier")
	require.Error(t, err)
}

func TestGarmin_UserID(t *testing.T) {
	_, g := startFakeGarmin(t, &fakeGarmin{
		userIDFunc: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]any{"userId": "garmin-user"})
		},
	})

	id, err := g.UserID(context.Background(), "access")
	require.NoError(t, err)
	assert.Equal(t, "garmin-user", id)
}

func TestGarmin_UserID_Error(t *testing.T) {
	_, g := startFakeGarmin(t, &fakeGarmin{
		userIDFunc: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusUnauthorized)
		},
	})

	_, err := g.UserID(context.Background(), "access")

	var se *oauth.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestGarmin_Deregister(t *testing.T) {
	called := false
	_, g := startFakeGarmin(t, &fakeGarmin{
		registrationFunc: func(w http.ResponseWriter, r *http.Request) {
			called = true
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		},
	})

	require.NoError(t, g.Deregister(context.Background(), "access"))
	assert.True(t, called)
}

func TestGarmin_Deregister_Error(t *testing.T) {
	_, g := startFakeGarmin(t, &fakeGarmin{
		registrationFunc: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})

	require.Error(t, g.Deregister(context.Background(), "access"))
}

func TestGarmin_Refresh(t *testing.T) {
	_, g := startFakeGarmin(t, &fakeGarmin{
		tokenFunc: func(w http.ResponseWriter, form url.Values) {
			assert.Equal(t, "refresh_token", form.Get("grant_type"))
			assert.Equal(t, "refresh", form.Get("refresh_token"))
			assert.Equal(t, "client-id", form.Get("client_id"))

			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "access2",
				"refresh_token": "refresh2",
				"token_type":    "bearer",
				"expires_in":    3600,
			})
		},
	})

	toks, err := g.Refresh(context.Background(), "refresh")
	require.NoError(t, err)
	assert.Equal(t, "access2", toks.AccessToken)
	assert.Equal(t, "refresh2", toks.RefreshToken)
}
