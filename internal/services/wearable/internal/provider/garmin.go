package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/oauth"
	"golang.org/x/oauth2"
)

const (
	GarminAuthURL         = "https://connect.garmin.com/oauth2Confirm"
	GarminTokenURL        = "https://diauth.garmin.com/di-oauth2-service/oauth/token"
	GarminUserIDURL       = "https://apis.garmin.com/wellness-api/rest/user/id"
	GarminRegistrationURL = "https://apis.garmin.com/wellness-api/rest/user/registration"

	defaultTimeout = 10 * time.Second
	maxErrBody     = 1 << 10
)

var ErrMissingRefreshToken = errors.New("token response missing refresh_token")

// Garmin implements the wearableProvider interface for Garmin Connect
type Garmin struct {
	cfg             *oauth2.Config
	client          *http.Client
	userIDURL       string
	registrationURL string
}

// GarminConfig holds the configuration for the Garmin OAuth provider.
// Empty URLs fall back to the production endpoints.
type GarminConfig struct {
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	AuthURL         string
	TokenURL        string
	UserIDURL       string
	RegistrationURL string
	Timeout         time.Duration
}

type userIDResponse struct {
	UserID string `json:"userId"`
}

func NewGarmin(cfg GarminConfig) *Garmin {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Garmin{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   orDefault(cfg.AuthURL, GarminAuthURL),
				TokenURL:  orDefault(cfg.TokenURL, GarminTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:          &http.Client{Timeout: timeout},
		userIDURL:       orDefault(cfg.UserIDURL, GarminUserIDURL),
		registrationURL: orDefault(cfg.RegistrationURL, GarminRegistrationURL),
	}
}

// Configured reports whether client credentials are present
func (g *Garmin) Configured() bool {
	return g.cfg.ClientID != "" && g.cfg.ClientSecret != ""
}

// AuthCodeURL builds the consent page URL carrying the PKCE challenge
func (g *Garmin) AuthCodeURL(state string, pkce oauth.PKCE) string {
	return g.cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.Method))
}

// Exchange trades the authorization code for tokens
func (g *Garmin) Exchange(ctx context.Context, code, verifier string) (oauth.Tokens, error) {
	tok, err := g.cfg.Exchange(g.clientCtx(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return oauth.Tokens{}, err
	}

	if tok.RefreshToken == "" {
		return oauth.Tokens{}, ErrMissingRefreshToken
	}

	return toTokens(tok), nil
}

// UserID fetches the Garmin user id owning accessToken
func (g *Garmin) UserID(ctx context.Context, accessToken string) (string, error) {
	resp, err := g.do(ctx, http.MethodGet, g.userIDURL, accessToken)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body userIDResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode user id: %w", err)
	}

	return body.UserID, nil
}

// Deregister removes the user registration so Garmin stops pushing data
func (g *Garmin) Deregister(ctx context.Context, accessToken string) error {
	resp, err := g.do(ctx, http.MethodDelete, g.registrationURL, accessToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Refresh runs the refresh_token grant
func (g *Garmin) Refresh(ctx context.Context, refreshToken string) (oauth.Tokens, error) {
	ts := g.cfg.TokenSource(g.clientCtx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return oauth.Tokens{}, err
	}

	return toTokens(tok), nil
}

func (g *Garmin) do(ctx context.Context, method, url, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, &oauth.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp, nil
}

func (g *Garmin) clientCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.client)
}

func toTokens(tok *oauth2.Token) oauth.Tokens {
	return oauth.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

func orDefault(val, def string) string {
	if val != "" {
		return val
	}
	return def
}
