package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sleepcircle/wearlink/internal/pkg/serr"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/oauth"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/pending"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/store"
)

const DefaultProvider = "garmin"

// authenticator defines the interface for the PKCE authorization flow
type authenticator interface {
	Begin(ctx context.Context, provider, userID string) (oauth.Authorization, error)
	Complete(ctx context.Context, provider string, r oauth.CompleteRequest) (oauth.Link, error)
	Deregister(ctx context.Context, provider, accessToken string) error
	Refresh(ctx context.Context, provider, refreshToken string) (oauth.Tokens, error)
}

// Link connects local users to their wearable accounts
type Link struct {
	auth     authenticator
	store    store.Store
	appURL   string
	provider string
}

// LinkOption defines a functional option for configuring the Link service
type LinkOption func(*Link) *Link

func WithAuthenticator(a authenticator) LinkOption {
	return func(s *Link) *Link {
		s.auth = a
		return s
	}
}

func WithStore(st store.Store) LinkOption {
	return func(s *Link) *Link {
		s.store = st
		return s
	}
}

func WithAppURL(u string) LinkOption {
	return func(s *Link) *Link {
		s.appURL = strings.TrimRight(u, "/")
		return s
	}
}

func WithProvider(name string) LinkOption {
	return func(s *Link) *Link {
		s.provider = name
		return s
	}
}

// NewLink creates a new Link service with the provided options
func NewLink(opts ...LinkOption) *Link {
	s := &Link{provider: DefaultProvider}
	for _, opt := range opts {
		s = opt(s)
	}

	if s.auth == nil {
		panic("oauth authenticator is required")
	}

	if s.store == nil {
		panic("store is required")
	}

	if s.appURL == "" {
		panic("app url is required")
	}

	return s
}

type InitiateResponse struct {
	AuthURL      string
	CodeVerifier string
	State        string
}

// Initiate starts an authorization for userID and returns the consent URL
func (s *Link) Initiate(ctx context.Context, userID string) (InitiateResponse, error) {
	auth, err := s.auth.Begin(ctx, s.provider, userID)
	if err != nil {
		return InitiateResponse{}, s.mapAuthErr(err, userID)
	}

	return InitiateResponse{
		AuthURL:      auth.URL,
		CodeVerifier: auth.Verifier,
		State:        auth.State,
	}, nil
}

type CallbackRequest struct {
	Code  string
	State string
	Error string
}

// Callback turns the provider redirect into a redirect to the app. It never
// exchanges the code itself.
func (s *Link) Callback(r CallbackRequest) string {
	if r.Error != "" {
		return s.appRedirect("/", url.Values{
			"error":   {s.provider + "_oauth_error"},
			"message": {r.Error},
		})
	}

	if r.Code == "" {
		return s.appRedirect("/", url.Values{"error": {s.provider + "_oauth_missing_code"}})
	}

	_, userID, ok := oauth.SplitState(r.State)
	if !ok {
		return s.appRedirect("/", url.Values{"error": {s.provider + "_oauth_missing_user_id"}})
	}

	return s.appRedirect("/"+s.provider+"/oauth/exchange", url.Values{
		"code":          {r.Code},
		"local_user_id": {userID},
		"state":         {r.State},
	})
}

type ExchangeRequest struct {
	Code         string
	CodeVerifier string
	LocalUserID  string
	State        string
}

// Exchange completes the authorization and stores the resulting credentials
func (s *Link) Exchange(ctx context.Context, r ExchangeRequest) error {
	if err := validateExchange(r); err != nil {
		return err
	}

	link, err := s.auth.Complete(ctx, s.provider, oauth.CompleteRequest{
		Code:     r.Code,
		Verifier: r.CodeVerifier,
		UserID:   r.LocalUserID,
		State:    r.State,
	})
	if err != nil {
		return s.mapAuthErr(err, r.LocalUserID)
	}

	exists, err := s.store.UserExists(ctx, r.LocalUserID)
	if err != nil {
		return serr.Persistence(err, "failed to look up user").With("user_id", r.LocalUserID)
	}
	if !exists {
		return serr.NotFound(nil, "user not found").With("user_id", r.LocalUserID)
	}

	_, err = s.store.UpsertLinkedAccount(ctx, store.UpsertLinkedAccountRequest{
		LocalUserID:    r.LocalUserID,
		Provider:       s.provider,
		ProviderUserID: link.ProviderUserID,
		AccessToken:    link.AccessToken,
		RefreshToken:   link.RefreshToken,
		ExpiresAt:      link.Expiry,
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return serr.NotFound(err, "user not found").With("user_id", r.LocalUserID)
		}

		return serr.Persistence(err, "failed to store %s credentials", s.provider).With("user_id", r.LocalUserID)
	}

	slog.Info("wearable account linked",
		"user_id", r.LocalUserID,
		"provider", s.provider,
		"provider_user_id", link.ProviderUserID)
	return nil
}

// Disconnect unlinks the user's account. Provider side deregistration is best
// effort, the local credentials are always removed.
func (s *Link) Disconnect(ctx context.Context, userID string) error {
	acc, err := s.store.GetLinkedAccount(ctx, store.GetLinkedAccountRequest{
		LocalUserID: userID,
		Provider:    s.provider,
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return serr.Persistence(err, "failed to load linked account").With("user_id", userID)
	}

	if err == nil && acc.AccessToken != "" {
		if derr := s.auth.Deregister(ctx, s.provider, acc.AccessToken); derr != nil {
			slog.Warn("failed to deregister wearable account, removing local link anyway",
				"error", derr,
				"user_id", userID,
				"provider", s.provider)
		}
	}

	if _, err = s.store.DeleteLinkedAccount(ctx, store.DeleteLinkedAccountRequest{
		LocalUserID: userID,
		Provider:    s.provider,
	}); err != nil {
		return serr.Persistence(err, "failed to delete linked account").With("user_id", userID)
	}

	return nil
}

type StatusResponse struct {
	Connected      bool
	Provider       string
	ProviderUserID string
	UpdatedAt      time.Time
}

// Status reports whether the user has a linked account without exposing tokens
func (s *Link) Status(ctx context.Context, userID string) (StatusResponse, error) {
	acc, err := s.store.GetLinkedAccount(ctx, store.GetLinkedAccountRequest{
		LocalUserID: userID,
		Provider:    s.provider,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return StatusResponse{}, nil
		}

		return StatusResponse{}, serr.Persistence(err, "failed to load linked account").With("user_id", userID)
	}

	return StatusResponse{
		Connected:      true,
		Provider:       acc.Provider,
		ProviderUserID: acc.ProviderUserID,
		UpdatedAt:      acc.UpdatedAt,
	}, nil
}

// Refresh renews the stored credentials. The row stays locked while the
// provider is called so concurrent refreshes do not burn the same refresh token.
func (s *Link) Refresh(ctx context.Context, userID string) error {
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		acc, err := tx.GetLinkedAccountForUpdate(ctx, store.GetLinkedAccountRequest{
			LocalUserID: userID,
			Provider:    s.provider,
		})
		if err != nil {
			return fmt.Errorf("lock linked account: %w", err)
		}

		toks, err := s.auth.Refresh(ctx, s.provider, acc.RefreshToken)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}

		return tx.UpdateTokens(ctx, store.UpdateTokensRequest{
			LocalUserID:  userID,
			Provider:     s.provider,
			AccessToken:  toks.AccessToken,
			RefreshToken: toks.RefreshToken,
			ExpiresAt:    toks.Expiry,
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return serr.NotFound(err, "no linked %s account", s.provider).With("user_id", userID)
		}

		if isAuthErr(err) {
			return s.mapAuthErr(err, userID)
		}

		return serr.Persistence(err, "failed to refresh %s credentials", s.provider).With("user_id", userID)
	}

	return nil
}

func validateExchange(r ExchangeRequest) error {
	var missing []string
	if r.Code == "" {
		missing = append(missing, "code")
	}
	if r.LocalUserID == "" {
		missing = append(missing, "local_user_id")
	}
	if r.State == "" {
		missing = append(missing, "state")
	}

	if len(missing) > 0 {
		return serr.Validation(nil, "missing required fields: %s", strings.Join(missing, ", "))
	}

	return nil
}

func isAuthErr(err error) bool {
	return errors.Is(err, oauth.ErrProviderNotFound) ||
		errors.Is(err, oauth.ErrNotConfigured) ||
		errors.Is(err, oauth.ErrAuthFailed) ||
		errors.Is(err, oauth.ErrUpstream)
}

// mapAuthErr converts authenticator errors into service errors
func (s *Link) mapAuthErr(err error, userID string) error {
	var sErr *serr.ServiceError
	switch {
	case errors.Is(err, oauth.ErrProviderNotFound), errors.Is(err, oauth.ErrNotConfigured):
		sErr = serr.Configuration(err, "%s integration is not configured", s.provider)
	case errors.Is(err, oauth.ErrAuthFailed):
		sErr = serr.Unauthorized(err, "invalid or expired authorization state")
	case errors.Is(err, oauth.ErrUpstream):
		sErr = serr.Upstream(err, "failed to communicate with %s", s.provider)
	case errors.Is(err, pending.ErrFull):
		sErr = serr.Unavailable(err, "too many pending authorizations, try again later")
	default:
		return fmt.Errorf("%s oauth: %w", s.provider, err)
	}

	return sErr.With("provider", s.provider).With("user_id", userID)
}

func (s *Link) appRedirect(path string, q url.Values) string {
	return s.appURL + path + "?" + q.Encode()
}
