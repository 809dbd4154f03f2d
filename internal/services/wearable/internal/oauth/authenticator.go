package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/pending"
)

var (
	ErrProviderConflict = errors.New("provider already exists")
	ErrProviderNotFound = errors.New("provider not found")
	ErrNotConfigured    = errors.New("provider not configured")
	ErrAuthFailed       = errors.New("auth failed")
	ErrUpstream         = errors.New("provider request failed")
)

// Tokens is the credential pair issued by a provider.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Link is the outcome of a completed authorization.
type Link struct {
	Tokens
	ProviderUserID string
}

type wearableProvider interface {
	Configured() bool
	AuthCodeURL(state string, pkce PKCE) string
	Exchange(ctx context.Context, code, verifier string) (Tokens, error)
	UserID(ctx context.Context, accessToken string) (string, error)
	Deregister(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

type attemptStore interface {
	Save(ctx context.Context, a pending.Attempt) (pending.Attempt, error)
	Take(ctx context.Context, state string) (pending.Attempt, error)
}

// Authenticator runs authorization code flows with PKCE against registered providers.
type Authenticator struct {
	providers map[string]wearableProvider
	attempts  attemptStore
	mu        sync.RWMutex
}

func NewAuthenticator(attempts attemptStore) *Authenticator {
	if attempts == nil {
		panic("attempt store is required")
	}

	return &Authenticator{
		providers: make(map[string]wearableProvider),
		attempts:  attempts,
	}
}

func (a *Authenticator) Use(name string, p wearableProvider) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.providers[name]; ok {
		return ErrProviderConflict
	}

	a.providers[name] = p
	return nil
}

// Authorization is a started flow the client has to follow.
type Authorization struct {
	URL       string
	State     string
	Verifier  string
	ExpiresAt time.Time
}

// Begin starts a flow for userID and remembers it until Complete consumes it.
func (a *Authenticator) Begin(ctx context.Context, provider, userID string) (Authorization, error) {
	p, err := a.configuredProvider(provider)
	if err != nil {
		return Authorization{}, err
	}

	pkce := NewPKCE()
	state := ComposeState(NewState(), userID)

	att, err := a.attempts.Save(ctx, pending.Attempt{
		State:    state,
		Provider: provider,
		UserID:   userID,
		Verifier: pkce.Verifier,
	})
	if err != nil {
		return Authorization{}, fmt.Errorf("save attempt: %w", err)
	}

	return Authorization{
		URL:       p.AuthCodeURL(state, pkce),
		State:     state,
		Verifier:  pkce.Verifier,
		ExpiresAt: att.ExpiresAt,
	}, nil
}

type CompleteRequest struct {
	Code     string
	Verifier string
	UserID   string
	State    string
}

// Complete consumes the attempt behind r.State, exchanges the code and
// resolves the provider side user id.
func (a *Authenticator) Complete(ctx context.Context, provider string, r CompleteRequest) (Link, error) {
	p, err := a.configuredProvider(provider)
	if err != nil {
		return Link{}, err
	}

	// the owner is part of the state, so a request for another user is
	// refused before the attempt is consumed
	if _, owner, ok := SplitState(r.State); !ok || owner != r.UserID {
		return Link{}, fmt.Errorf("%w: state does not belong to user", ErrAuthFailed)
	}

	att, err := a.attempts.Take(ctx, r.State)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			return Link{}, fmt.Errorf("%w: unknown or expired state", ErrAuthFailed)
		}

		return Link{}, fmt.Errorf("take attempt: %w", err)
	}

	if att.Provider != provider || att.UserID != r.UserID {
		return Link{}, fmt.Errorf("%w: state does not belong to user", ErrAuthFailed)
	}

	if r.Verifier != "" && subtle.ConstantTimeCompare([]byte(r.Verifier), []byte(att.Verifier)) != 1 {
		return Link{}, fmt.Errorf("%w: code verifier mismatch", ErrAuthFailed)
	}

	toks, err := p.Exchange(ctx, r.Code, att.Verifier)
	if err != nil {
		return Link{}, upstream("exchange code", err)
	}

	uid, err := p.UserID(ctx, toks.AccessToken)
	if err != nil {
		return Link{}, upstream("fetch user id", err)
	}
	if uid == "" {
		return Link{}, fmt.Errorf("%w: empty user id", ErrUpstream)
	}

	return Link{
		Tokens:         toks,
		ProviderUserID: uid,
	}, nil
}

// Deregister revokes the provider side registration for accessToken.
func (a *Authenticator) Deregister(ctx context.Context, provider, accessToken string) error {
	p, err := a.getProvider(provider)
	if err != nil {
		return err
	}

	if err = p.Deregister(ctx, accessToken); err != nil {
		return upstream("deregister", err)
	}

	return nil
}

// Refresh trades refreshToken for a new credential pair.
func (a *Authenticator) Refresh(ctx context.Context, provider, refreshToken string) (Tokens, error) {
	p, err := a.configuredProvider(provider)
	if err != nil {
		return Tokens{}, err
	}

	toks, err := p.Refresh(ctx, refreshToken)
	if err != nil {
		return Tokens{}, upstream("refresh token", err)
	}

	return toks, nil
}

func (a *Authenticator) configuredProvider(name string) (wearableProvider, error) {
	p, err := a.getProvider(name)
	if err != nil {
		return nil, err
	}

	if !p.Configured() {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}

	return p, nil
}

func (a *Authenticator) getProvider(name string) (wearableProvider, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	return p, nil
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}

// StatusError reports a non-2xx answer from a provider API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}
