package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userPath = "/auth/v1/user"

// Remote asks the identity backend who owns a token. It authenticates with the
// anonymous key only and never sees privileged credentials.
type Remote struct {
	client  *http.Client
	userURL string
	anonKey string
}

type RemoteConfig struct {
	BackendURL string
	AnonKey    string
	Timeout    time.Duration
}

type remoteUser struct {
	ID string `json:"id"`
}

func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.BackendURL == "" {
		return nil, errors.New("identity backend url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Remote{
		client:  &http.Client{Timeout: timeout},
		userURL: strings.TrimRight(cfg.BackendURL, "/") + userPath,
		anonKey: cfg.AnonKey,
	}, nil
}

func (r *Remote) Verify(ctx context.Context, rawToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.userURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+rawToken)
	req.Header.Set("Accept", "application/json")
	if r.anonKey != "" {
		req.Header.Set("apikey", r.anonKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: rejected by identity backend", ErrInvalidToken)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("lookup user: unexpected status %d", resp.StatusCode)
	}

	var usr remoteUser
	if err = json.NewDecoder(resp.Body).Decode(&usr); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}

	if usr.ID == "" {
		return "", fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return usr.ID, nil
}
