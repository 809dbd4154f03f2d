package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUserNotFound = errors.New("user not found")
)

type Store interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	UpsertLinkedAccount(ctx context.Context, r UpsertLinkedAccountRequest) (LinkedAccount, error)
	GetLinkedAccount(ctx context.Context, r GetLinkedAccountRequest) (LinkedAccount, error)
	GetLinkedAccountForUpdate(ctx context.Context, r GetLinkedAccountRequest) (LinkedAccount, error)
	UpdateTokens(ctx context.Context, r UpdateTokensRequest) error
	DeleteLinkedAccount(ctx context.Context, r DeleteLinkedAccountRequest) (bool, error)
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type UpsertLinkedAccountRequest struct {
	LocalUserID    string
	Provider       string
	ProviderUserID string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
}

type GetLinkedAccountRequest struct {
	LocalUserID string
	Provider    string
}

type UpdateTokensRequest struct {
	LocalUserID  string
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type DeleteLinkedAccountRequest struct {
	LocalUserID string
	Provider    string
}
