package store

import "time"

type Model struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinkedAccount is the stored credential pair for one user and provider.
// ExpiresAt is zero when the provider did not report an expiry.
type LinkedAccount struct {
	Model
	LocalUserID    string
	Provider       string
	ProviderUserID string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
}
