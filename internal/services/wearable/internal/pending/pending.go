// Package pending keeps authorization attempts between the initiate call and
// the code exchange. Attempts are single use and expire after a TTL.
package pending

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("attempt not found")
	ErrConflict = errors.New("attempt already exists")
	ErrFull     = errors.New("too many pending attempts")
)

// Attempt is an authorization that was started but not yet exchanged.
type Attempt struct {
	State     string    `json:"state"`
	Provider  string    `json:"provider"`
	UserID    string    `json:"user_id"`
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a Attempt) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}
