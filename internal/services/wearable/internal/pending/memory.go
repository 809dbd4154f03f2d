package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

var errRejected = errors.New("cache rejected attempt")

// Memory keeps attempts in process. Only suitable for a single instance.
//
// live mirrors the unexpired keys held by the cache. Save refuses new
// attempts once MaxKeys are live, so the cache never has to evict one.
type Memory struct {
	cache   *ristretto.Cache[string, Attempt]
	live    map[string]time.Time
	maxKeys int
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

type MemoryConfig struct {
	MaxKeys int64
	TTL     time.Duration
}

func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.MaxKeys <= 0 {
		return nil, fmt.Errorf("max keys must be positive, got %d", cfg.MaxKeys)
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, Attempt]{
		NumCounters: cfg.MaxKeys * 10,
		MaxCost:     cfg.MaxKeys,
		BufferItems: 64,
		// every attempt costs 1, MaxCost is a key count
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create attempt cache: %w", err)
	}

	return &Memory{
		cache:   c,
		live:    make(map[string]time.Time),
		maxKeys: int(cfg.MaxKeys),
		ttl:     cfg.TTL,
		now:     time.Now,
	}, nil
}

func (m *Memory) Save(ctx context.Context, a Attempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.live[a.State]; ok && now.Before(exp) {
		return Attempt{}, ErrConflict
	}

	if len(m.live) >= m.maxKeys {
		m.pruneExpired(now)
	}
	if len(m.live) >= m.maxKeys {
		return Attempt{}, ErrFull
	}

	a.CreatedAt = now
	a.ExpiresAt = now.Add(m.ttl)

	if !m.cache.SetWithTTL(a.State, a, 1, m.ttl) {
		return Attempt{}, errRejected
	}
	m.cache.Wait()

	if _, found := m.cache.Get(a.State); !found {
		return Attempt{}, errRejected
	}
	m.live[a.State] = a.ExpiresAt

	return a, nil
}

func (m *Memory) Take(ctx context.Context, state string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.live, state)

	a, found := m.cache.Get(state)
	if !found {
		return Attempt{}, ErrNotFound
	}
	m.cache.Del(state)
	m.cache.Wait()

	if a.Expired(m.now()) {
		return Attempt{}, ErrNotFound
	}

	return a, nil
}

// pruneExpired drops expired keys from both live and the cache. Callers hold m.mu.
func (m *Memory) pruneExpired(now time.Time) {
	var pruned bool
	for state, exp := range m.live {
		if !now.Before(exp) {
			delete(m.live, state)
			m.cache.Del(state)
			pruned = true
		}
	}

	if pruned {
		m.cache.Wait()
	}
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	m.cache.Close()
	return nil
}
