package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const limiterPrefix = "jwks_refetch"

// ErrRefetchThrottled is returned when an on-miss refetch is refused by the limiter
var ErrRefetchThrottled = errors.New("jwks refetch throttled")

// JWKSManager holds the identity provider's key set. The set is prefetched at
// startup and refetched when it is older than the TTL or when a token names an
// unknown key id. Refetches are throttled and concurrent callers share one fetch.
type JWKSManager struct {
	url     string
	client  *http.Client
	ttl     time.Duration
	limiter *limiter.Limiter
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	keys      jwk.Set
	fetchedAt time.Time
}

// JWKSOption configures a JWKSManager
type JWKSOption func(*jwksOptions)

type jwksOptions struct {
	client          *http.Client
	ttl             time.Duration
	refreshInterval time.Duration
	redisClient     redis.UniversalClient
	logger          *zap.Logger
	now             func() time.Time
}

// WithHTTPClient sets the client used to fetch the key set
func WithHTTPClient(c *http.Client) JWKSOption {
	return func(o *jwksOptions) { o.client = c }
}

// WithCacheTTL sets how long a fetched key set is considered fresh
func WithCacheTTL(ttl time.Duration) JWKSOption {
	return func(o *jwksOptions) { o.ttl = ttl }
}

// WithRefreshInterval allows at most one refetch per interval. Zero disables throttling.
func WithRefreshInterval(d time.Duration) JWKSOption {
	return func(o *jwksOptions) { o.refreshInterval = d }
}

// WithRedisLimiter shares the refetch budget across replicas through redis
func WithRedisLimiter(client redis.UniversalClient) JWKSOption {
	return func(o *jwksOptions) { o.redisClient = client }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) JWKSOption {
	return func(o *jwksOptions) { o.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) JWKSOption {
	return func(o *jwksOptions) { o.now = now }
}

// NewJWKSManager creates a manager for the key set published at jwksURL
func NewJWKSManager(jwksURL string, opts ...JWKSOption) (*JWKSManager, error) {
	o := jwksOptions{
		client:          &http.Client{Timeout: 10 * time.Second},
		ttl:             24 * time.Hour,
		refreshInterval: time.Minute,
		logger:          zap.NewNop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &JWKSManager{
		url:    jwksURL,
		client: o.client,
		ttl:    o.ttl,
		logger: o.logger,
		now:    o.now,
	}

	if o.refreshInterval > 0 {
		storeOpts := limiter.StoreOptions{
			Prefix:          limiterPrefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		}
		var store limiter.Store
		if o.redisClient != nil {
			s, err := redisstore.NewStoreWithOptions(o.redisClient, storeOpts)
			if err != nil {
				return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
			}
			store = s
		} else {
			store = memory.NewStoreWithOptions(storeOpts)
		}
		m.limiter = limiter.New(store, limiter.Rate{Period: o.refreshInterval, Limit: 1})
	}

	return m, nil
}

// Prefetch loads the key set unconditionally. It is called once at startup and
// consumes the current refetch budget.
func (m *JWKSManager) Prefetch(ctx context.Context) error {
	if m.limiter != nil {
		if _, err := m.limiter.Get(ctx, m.url); err != nil {
			m.logger.Warn("jwks_limiter_unavailable", zap.Error(err))
		}
	}
	_, err := m.refresh(ctx)
	return err
}

// KeySet returns a key set expected to contain kid. When kid is unknown or the
// cached set is stale, a throttled refetch is attempted; if that is refused or
// fails, the cached set is returned and the caller's lookup will miss.
func (m *JWKSManager) KeySet(ctx context.Context, kid string) (jwk.Set, error) {
	m.mu.RLock()
	keys, fetchedAt := m.keys, m.fetchedAt
	m.mu.RUnlock()

	fresh := keys != nil && m.now().Sub(fetchedAt) < m.ttl
	if fresh {
		if _, ok := keys.LookupKeyID(kid); ok {
			return keys, nil
		}
	}

	refreshed, err := m.throttledRefresh(ctx)
	if err == nil {
		return refreshed, nil
	}
	if keys == nil {
		return nil, err
	}
	if !errors.Is(err, ErrRefetchThrottled) {
		m.logger.Warn("jwks_refresh_failed_serving_cached", zap.Error(err))
	}
	return keys, nil
}

// KeyIDs lists the key ids of the cached set
func (m *JWKSManager) KeyIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.keys == nil {
		return nil
	}
	ids := make([]string, 0, m.keys.Len())
	for i := 0; i < m.keys.Len(); i++ {
		if key, ok := m.keys.Key(i); ok {
			ids = append(ids, key.KeyID())
		}
	}
	return ids
}

func (m *JWKSManager) throttledRefresh(ctx context.Context) (jwk.Set, error) {
	if m.limiter != nil {
		lctx, err := m.limiter.Get(ctx, m.url)
		if err != nil {
			return nil, fmt.Errorf("failed to check jwks refetch budget: %w", err)
		}
		if lctx.Reached {
			m.logger.Debug("jwks_refetch_throttled", zap.Int64("reset", lctx.Reset))
			return nil, ErrRefetchThrottled
		}
	}
	return m.refresh(ctx)
}

func (m *JWKSManager) refresh(ctx context.Context) (jwk.Set, error) {
	v, err, _ := m.group.Do(m.url, func() (any, error) {
		keys, err := m.fetchJWKS(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.keys = keys
		m.fetchedAt = m.now()
		m.mu.Unlock()
		m.logger.Info("jwks_refreshed", zap.String("url", m.url), zap.Int("keys", keys.Len()))
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(jwk.Set), nil
}

func (m *JWKSManager) fetchJWKS(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	return keys, nil
}
