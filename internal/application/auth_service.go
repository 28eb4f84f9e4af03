package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/valuation-session-cli/internal/cache"
	"github.com/bnema/valuation-session-cli/internal/ports"
)

type TokenFunc func(ctx context.Context) (string, error)

// AuthService caches the result of authentication so repeated engine calls
// do not re-resolve credentials. Keys combine the account with a time
// bucket, so a cached token also ages out when the bucket rolls over.
type AuthService struct {
	resolve TokenFunc
	tokens  *cache.Cache[string]
	ttl     time.Duration
	clock   ports.Clock
}

func NewAuthService(resolve TokenFunc, maxSize int, ttl time.Duration, clock ports.Clock) *AuthService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AuthService{
		resolve: resolve,
		tokens:  cache.New[string](maxSize, ttl, clock),
		ttl:     ttl,
		clock:   clock,
	}
}

func (a *AuthService) Token(ctx context.Context, account string) (string, error) {
	key := cache.BucketKey(account, a.ttl, a.clock.Now())
	if token, ok := a.tokens.Get(key); ok {
		return token, nil
	}

	token, err := a.resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve token for %q: %w", account, err)
	}
	if token != "" {
		a.tokens.Set(key, token)
	}

	return token, nil
}

func (a *AuthService) InvalidateAccount(account string) {
	a.tokens.Invalidate(cache.BucketKey(account, a.ttl, a.clock.Now()))
}

func (a *AuthService) Stats() cache.Stats {
	return a.tokens.Stats()
}

func (a *AuthService) Close() {
	a.tokens.Close()
}
