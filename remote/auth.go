package remote

import (
	"context"
	"sync"
	"time"
)

// TokenProvider supplies the current access token for remote calls. The
// core never manages credentials directly.
type TokenProvider interface {
	// Token returns a valid access token, refreshing internally if needed.
	// An empty token with a nil error means "no credentials configured".
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed token. Useful for tests and personal
// access tokens.
type StaticTokenProvider string

// Token implements TokenProvider.
func (s StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// RefreshFunc obtains a fresh token and its expiry time.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// RefreshingTokenProvider caches a token and proactively refreshes it when
// it is within the configured buffer window of expiry.
type RefreshingTokenProvider struct {
	refresh RefreshFunc
	buffer  time.Duration
	clock   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewRefreshingTokenProvider creates a provider around a refresh callback.
// clock may be nil, in which case time.Now is used.
func NewRefreshingTokenProvider(refresh RefreshFunc, buffer time.Duration, clock func() time.Time) *RefreshingTokenProvider {
	if clock == nil {
		clock = time.Now
	}
	return &RefreshingTokenProvider{refresh: refresh, buffer: buffer, clock: clock}
}

// Token returns the cached token, refreshing it first when it has expired
// or is about to.
func (p *RefreshingTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.clock().Add(p.buffer).Before(p.expiresAt) {
		return p.token, nil
	}

	token, expiresAt, err := p.refresh(ctx)
	if err != nil {
		return "", &AuthError{Code: AuthCodeRefreshFailed, Message: "token refresh failed", Err: err}
	}
	p.token = token
	p.expiresAt = expiresAt
	return token, nil
}
