package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/Ramsey-B/clover/pkg/metrics"
	cloverredis "github.com/Ramsey-B/clover/pkg/redis"
)

const (
	// ExpirySkew is how long before actual expiry a token is considered
	// expiring. Refresh starts at the skew boundary so callers never hold a
	// token inside its final minute.
	ExpirySkew = 60 * time.Second

	tokenEndpointFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	tokenCachePrefix    = "azure:token:"
)

// TokenState describes where a token sits in its lifecycle.
type TokenState int

const (
	TokenValid TokenState = iota
	TokenExpiringSoon
	TokenExpired
)

// Token is a cached access token with its absolute expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// State classifies the token against the skew window at the given instant.
func (t *Token) State(now time.Time) TokenState {
	if t == nil || t.AccessToken == "" || !now.Before(t.ExpiresAt) {
		return TokenExpired
	}
	if now.After(t.ExpiresAt.Add(-ExpirySkew)) {
		return TokenExpiringSoon
	}
	return TokenValid
}

// TokenConfig holds the client credential grant settings shared across
// Azure AD tenants.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenSource acquires and caches access tokens per Azure AD tenant using
// the client credentials grant. Concurrent refreshes for the same tenant
// collapse into a single upstream request.
type TokenSource struct {
	cfg    TokenConfig
	cache  *cloverredis.Client
	logger ectologger.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	tokens map[string]*Token

	// acquire and now are replaceable in tests
	acquire func(ctx context.Context, azureTenantID string) (*Token, error)
	now     func() time.Time
}

// NewTokenSource creates a token source. cache may be nil, in which case
// tokens are held in memory only.
func NewTokenSource(cfg TokenConfig, cache *cloverredis.Client, logger ectologger.Logger) *TokenSource {
	s := &TokenSource{
		cfg:    cfg,
		cache:  cache,
		logger: logger,
		tokens: map[string]*Token{},
		now:    time.Now,
	}
	s.acquire = s.acquireClientCredentials
	return s
}

// Token returns a bearer token for the given Azure AD tenant, refreshing
// when the cached token is inside the skew window or expired.
func (s *TokenSource) Token(ctx context.Context, azureTenantID string) (string, error) {
	s.mu.RLock()
	token := s.tokens[azureTenantID]
	s.mu.RUnlock()

	if token.State(s.now()) == TokenValid {
		return token.AccessToken, nil
	}

	result, err, _ := s.group.Do(azureTenantID, func() (any, error) {
		return s.refresh(ctx, azureTenantID)
	})
	if err != nil {
		return "", err
	}
	return result.(*Token).AccessToken, nil
}

func (s *TokenSource) refresh(ctx context.Context, azureTenantID string) (*Token, error) {
	// Re-check under the flight; a concurrent caller may have refreshed
	// between the read and the singleflight admission.
	s.mu.RLock()
	token := s.tokens[azureTenantID]
	s.mu.RUnlock()
	if token.State(s.now()) == TokenValid {
		return token, nil
	}

	if cached := s.readCache(ctx, azureTenantID); cached.State(s.now()) == TokenValid {
		s.store(azureTenantID, cached)
		return cached, nil
	}

	fresh, err := s.acquire(ctx, azureTenantID)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		// A token inside the skew window is still accepted upstream. Serve
		// it and let the next call retry the refresh.
		if token.State(s.now()) == TokenExpiringSoon {
			s.logger.WithContext(ctx).WithError(err).WithField("azure_tenant_id", azureTenantID).Warn("proactive token refresh failed, serving current token")
			return token, nil
		}
		s.logger.WithContext(ctx).WithError(err).WithField("azure_tenant_id", azureTenantID).Error("failed to refresh access token")
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	s.logger.WithContext(ctx).
		WithField("azure_tenant_id", azureTenantID).
		WithField("expires_at", fresh.ExpiresAt.Format(time.RFC3339)).
		Debug("refreshed access token")

	s.store(azureTenantID, fresh)
	s.writeCache(ctx, azureTenantID, fresh)
	return fresh, nil
}

func (s *TokenSource) store(azureTenantID string, token *Token) {
	s.mu.Lock()
	s.tokens[azureTenantID] = token
	s.mu.Unlock()
}

func (s *TokenSource) acquireClientCredentials(ctx context.Context, azureTenantID string) (*Token, error) {
	cc := clientcredentials.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenEndpointFormat, azureTenantID),
		Scopes:       []string{s.cfg.Scope},
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

func (s *TokenSource) readCache(ctx context.Context, azureTenantID string) *Token {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, tokenCachePrefix+azureTenantID)
	if err != nil || raw == "" {
		return nil
	}

	var token Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to decode cached token")
		return nil
	}
	return &token
}

func (s *TokenSource) writeCache(ctx context.Context, azureTenantID string, token *Token) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, tokenCachePrefix+azureTenantID, string(raw), ttl); err != nil {
		// Cache misses are recoverable; the in-memory token still serves.
		s.logger.WithContext(ctx).WithError(err).Warn("failed to cache token")
	}
}
