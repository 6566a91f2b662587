package oauthjwt

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/logger"
)

// TokenProvider supplies an up-to-date Authorization header value for a REST
// server's outbound requests, refreshing its cached token as needed.
type TokenProvider interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

// DefaultRefreshThreshold is used when a REST server's auth config omits
// refreshThreshold.
const DefaultRefreshThreshold = 60 * time.Second

// NewTokenProvider builds the TokenProvider matching auth.Type, or nil if
// auth is nil (no authentication configured).
func NewTokenProvider(auth *config.RestAuthConfig) TokenProvider {
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case config.RestAuthStatic:
		return &staticTokenProvider{token: auth.Token}
	case config.RestAuthOAuth2:
		threshold := DefaultRefreshThreshold
		if auth.RefreshThreshold > 0 {
			threshold = time.Duration(auth.RefreshThreshold) * time.Second
		}
		return &clientCredentialsProvider{
			cfg: &clientcredentials.Config{
				ClientID:     auth.ClientID,
				ClientSecret: auth.ClientSecret,
				TokenURL:     auth.TokenURL,
				Scopes:       auth.Scopes,
			},
			refreshThreshold: threshold,
		}
	default:
		return nil
	}
}

// staticTokenProvider wraps a fixed bearer token configured directly in the
// providers document.
type staticTokenProvider struct {
	token string

	warnOnce sync.Once
}

func (p *staticTokenProvider) AuthorizationHeader(_ context.Context) (string, error) {
	p.warnOnce.Do(func() {
		claims, _, err := jwt.NewParser().ParseUnverified(p.token, jwt.MapClaims{})
		if err != nil {
			return
		}
		exp, err := claims.GetExpirationTime()
		if err == nil && exp != nil && exp.Before(time.Now()) {
			logger.Warnf("oauthjwt: configured static token is already expired (exp=%s)", exp)
		}
	})
	return "Bearer " + p.token, nil
}

// clientCredentialsProvider fetches and caches an OAuth2 client-credentials
// token, refreshing it once ShouldRefresh reports the cached token is
// within its refresh threshold of expiry.
type clientCredentialsProvider struct {
	cfg              *clientcredentials.Config
	refreshThreshold time.Duration

	mu     sync.Mutex
	cached *CachedToken
}

func (p *clientCredentialsProvider) AuthorizationHeader(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached == nil || p.cached.ShouldRefresh(p.refreshThreshold) {
		token, err := p.cfg.Token(ctx)
		if err != nil {
			return "", err
		}

		expiresAt := token.Expiry
		if expiresAt.IsZero() {
			// Some token endpoints omit expires_in; fall back to the
			// token's own exp claim when it is itself a JWT.
			if exp, ok := expiryFromJWT(token.AccessToken); ok {
				expiresAt = exp
			}
		}

		p.cached = &CachedToken{
			Token:        token.AccessToken,
			TokenType:    token.TokenType,
			ExpiresAt:    expiresAt,
			RefreshToken: token.RefreshToken,
		}
	}

	return p.cached.AuthorizationHeader(), nil
}
