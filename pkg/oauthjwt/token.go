// Package oauthjwt provides the JWT/OAuth2 token helper used by the REST
// provider to authenticate outbound requests (spec §4.5, §4.12).
package oauthjwt

import "time"

// CachedToken is a cached bearer credential with expiry bookkeeping,
// grounded on the vmcp cache package's CachedToken contract.
type CachedToken struct {
	Token        string
	TokenType    string
	ExpiresAt    time.Time
	RefreshToken string
	Scopes       []string
	Metadata     map[string]string
}

// IsExpired reports whether the token's expiry has passed. A zero ExpiresAt
// is always considered expired.
func (t *CachedToken) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().After(t.ExpiresAt)
}

// ShouldRefresh reports whether less than offset worth of runway before
// ExpiresAt remains (or the token is already expired), i.e. whether a caller
// should proactively refresh now rather than wait for IsExpired.
func (t *CachedToken) ShouldRefresh(offset time.Duration) bool {
	if t.IsExpired() {
		return true
	}
	return time.Now().Add(offset).After(t.ExpiresAt)
}

// AuthorizationHeader renders the token as a standard Authorization header
// value, defaulting the scheme to Bearer.
func (t *CachedToken) AuthorizationHeader() string {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + t.Token
}
