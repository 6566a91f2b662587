package oauthjwt

import (
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

// expiryFromJWT extracts the "exp" claim from tokenString without verifying
// its signature, for token endpoints that return an access token but omit
// expires_in (so oauth2.Token.Expiry ends up zero). A zero time, false
// return means the token isn't a parseable JWT or carries no exp claim; the
// cached token's ExpiresAt then stays zero, which IsExpired treats as
// expired, so such a token is fetched again on every call.
func expiryFromJWT(tokenString string) (time.Time, bool) {
	token, err := jwt.Parse([]byte(tokenString), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return time.Time{}, false
	}
	exp := token.Expiration()
	if exp.IsZero() {
		return time.Time{}, false
	}
	return exp, true
}
