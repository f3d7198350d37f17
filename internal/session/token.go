package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var claimsParser = jwt.NewParser()

// tokenExpiry reads the exp claim of a JWT access token. The signature is
// not checked here; the provider has already accepted the token.
func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := claimsParser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
