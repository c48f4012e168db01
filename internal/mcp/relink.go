package mcp

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haasonsaas/conductor/pkg/models"
)

// RelinkSkew is how early a link counts as expired.
const RelinkSkew = 60 * time.Second

// ShouldRelink reports whether the user must run the OAuth flow again. The
// id_token expiry wins; otherwise expires_in counts from the last update.
// Without any expiry signal the link is assumed valid.
func ShouldRelink(state *models.OAuthClientState, now time.Time) bool {
	if state == nil || state.Tokens == nil {
		return true
	}
	deadline := now.Add(RelinkSkew)

	if exp, ok := idTokenExpiry(state.Tokens.IDToken); ok {
		return !deadline.Before(exp)
	}
	if state.Tokens.ExpiresIn > 0 && !state.UpdatedAt.IsZero() {
		expires := state.UpdatedAt.Add(time.Duration(state.Tokens.ExpiresIn) * time.Second)
		return !deadline.Before(expires)
	}
	return false
}

// idTokenExpiry reads exp without verifying the signature; the token is only
// used as a freshness hint.
func idTokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
