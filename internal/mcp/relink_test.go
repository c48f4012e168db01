package mcp

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haasonsaas/conductor/pkg/models"
)

func signedIDToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestShouldRelink(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state *models.OAuthClientState
		want  bool
	}{
		{name: "no state", state: nil, want: true},
		{name: "no tokens", state: &models.OAuthClientState{}, want: true},
		{
			name:  "id token valid",
			state: &models.OAuthClientState{Tokens: &models.OAuthTokens{IDToken: signedIDToken(t, now.Add(time.Hour))}},
			want:  false,
		},
		{
			name:  "id token inside skew",
			state: &models.OAuthClientState{Tokens: &models.OAuthTokens{IDToken: signedIDToken(t, now.Add(30*time.Second))}},
			want:  true,
		},
		{
			name: "id token wins over expires_in",
			state: &models.OAuthClientState{
				Tokens:    &models.OAuthTokens{IDToken: signedIDToken(t, now.Add(-time.Minute)), ExpiresIn: 86400},
				UpdatedAt: now,
			},
			want: true,
		},
		{
			name: "expires_in still valid",
			state: &models.OAuthClientState{
				Tokens:    &models.OAuthTokens{IDToken: "garbage", ExpiresIn: 3600},
				UpdatedAt: now.Add(-30 * time.Minute),
			},
			want: false,
		},
		{
			name: "expires_in elapsed",
			state: &models.OAuthClientState{
				Tokens:    &models.OAuthTokens{ExpiresIn: 3600},
				UpdatedAt: now.Add(-59*time.Minute - 30*time.Second),
			},
			want: true,
		},
		{
			name:  "no expiry signal",
			state: &models.OAuthClientState{Tokens: &models.OAuthTokens{AccessToken: "at"}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRelink(tt.state, now); got != tt.want {
				t.Fatalf("ShouldRelink() = %v, want %v", got, tt.want)
			}
		})
	}
}
