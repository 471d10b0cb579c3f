package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens([]byte("secret"), time.Hour)

	token, err := tokens.Issue(Principal{UserID: "u1", IsAdmin: true})
	require.NoError(t, err)

	p, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u1", IsAdmin: true}, p)
}

func TestTokens_Verify(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens := NewTokens([]byte("secret"), time.Hour)
	tokens.now = func() time.Time { return issued }

	valid, err := tokens.Issue(Principal{UserID: "u1"})
	require.NoError(t, err)

	other := NewTokens([]byte("other"), time.Hour)
	other.now = tokens.now
	foreign, err := other.Issue(Principal{UserID: "u1"})
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for _, tt := range []struct {
		name  string
		token string
		now   time.Time
		err   error
	}{
		{name: "valid", token: valid, now: issued.Add(time.Minute)},
		{name: "empty", token: "", now: issued, err: ErrMissingToken},
		{name: "garbage", token: "not.a.token", now: issued, err: ErrInvalidToken},
		{name: "wrong secret", token: foreign, now: issued, err: ErrInvalidToken},
		{name: "expired", token: valid, now: issued.Add(2 * time.Hour), err: ErrTokenExpired},
		{name: "no subject", token: noSubject, now: issued, err: ErrInvalidToken},
		{name: "unsigned", token: noneAlg, now: issued, err: ErrInvalidToken},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tokens.now = func() time.Time { return tt.now }
			p, err := tokens.Verify(tt.token)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", p.UserID)
		})
	}
}

func TestNewTokens_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTokenTTL, NewTokens([]byte("s"), 0).ttl)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u1"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)
}
