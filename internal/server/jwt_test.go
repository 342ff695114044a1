package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/continuity-handoff/internal/config"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func newTestJWTService(secret string, hours int) *JWTService {
	return NewJWTService(&config.JWTConfig{Secret: secret, ExpirationHours: hours})
}

func signClaims(t *testing.T, claims *Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := newTestJWTService(testSecret, 24)

	token, err := service.GenerateToken("user-7")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.GetUserID())
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)

	validated, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", validated.GetUserID())
}

func TestJWTService_Rejects(t *testing.T) {
	service := newTestJWTService(testSecret, 24)
	now := time.Now()

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr string
	}{
		{"empty", func(*testing.T) string { return "" }, "empty"},
		{"malformed", func(*testing.T) string { return "not.a.jwt" }, "malformed"},
		{"wrong secret", func(*testing.T) string {
			tok, _ := newTestJWTService("another-secret-key-of-sufficient-length", 1).GenerateToken("u")
			return tok
		}, "signature"},
		{"expired", func(t *testing.T) string {
			return signClaims(t, &Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			}}, jwt.SigningMethodHS256, []byte(testSecret))
		}, "expired"},
		{"no user", func(t *testing.T) string {
			return signClaims(t, &Claims{RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}}, jwt.SigningMethodHS256, []byte(testSecret))
		}, "no user"},
		{"none algorithm", func(t *testing.T) string {
			return signClaims(t, &Claims{UserID: "u"}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token(t))
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestClaims_SubjectFallback(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"}}
	assert.Equal(t, "sub-1", c.GetUserID())
	c.UserID = "explicit"
	assert.Equal(t, "explicit", c.GetUserID())
}
