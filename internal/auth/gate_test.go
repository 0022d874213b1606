package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   "42",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var authErr *Error
	require.True(t, errors.As(err, &authErr), "expected *auth.Error, got %T", err)
	return authErr.Reason
}

func TestJWTGate_Valid(t *testing.T) {
	gate := NewJWTGate(testSecret, 0)
	claims := validClaims()

	identity, err := gate.Authenticate(signToken(t, jwt.SigningMethodHS256, testSecret, claims))
	require.NoError(t, err)
	assert.Equal(t, "42", identity.Subject)
	assert.Equal(t, claims.ExpiresAt.Unix(), identity.ExpiresAt.Unix())
}

func TestJWTGate_Rejections(t *testing.T) {
	gate := NewJWTGate(testSecret, 0)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	noSubject := validClaims()
	noSubject.Subject = ""

	tests := []struct {
		name   string
		token  string
		reason Reason
	}{
		{"missing", "", ReasonMissing},
		{"blank", "   ", ReasonMissing},
		{"malformed", "not-a-jwt", ReasonMalformed},
		{"expired", signToken(t, jwt.SigningMethodHS256, testSecret, expired), ReasonExpired},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims()), ReasonInvalid},
		{"no expiry", signToken(t, jwt.SigningMethodHS256, testSecret, noExpiry), ReasonInvalid},
		{"no subject", signToken(t, jwt.SigningMethodHS256, testSecret, noSubject), ReasonInvalid},
		{"alg none", signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims()), ReasonInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Authenticate(tt.token)
			require.Error(t, err)
			assert.Equal(t, tt.reason, reasonOf(t, err))
		})
	}
}

func TestJWTGate_Leeway(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-5 * time.Second))
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	_, err := NewJWTGate(testSecret, 0).Authenticate(token)
	assert.Error(t, err)

	_, err = NewJWTGate(testSecret, time.Minute).Authenticate(token)
	assert.NoError(t, err)
}

func TestError_Unwrap(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	_, err := NewJWTGate(testSecret, 0).Authenticate(signToken(t, jwt.SigningMethodHS256, testSecret, claims))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	assert.Contains(t, err.Error(), "expired")
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/realtimedata/?token=abc", nil)
	assert.Equal(t, "abc", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/realtimedata/", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/realtimedata/?token=abc", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "abc", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/realtimedata/", nil)
	r.Header.Set("Authorization", "Basic xyz")
	assert.Equal(t, "", TokenFromRequest(r))
}
