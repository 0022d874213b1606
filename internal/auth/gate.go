package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Reason string

const (
	ReasonMissing   Reason = "missing"
	ReasonMalformed Reason = "malformed"
	ReasonExpired   Reason = "expired"
	ReasonInvalid   Reason = "invalid"
)

// Error is returned when a handshake credential is rejected.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication error: %s token: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication error: %s token", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Identity is the principal established at handshake time.
type Identity struct {
	Subject   string
	ExpiresAt time.Time
}

type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

// JWTGate verifies HMAC-signed bearer tokens. The subject claim carries the
// user identity issued by the dashboard login endpoint.
type JWTGate struct {
	secret []byte
	leeway time.Duration
}

func NewJWTGate(secret []byte, leeway time.Duration) *JWTGate {
	return &JWTGate{secret: secret, leeway: leeway}
}

func (g *JWTGate) Authenticate(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, &Error{Reason: ReasonMissing}
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(g.leeway),
	)
	if err != nil {
		return Identity{}, classify(err)
	}
	if !parsed.Valid {
		return Identity{}, &Error{Reason: ReasonInvalid, Err: errors.New("invalid token")}
	}
	if claims.Subject == "" {
		return Identity{}, &Error{Reason: ReasonInvalid, Err: errors.New("missing subject")}
	}

	identity := Identity{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &Error{Reason: ReasonMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &Error{Reason: ReasonExpired, Err: err}
	default:
		return &Error{Reason: ReasonInvalid, Err: err}
	}
}

// TokenFromRequest extracts the handshake credential. Browsers cannot set
// headers on a websocket upgrade, so the token query parameter wins.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
