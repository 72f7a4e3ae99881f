// Package auth verifies the bearer tokens presented at WebSocket handshake
// time and resolves them to a user identity. Token issuance lives in the
// platform's auth service; this package only validates.
package auth

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/errors"
)

// Identity is the trusted result of a successful handshake verification.
// It is produced once per connection and passed explicitly to downstream
// handlers; the transport connection object is never mutated.
type Identity struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RawClaims map[string]interface{}
}

// Verifier validates HMAC-signed tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token and extracts the caller's identity.
// The subject claim becomes the user id; a token without one is rejected.
func (v *Verifier) Verify(tokenStr string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrInvalidToken
	}
	if !token.Valid {
		return nil, errors.ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.ErrNoSubject
	}

	id := &Identity{
		UserID:    sub,
		RawClaims: claims,
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}
