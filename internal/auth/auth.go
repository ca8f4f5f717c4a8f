// Package auth verifies the bearer credentials presented to the focus
// service. Tokens are HS256 JWTs whose subject is the user id.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// Verifier maps a presented credential to a user id.
type Verifier struct {
	secret   []byte
	insecure bool
}

// NewVerifier builds a verifier. With insecure set and no secret, the raw
// token is taken as the user id; this is for local development only.
func NewVerifier(secret string, insecure bool) *Verifier {
	return &Verifier{secret: []byte(secret), insecure: insecure}
}

func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	if len(v.secret) == 0 {
		if v.insecure {
			return token, nil
		}
		return "", ErrUnauthorized
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// FromRequest reads the credential from the Authorization bearer header or,
// for websocket handshakes, the token query parameter.
func (v *Verifier) FromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", ErrUnauthorized
		}
		return v.Verify(token)
	}
	return v.Verify(r.URL.Query().Get("token"))
}

// Issue signs a token for userID. A zero ttl never expires; a negative one
// is already expired.
func Issue(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
