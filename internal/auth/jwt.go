package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// subjectClaims lists the claims checked, in order, for the user id.
var subjectClaims = []string{"sub", "userId", "user_id", "id"}

// parseUnverified decodes a JWT without checking its signature. The server is
// the verifier; the client only reads expiry and subject.
func parseUnverified(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// SubjectFromToken returns the user id carried by a JWT.
func SubjectFromToken(token string) (string, error) {
	claims, err := parseUnverified(strings.TrimSpace(token))
	if err != nil {
		return "", err
	}
	for _, key := range subjectClaims {
		switch v := claims[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), nil
			}
		case float64:
			return fmt.Sprintf("%.0f", v), nil
		}
	}
	return "", errors.New("token has no subject claim")
}

// TokenExpired reports whether a JWT's exp claim is at or before now. Tokens
// that are not JWTs, or carry no exp, are never considered expired.
func TokenExpired(token string, now time.Time) bool {
	claims, err := parseUnverified(strings.TrimSpace(token))
	if err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.Time.After(now)
}

type expiryAware struct {
	TokenProvider
	now func() time.Time
}

// ExpiryAware treats expired JWTs as absent so sync stops before the server
// has to reject them.
func ExpiryAware(p TokenProvider, now func() time.Time) TokenProvider {
	if now == nil {
		now = time.Now
	}
	return &expiryAware{TokenProvider: p, now: now}
}

func (e *expiryAware) Token() (string, bool) {
	token, ok := e.TokenProvider.Token()
	if !ok || TokenExpired(token, e.now()) {
		return "", false
	}
	return token, true
}

func (e *expiryAware) Invalidate() {
	Invalidate(e.TokenProvider)
}
