// Package auth implements the stateless identity handshake: an HS256 token
// issuer and the matching verifier. The two halves are deployed in separate
// services that share only the signing secret, so verification is pure and
// local — no session table, no network call, no state between calls.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified identity carried by a token.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Iat   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
}

var (
	// ErrNoSecret is returned when the shared signing secret is not configured.
	ErrNoSecret = errors.New("auth: signing secret not configured")
	// ErrInvalidToken covers missing, malformed, signature-invalid and
	// expired tokens. Callers map it to a 401; the distinction between the
	// failure modes is deliberately not exposed.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Issue signs a token for the given identity. Expiry is iat + lifetime.
func Issue(sub, email, name, secret string, lifetime time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"name":  name,
		"iat":   now.Unix(),
		"exp":   now.Add(lifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Verify validates signature and expiry and returns the claim set.
// Any failure collapses to ErrInvalidToken.
func Verify(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Sub = sub
	}
	if claims.Sub == "" {
		return nil, ErrInvalidToken
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Name = name
	}
	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.Iat = int64(iat)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.Exp = int64(exp)
	}
	return claims, nil
}
