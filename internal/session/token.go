package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified identity payload the OAuth gateway mints after a
// successful login. Only sub is mandatory.
type Claims struct {
	AccountID string
	Email     string
	Name      string
	Image     string
}

var ErrInvalidToken = errors.New("invalid session token")

// ParseToken verifies an HS256 session token against the shared secret and
// extracts the identity claims. The token is already the product of a
// completed OAuth login; this layer only checks that it is ours and intact.
func ParseToken(secret []byte, raw string) (*Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	out := &Claims{AccountID: sub}
	if v, ok := claims["email"].(string); ok {
		out.Email = v
	}
	if v, ok := claims["name"].(string); ok {
		out.Name = v
	}
	if v, ok := claims["picture"].(string); ok {
		out.Image = v
	}
	return out, nil
}
