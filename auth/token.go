package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProviderClaims is what the auth provider puts inside its tokens.
// Subject carries the provider-side user id; the durable marketplace
// identity is resolved from it by the identity package.
type ProviderClaims struct {
	jwt.RegisteredClaims
}

// TokenCodec validates (and, for tests and tooling, issues) the
// HS256-signed tokens handed to the chat server by clients.
type TokenCodec struct {
	key []byte
}

func NewTokenCodec(signingKey string) *TokenCodec {
	return &TokenCodec{key: []byte(signingKey)}
}

// Generate creates a signed token for a provider subject. The server
// never calls this in production; the auth provider issues tokens.
func (c *TokenCodec) Generate(subject string, duration time.Duration) (string, error) {
	claims := &ProviderClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "atelier-chat",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Validate parses and validates the signature and expiration of a token string.
func (c *TokenCodec) Validate(tokenString string) (*ProviderClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ProviderClaims{}, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*ProviderClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
