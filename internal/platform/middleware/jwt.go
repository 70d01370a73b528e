package middleware

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Validator verifies HMAC-signed tokens issued by the front door.
type HS256Validator struct {
	key []byte
}

func NewHS256Validator(signingKey string) *HS256Validator {
	return &HS256Validator{key: []byte(signingKey)}
}

func (v *HS256Validator) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("token missing sub claim")
	}
	orgID, _ := claims["org"].(string)
	return &JWTClaims{UserID: sub, OrganizationID: orgID}, nil
}
