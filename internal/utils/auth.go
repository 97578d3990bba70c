package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BridgeAudience marks tokens that may open the bridge channel
const BridgeAudience = "eckprint-bridge"

// GenerateBridgeToken creates a signed token for the embedded surface.
// ttl <= 0 issues a token without expiry.
func GenerateBridgeToken(subject, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("bridge secret not configured")
	}

	claims := jwt.MapClaims{
		"sub":  subject,
		"aud":  BridgeAudience,
		"type": "bridge",
		"iat":  time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithAudience(BridgeAudience))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
