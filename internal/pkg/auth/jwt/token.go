package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"

	"textrelay/internal/pkg/randx"
)

const (
	// SessionTokenExpiration defines how long an issued API token stays valid.
	SessionTokenExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "TextRelay-Server"
)

// GenerateToken signs a token for username that expires after duration.
func GenerateToken(username string, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload := &Payload{
		StandardClaims: jwt.StandardClaims{
			Id:        randx.TokenID(),
			Subject:   username,
			ExpiresAt: now.Add(duration).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    TokenIssuer,
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken parses and validates the JWT Token string using the provided secretKey.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid || claims.Issuer != TokenIssuer || claims.Username == "" {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}
