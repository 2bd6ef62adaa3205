// Package auth verifies and mints the bearer tokens issued by the
// marketplace identity service. Only the user_id claim is relied upon.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingUserID = errors.New("token has no user_id claim")
)

type AuthService struct {
	jwtSecret string
	jwtExpire time.Duration
}

func NewAuthService(secret string, expire time.Duration) *AuthService {
	return &AuthService{
		jwtSecret: secret,
		jwtExpire: expire,
	}
}

// IssueToken signs a token for userID. It is used by the dev CLI and tests;
// production tokens come from the identity service.
func (s *AuthService) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(s.jwtExpire).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ParseToken validates tokenString and returns its user id. Numeric user_id
// claims are accepted and rendered in base 10.
func (s *AuthService) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	switch id := claims["user_id"].(type) {
	case string:
		if id == "" {
			return "", ErrMissingUserID
		}
		return id, nil
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", ErrMissingUserID
	}
}
