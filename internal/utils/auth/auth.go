package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
)

const TokenExpire = 3 * time.Hour

type Claims struct {
	jwt.RegisteredClaims
	Service string
}

func BuildServiceToken(service string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   service,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			},
			Service: service,
		},
	)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("JWT signing: %w", err)
	}
	return tokenString, nil
}

func CheckToken(tokenString string, secret []byte) (Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return secret, nil
		})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Claims{}, serviceerrs.ErrTokenExpired
	}
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token %w", err)
	}

	return *claims, nil
}

// TokenSource hands out a cached service token and signs a new one shortly
// before the cached one expires. A source without a secret yields no token.
type TokenSource struct {
	expires time.Time
	service string
	token   string
	secret  []byte
	ttl     time.Duration
	mu      sync.Mutex
}

func NewTokenSource(service string, secret []byte) *TokenSource {
	return &TokenSource{
		service: service,
		secret:  secret,
		ttl:     TokenExpire,
	}
}

func (s *TokenSource) Token() (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const refreshMargin = time.Minute
	if s.token != "" && time.Now().Add(refreshMargin).Before(s.expires) {
		return s.token, nil
	}

	token, err := BuildServiceToken(s.service, s.secret, s.ttl)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expires = time.Now().Add(s.ttl)
	return s.token, nil
}
