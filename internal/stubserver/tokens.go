package stubserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
)

var ErrInvalidToken = errors.New("invalid token")

const defaultTokenTTL = 30 * time.Minute

// Claims mirror what the agenda service puts in its access tokens.
type Claims struct {
	UserID     int64  `json:"id"`
	Rol        string `json:"rol"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time

	mu         sync.Mutex
	generation int
}

func newTokenIssuer(secret []byte) *tokenIssuer {
	return &tokenIssuer{secret: secret, ttl: defaultTokenTTL, nowFunc: time.Now}
}

func (ti *tokenIssuer) issue(u agenda.User) (string, error) {
	ti.mu.Lock()
	gen := ti.generation
	now := ti.nowFunc()
	ti.mu.Unlock()

	claims := Claims{
		UserID:     u.ID,
		Rol:        u.Rol,
		Generation: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (ti *tokenIssuer) verify(raw string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.now),
	)
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return ti.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	ti.mu.Lock()
	current := ti.generation
	ti.mu.Unlock()
	if claims.Generation != current {
		return Claims{}, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims, nil
}

func (ti *tokenIssuer) now() time.Time {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.nowFunc()
}

func (ti *tokenIssuer) revokeAll() {
	ti.mu.Lock()
	ti.generation++
	ti.mu.Unlock()
}
