// Package auth authenticates back-office staff and maps their role onto the
// capabilities the rest of the API checks.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"tradeflow/internal/types"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	pool   *pgxpool.Pool
	issuer string
	secret []byte
	ttl    time.Duration
}

func NewService(pool *pgxpool.Pool, issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{pool: pool, issuer: issuer, secret: secret, ttl: ttl}
}

// Identity is the authenticated staff member attached to request context.
type Identity struct {
	UserID       string
	Role         types.InitiatorType
	Capabilities CapabilitySet
}

type staffClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	var userID, hash, role string
	err := s.pool.QueryRow(ctx, `
		SELECT id, password_hash, role
		FROM staff_users
		WHERE lower(email) = lower($1) AND active`, email).Scan(&userID, &hash, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.signToken(userID, role)
}

func (s *Service) signToken(userID, role string) (string, error) {
	now := time.Now().UTC()
	claims := staffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: role,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// ParseToken validates the token and resolves the role to a capability set
// once, so handlers only do set lookups.
func (s *Service) ParseToken(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &staffClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := parsed.Claims.(*staffClaims)
	if !ok || !parsed.Valid {
		return Identity{}, errors.New("invalid token")
	}
	if claims.Issuer != s.issuer {
		return Identity{}, errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("invalid subject")
	}
	role := types.InitiatorType(claims.Role)
	if !types.ValidInitiatorType(role) || role == types.InitiatorClient {
		return Identity{}, errors.New("invalid role")
	}
	return Identity{
		UserID:       claims.Subject,
		Role:         role,
		Capabilities: CapabilitiesFor(role),
	}, nil
}
