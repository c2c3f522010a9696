package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roastmyui/backend/internal/config"
	"github.com/roastmyui/backend/internal/models"
)

// ErrUnauthenticated is returned for a missing, malformed or unverifiable session token.
var ErrUnauthenticated = errors.New("unauthenticated")

// Service verifies session tokens issued by the identity provider.
type Service interface {
	ValidateToken(ctx context.Context, token string) (models.Identity, error)
}

type service struct {
	rsaKey *rsa.PublicKey
	secret []byte
	issuer string
}

// NewService accepts RS256 tokens when cfg.JWTKey holds a PEM public key and
// HS256 tokens when cfg.JWTSecret is set. At least one must be configured.
func NewService(cfg config.AuthConfig) (Service, error) {
	s := &service{issuer: cfg.Issuer}
	if cfg.JWTKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTKey))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		s.rsaKey = key
	}
	if cfg.JWTSecret != "" {
		s.secret = []byte(cfg.JWTSecret)
	}
	if s.rsaKey == nil && s.secret == nil {
		return nil, errors.New("auth: no verification key configured")
	}
	return s, nil
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func (s *service) ValidateToken(_ context.Context, token string) (models.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(s.methods()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	tok, err := jwt.ParseWithClaims(token, &claims{}, s.keyFunc, opts...)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.Subject == "" {
		return models.Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	return models.Identity{ExternalID: c.Subject, Email: c.Email}, nil
}

func (s *service) methods() []string {
	var m []string
	if s.rsaKey != nil {
		m = append(m, jwt.SigningMethodRS256.Alg())
	}
	if s.secret != nil {
		m = append(m, jwt.SigningMethodHS256.Alg())
	}
	return m
}

func (s *service) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodRSA:
		if s.rsaKey != nil {
			return s.rsaKey, nil
		}
	case *jwt.SigningMethodHMAC:
		if s.secret != nil {
			return s.secret, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
}

// IssueDevToken signs an HS256 session token for local development and tests.
func IssueDevToken(secret, subject, email string, ttl time.Duration) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: email,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString([]byte(secret))
}
