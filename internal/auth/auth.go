package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"schedboard/pkg/interfaces"
	"schedboard/pkg/types"
)

// Service issues and validates session tokens. Tokens are self-contained
// HS256 JWTs carrying identity id and role; validity is established by
// signature and expiry alone, with no server-side session table. The flip
// side, accepted deliberately: a leaked token stays valid until it expires.
type Service struct {
	store  interfaces.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewService creates a token issuer backed by the given store.
func NewService(store interfaces.Store, secret string, ttl time.Duration) *Service {
	return &Service{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Authenticate verifies a username/password pair and issues a session token.
// Unknown username and wrong password are indistinguishable to the caller:
// both return interfaces.ErrInvalidCredentials. On success the user's
// last-active timestamp is updated.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, *types.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", nil, interfaces.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("credential lookup failed: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, interfaces.ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	if err := s.store.TouchLastActive(ctx, user.ID, now); err != nil {
		// Login still succeeds; the activity marker only feeds online counts.
		log.Printf("Failed to update last-active for user %s: %v", user.ID, err)
	} else {
		user.LastActive = now
	}

	return token, user, nil
}

// IssueToken signs a session token for the given user.
func (s *Service) IssueToken(user *types.User) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature and expiry. Every failure mode collapses
// to interfaces.ErrInvalidToken so callers cannot probe for why a token was
// rejected.
func (s *Service) ValidateToken(token string) (*interfaces.Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, interfaces.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, interfaces.ErrInvalidToken
	}

	return &interfaces.Claims{UserID: claims.Subject, Role: claims.Role}, nil
}

// HashPassword produces the stored form of a password.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
func VerifyPassword(plaintext, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext)) == nil
}
