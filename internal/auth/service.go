package auth

import (
	"errors"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidServiceKey rejects event producers presenting a wrong key.
var ErrInvalidServiceKey = errors.New("invalid service key")

// Identity is the caller resolved from a platform-issued token.
type Identity struct {
	UserID   uuid.UUID
	UserType string
	TenantID uuid.UUID
}

// Service validates platform-issued HS256 tokens and the shared service key
// used by internal event producers. Token issuance, registration, and login
// belong to the platform's auth subsystem; the engine only validates.
type Service struct {
	secret         []byte
	serviceKeyHash []byte
}

func NewService() *Service {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "supersecretmvp"
	}
	return &Service{
		secret:         []byte(secret),
		serviceKeyHash: []byte(os.Getenv("EVENT_KEY_HASH")),
	}
}

type claims struct {
	jwt.RegisteredClaims
	UserType string `json:"user_type"`
	TenantID string `json:"tenant_id"`
}

// ValidateToken parses and verifies a bearer token, returning the caller's
// identity.
func (s *Service) ValidateToken(token string) (*Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: userID, UserType: c.UserType, TenantID: tenantID}, nil
}

// VerifyServiceKey checks the shared key event producers present against
// the bcrypt hash from EVENT_KEY_HASH.
func (s *Service) VerifyServiceKey(raw string) error {
	if len(s.serviceKeyHash) == 0 || raw == "" {
		return ErrInvalidServiceKey
	}
	if err := bcrypt.CompareHashAndPassword(s.serviceKeyHash, []byte(raw)); err != nil {
		return ErrInvalidServiceKey
	}
	return nil
}
