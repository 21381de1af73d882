package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds JWT claims binding a token to one credential.
type Claims struct {
	CredentialID uuid.UUID `json:"credential_id"`
	Email        string    `json:"email"`
	jwt.RegisteredClaims
}

// TokenID returns the unique token id (jti).
func (c *Claims) TokenID() string { return c.ID }

// Remaining returns how long the token stays valid.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// TokenService handles token generation and validation.
type TokenService struct {
	secret      []byte
	expireHours int
	now         func() time.Time
}

// NewTokenService creates a JWT service.
func NewTokenService(secret string, expireHours int) *TokenService {
	return &TokenService{
		secret:      []byte(secret),
		expireHours: expireHours,
		now:         time.Now,
	}
}

// Generate creates a new signed token for the credential.
func (s *TokenService) Generate(credentialID uuid.UUID, email string) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		CredentialID: credentialID,
		Email:        email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   credentialID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Validate parses and validates a token, returning claims or ErrInvalidToken.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.CredentialID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
