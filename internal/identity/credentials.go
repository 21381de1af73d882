package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/realtime"
	"github.com/ryohi-cloud/backend/pkg/utils"
)

const minPasswordLength = 6

// CredentialStore persists credentials.
type CredentialStore interface {
	Create(ctx context.Context, email, passwordHash string) (*Credential, error)
	GetByEmail(ctx context.Context, email string) (*Credential, error)
}

// EventBus publishes change events; *realtime.Hub satisfies it.
type EventBus interface {
	Publish(ctx context.Context, topic, name string, data interface{})
}

// Token is a signed credential session.
type Token struct {
	Value  string  `json:"token"`
	Claims *Claims `json:"-"`
}

// IdentityEvent is the payload of signed_in / signed_out events.
type IdentityEvent struct {
	CredentialID uuid.UUID `json:"credential_id"`
	TokenID      string    `json:"token_id"`
}

// CredentialService signs credentials up, in and out.
type CredentialService struct {
	store   CredentialStore
	tokens  *TokenService
	revoked RevocationList
	bus     EventBus
	logger  *zap.Logger
}

// NewCredentialService creates a credential service.
func NewCredentialService(store CredentialStore, tokens *TokenService, revoked RevocationList, bus EventBus, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{store: store, tokens: tokens, revoked: revoked, bus: bus, logger: logger}
}

// SignUp creates a credential for email.
func (s *CredentialService) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperr.Validation("sign up", "invalid email")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Validation("sign up", "password must be at least %d characters", minPasswordLength)
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, apperr.Store("hash password", err)
	}
	cred, err := s.store.Create(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	s.logger.Info("credential created", zap.String("credential_id", cred.ID.String()))
	return cred, nil
}

// SignIn checks the password and issues a token.
func (s *CredentialService) SignIn(ctx context.Context, email, password string) (*Token, error) {
	cred, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(password, cred.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, cred)
}

// ErrInvalidCredentials is returned by SignIn for an unknown email or a wrong password.
var ErrInvalidCredentials = apperr.Forbidden("sign in", "invalid email or password")

func (s *CredentialService) issue(ctx context.Context, cred *Credential) (*Token, error) {
	value, claims, err := s.tokens.Generate(cred.ID, cred.Email)
	if err != nil {
		return nil, apperr.Store("issue token", err)
	}
	if s.bus != nil {
		s.bus.Publish(ctx, realtime.IdentityTopic(cred.ID), realtime.EventSignedIn,
			IdentityEvent{CredentialID: cred.ID, TokenID: claims.TokenID()})
	}
	return &Token{Value: value, Claims: claims}, nil
}

// SignOut revokes token until it would have expired and announces signed_out.
// Signing out an invalid or already revoked token is a no-op.
func (s *CredentialService) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.TokenID(), claims.Remaining(s.tokens.now())); err != nil {
		return apperr.Store("sign out", err)
	}
	if s.bus != nil {
		s.bus.Publish(ctx, realtime.IdentityTopic(claims.CredentialID), realtime.EventSignedOut,
			IdentityEvent{CredentialID: claims.CredentialID, TokenID: claims.TokenID()})
	}
	return nil
}

// CurrentSession returns the claims of a live token, or nil when the token is
// invalid, expired or signed out.
func (s *CredentialService) CurrentSession(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, nil
		}
		return nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return nil, apperr.Store("check session", err)
	}
	if revoked {
		return nil, nil
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
