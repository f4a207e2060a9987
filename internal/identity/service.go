package identity

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/nupkan/permhub/internal/shared"
)

// Service wraps authentication business rules for the registry.
type Service struct {
	repo   RepositoryPort
	issuer *TokenIssuer
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort, issuer *TokenIssuer) *Service {
	return &Service{repo: repo, issuer: issuer}
}

// Authenticate validates email/password credentials and issues a token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, "", shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// ValidateToken verifies a bearer token and returns the user it names. Every
// failure mode collapses into ErrInvalidToken so nothing about the token's
// internals leaks to the caller.
func (s *Service) ValidateToken(ctx context.Context, raw string) (*User, error) {
	userID, _, err := s.issuer.Validate(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return user, nil
}
