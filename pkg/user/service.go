package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// FederatedProfile is the verified profile returned by an identity provider.
type FederatedProfile struct {
	ProviderID string
	Email      string
	Name       string
	Avatar     string
}

// UserService is the directory used by login paths and the session resolver.
type UserService struct {
	repo Repository
}

func NewUserService(repo Repository) *UserService {
	return &UserService{repo: repo}
}

// Lookup resolves a token subject. Subjects that are not UUIDs cannot name
// an identity and are reported as ErrUserNotFound.
func (s *UserService) Lookup(ctx context.Context, subject string) (Identity, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return Identity{}, ErrUserNotFound
	}
	return s.repo.FindByID(ctx, id)
}

// FindOrProvisionByPhone returns the identity owning phone, creating a
// phone-only identity on first login.
func (s *UserService) FindOrProvisionByPhone(ctx context.Context, phone string) (Identity, error) {
	identity, err := s.repo.FindByPhone(ctx, phone)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return Identity{}, err
	}

	identity, err = s.repo.Create(ctx, Identity{Phone: phone, Provider: ProviderLocal})
	if errors.Is(err, ErrPhoneTaken) {
		// lost a race with a concurrent first login
		return s.repo.FindByPhone(ctx, phone)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("provision phone identity: %w", err)
	}
	slog.Info("Provisioned identity from phone login", "user", identity)
	return identity, nil
}

// FindOrProvisionGoogle matches a Google profile by provider id, then by
// email (linking the Google account), and otherwise creates a new identity.
func (s *UserService) FindOrProvisionGoogle(ctx context.Context, p FederatedProfile) (Identity, error) {
	if p.ProviderID == "" {
		return Identity{}, fmt.Errorf("google profile without id")
	}

	identity, err := s.repo.FindByGoogleID(ctx, p.ProviderID)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return Identity{}, err
	}

	if p.Email != "" {
		identity, err = s.repo.FindByEmail(ctx, p.Email)
		switch {
		case err == nil:
			linked, err := s.repo.LinkGoogleID(ctx, identity.ID, p.ProviderID, p.Name, p.Avatar)
			if err != nil {
				return Identity{}, fmt.Errorf("link google account: %w", err)
			}
			slog.Info("Linked google account to existing identity", "user", linked)
			return linked, nil
		case !errors.Is(err, ErrUserNotFound):
			return Identity{}, err
		}
	}

	identity, err = s.repo.Create(ctx, Identity{
		Name:     p.Name,
		Email:    p.Email,
		GoogleID: p.ProviderID,
		Avatar:   p.Avatar,
		Provider: ProviderGoogle,
	})
	if errors.Is(err, ErrGoogleIDTaken) {
		return s.repo.FindByGoogleID(ctx, p.ProviderID)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("provision google identity: %w", err)
	}
	slog.Info("Provisioned identity from google login", "user", identity)
	return identity, nil
}
