package login

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/turbootoys/idm/pkg/notification"
	"github.com/turbootoys/idm/pkg/user"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrWeakPassword       = errors.New("password too weak")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// ErrEmailTaken is returned by Signup when the address is registered.
var ErrEmailTaken = user.ErrEmailTaken

// DefaultResetTokenValidity is how long a password reset link stays usable.
const DefaultResetTokenValidity = time.Hour

type LoginService struct {
	repo          user.Repository
	notifier      notification.Notifier
	hasher        PasswordHasher
	policy        PasswordPolicy
	resetValidity time.Duration
	now           func() time.Time
	dummyHashOnce sync.Once
	dummyHash     string
}

type Option func(*LoginService)

func WithPasswordHasher(h PasswordHasher) Option {
	return func(s *LoginService) { s.hasher = h }
}

func WithPasswordPolicy(p PasswordPolicy) Option {
	return func(s *LoginService) { s.policy = p }
}

func WithResetTokenValidity(d time.Duration) Option {
	return func(s *LoginService) { s.resetValidity = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *LoginService) { s.now = now }
}

func NewLoginService(repo user.Repository, notifier notification.Notifier, opts ...Option) *LoginService {
	s := &LoginService{
		repo:          repo,
		notifier:      notifier,
		hasher:        NewBcryptHasher(),
		policy:        DefaultPasswordPolicy(),
		resetValidity: DefaultResetTokenValidity,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SignupParams struct {
	Name     string
	Email    string
	Password string
}

// Signup creates a local identity with a password.
func (s *LoginService) Signup(ctx context.Context, params SignupParams) (user.Identity, error) {
	name := strings.TrimSpace(params.Name)
	email := user.NormalizeEmail(params.Email)
	if name == "" || email == "" || params.Password == "" {
		return user.Identity{}, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return user.Identity{}, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if err := s.policy.Check(params.Password); err != nil {
		return user.Identity{}, err
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	identity, err := s.repo.Create(ctx, user.Identity{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Provider:     user.ProviderLocal,
	})
	if err != nil {
		return user.Identity{}, err
	}
	slog.Info("User signed up", "user", identity)
	return identity, nil
}

// Signin checks an email and password. Every failure that depends on the
// stored identity is reported as ErrInvalidCredentials.
func (s *LoginService) Signin(ctx context.Context, email, password string) (user.Identity, error) {
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return user.Identity{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	identity, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		return user.Identity{}, err
	}
	if err != nil || !identity.HasPassword() {
		// keep the response time close to a real comparison
		_, _ = s.hasher.Verify(password, s.fixedHash())
		return user.Identity{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, identity.PasswordHash)
	if err != nil {
		slog.Warn("Stored password hash could not be compared", "user", identity, "err", err)
		return user.Identity{}, ErrInvalidCredentials
	}
	if !ok {
		return user.Identity{}, ErrInvalidCredentials
	}
	return identity, nil
}

func (s *LoginService) fixedHash() string {
	s.dummyHashOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			slog.Error("Failed to prepare comparison hash", "err", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// ForgotPassword emails a reset link to email when it belongs to an identity.
// The outcome is never reported to the caller so addresses cannot be enumerated.
func (s *LoginService) ForgotPassword(ctx context.Context, email, resetBaseURL string) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return
	}

	identity, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			slog.Error("Failed to look up user for password reset", "err", err)
		}
		return
	}

	token, err := newResetToken()
	if err != nil {
		slog.Error("Failed to generate reset token", "err", err)
		return
	}

	expiresAt := s.now().Add(s.resetValidity).UTC()
	if err := s.repo.SetResetToken(ctx, identity.ID, hashResetToken(token), expiresAt); err != nil {
		slog.Error("Failed to store reset token", "user", identity, "err", err)
		return
	}

	msg, err := notification.PasswordResetMessage(identity.Email, notification.PasswordResetData{
		Name:     identity.Name,
		Link:     resetLink(resetBaseURL, token),
		ValidFor: formatValidity(s.resetValidity),
	})
	if err != nil {
		slog.Error("Failed to render reset email", "err", err)
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		slog.Error("Failed to send reset email", "user", identity, "err", err)
		return
	}
	slog.Info("Password reset email sent", "user", identity)
}

// ResetPassword replaces the password of the identity holding token and
// invalidates the token.
func (s *LoginService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := s.policy.Check(newPassword); err != nil {
		return err
	}

	tokenHash := hashResetToken(token)
	// rejects unknown and expired tokens before hashing; ConsumeResetToken decides
	identity, err := s.repo.FindByResetTokenHash(ctx, tokenHash)
	if errors.Is(err, user.ErrUserNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	if !s.now().Before(identity.ResetPasswordExpiresAt) {
		return ErrInvalidResetToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	identity, err = s.repo.ConsumeResetToken(ctx, tokenHash, s.now(), hash)
	if errors.Is(err, user.ErrUserNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	slog.Info("Password reset", "user", identity)
	return nil
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func resetLink(base, token string) string {
	return strings.TrimRight(base, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

func formatValidity(d time.Duration) string {
	if d%time.Hour == 0 {
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
