package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrPhoneTaken    = errors.New("phone already registered")
	ErrGoogleIDTaken = errors.New("google account already linked")
)

// Identity is a user known to the service. Email is empty only for
// identities provisioned from a phone login.
type Identity struct {
	ID                     uuid.UUID
	Name                   string
	Email                  string
	Phone                  string
	PasswordHash           string
	GoogleID               string
	Avatar                 string
	Provider               string
	IsAdmin                bool
	ResetPasswordTokenHash string
	ResetPasswordExpiresAt time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", i.ID.String()),
		slog.String("provider", i.Provider),
	)
}

// HasPassword reports whether the identity can sign in with a password.
func (i Identity) HasPassword() bool {
	return i.PasswordHash != ""
}

// Field names accepted by Select.
const (
	FieldName      = "name"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldIsAdmin   = "isAdmin"
	FieldGoogleID  = "googleId"
	FieldAvatar    = "avatar"
	FieldProvider  = "provider"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// DefaultFields is the profile projection attached to authenticated requests.
var DefaultFields = []string{
	FieldName, FieldEmail, FieldPhone, FieldIsAdmin, FieldGoogleID,
	FieldAvatar, FieldProvider, FieldCreatedAt, FieldUpdatedAt,
}

// Select returns a copy carrying the ID plus only the named fields. Secrets
// such as the password hash are never part of a selection.
func (i Identity) Select(fields []string) Identity {
	out := Identity{ID: i.ID}
	for _, f := range fields {
		switch f {
		case FieldName:
			out.Name = i.Name
		case FieldEmail:
			out.Email = i.Email
		case FieldPhone:
			out.Phone = i.Phone
		case FieldIsAdmin:
			out.IsAdmin = i.IsAdmin
		case FieldGoogleID:
			out.GoogleID = i.GoogleID
		case FieldAvatar:
			out.Avatar = i.Avatar
		case FieldProvider:
			out.Provider = i.Provider
		case FieldCreatedAt:
			out.CreatedAt = i.CreatedAt
		case FieldUpdatedAt:
			out.UpdatedAt = i.UpdatedAt
		}
	}
	return out
}

// NormalizeEmail lower-cases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository persists identities. Lookups return ErrUserNotFound when no
// identity matches; Create and LinkGoogleID return the Err*Taken errors on
// uniqueness conflicts. Writes touch only the columns they name.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (Identity, error)
	FindByEmail(ctx context.Context, email string) (Identity, error)
	FindByPhone(ctx context.Context, phone string) (Identity, error)
	FindByGoogleID(ctx context.Context, googleID string) (Identity, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (Identity, error)
	Create(ctx context.Context, identity Identity) (Identity, error)

	// SetResetToken stores a reset token hash and expiry, leaving every other
	// field as it is.
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	// ConsumeResetToken sets passwordHash on the identity holding tokenHash and
	// clears the token, in one step. It returns ErrUserNotFound when no
	// identity holds the token or it expired at or before now.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (Identity, error)
	// LinkGoogleID attaches googleID to id. name and avatar only fill fields
	// that are still empty.
	LinkGoogleID(ctx context.Context, id uuid.UUID, googleID, name, avatar string) (Identity, error)
}
