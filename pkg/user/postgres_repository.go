package user

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the subset of pgxpool.Pool / pgx.Tx used by the repository
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresRepository implements Repository on the users table
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the users table when it does not exist yet
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply users schema: %w", err)
	}
	return nil
}

const selectColumns = `id, name, email, phone, password_hash, google_id, avatar, provider, is_admin,
	reset_password_token_hash, reset_password_expires_at, created_at, updated_at`

func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (Identity, error) {
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Identity, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Identity{}, ErrUserNotFound
	}
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (Identity, error) {
	if phone == "" {
		return Identity{}, ErrUserNotFound
	}
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM users WHERE phone = $1`, phone)
}

func (r *PostgresRepository) FindByGoogleID(ctx context.Context, googleID string) (Identity, error) {
	if googleID == "" {
		return Identity{}, ErrUserNotFound
	}
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM users WHERE google_id = $1`, googleID)
}

func (r *PostgresRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (Identity, error) {
	if tokenHash == "" {
		return Identity{}, ErrUserNotFound
	}
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM users WHERE reset_password_token_hash = $1`, tokenHash)
}

func (r *PostgresRepository) Create(ctx context.Context, identity Identity) (Identity, error) {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	if identity.Provider == "" {
		identity.Provider = ProviderLocal
	}

	row := r.db.QueryRow(ctx, `INSERT INTO users (id, name, email, phone, password_hash, google_id, avatar, provider,
		is_admin, reset_password_token_hash, reset_password_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+selectColumns,
		identity.ID, identity.Name, nullString(NormalizeEmail(identity.Email)), nullString(identity.Phone),
		nullString(identity.PasswordHash), nullString(identity.GoogleID), identity.Avatar, identity.Provider,
		identity.IsAdmin, nullString(identity.ResetPasswordTokenHash), nullTime(identity.ResetPasswordExpiresAt),
	)
	created, err := scanIdentity(row)
	if err != nil {
		return Identity{}, mapWriteError(err)
	}
	return created, nil
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET reset_password_token_hash = $2, reset_password_expires_at = $3,
		updated_at = now()
		WHERE id = $1`,
		id, nullString(tokenHash), nullTime(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (Identity, error) {
	if tokenHash == "" {
		return Identity{}, ErrUserNotFound
	}
	row := r.db.QueryRow(ctx, `UPDATE users SET password_hash = $3, reset_password_token_hash = NULL,
		reset_password_expires_at = NULL, updated_at = now()
		WHERE reset_password_token_hash = $1 AND reset_password_expires_at > $2
		RETURNING `+selectColumns,
		tokenHash, now, passwordHash,
	)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) LinkGoogleID(ctx context.Context, id uuid.UUID, googleID, name, avatar string) (Identity, error) {
	row := r.db.QueryRow(ctx, `UPDATE users SET google_id = $2,
		name = CASE WHEN name = '' THEN $3 ELSE name END,
		avatar = CASE WHEN avatar = '' THEN $4 ELSE avatar END,
		updated_at = now()
		WHERE id = $1
		RETURNING `+selectColumns,
		id, googleID, name, avatar,
	)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, mapWriteError(err)
	}
	return identity, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg interface{}) (Identity, error) {
	identity, err := scanIdentity(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("failed to get user: %w", err)
	}
	return identity, nil
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var i Identity
	var email, phone, passwordHash, googleID, resetHash *string
	var resetExpires *time.Time
	err := row.Scan(&i.ID, &i.Name, &email, &phone, &passwordHash, &googleID, &i.Avatar, &i.Provider, &i.IsAdmin,
		&resetHash, &resetExpires, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return Identity{}, err
	}
	i.Email = deref(email)
	i.Phone = deref(phone)
	i.PasswordHash = deref(passwordHash)
	i.GoogleID = deref(googleID)
	i.ResetPasswordTokenHash = deref(resetHash)
	if resetExpires != nil {
		i.ResetPasswordExpiresAt = *resetExpires
	}
	return i, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return ErrEmailTaken
		case "users_phone_key":
			return ErrPhoneTaken
		case "users_google_id_key":
			return ErrGoogleIDTaken
		}
	}
	return fmt.Errorf("failed to write user: %w", err)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
