package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	created, err := repo.Create(ctx, Identity{Name: "Asha", Email: "  Asha@Example.COM ", Provider: ProviderLocal})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "asha@example.com", created.Email)
	assert.False(t, created.CreatedAt.IsZero())

	t.Run("lookups", func(t *testing.T) {
		got, err := repo.FindByEmail(ctx, "ASHA@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		got, err = repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Asha", got.Name)

		_, err = repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.FindByPhone(ctx, "")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := repo.Create(ctx, Identity{Email: "asha@example.com"})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("link google id", func(t *testing.T) {
		linked, err := repo.LinkGoogleID(ctx, created.ID, "g-1", "Other", "https://img/1")
		require.NoError(t, err)
		assert.Equal(t, "g-1", linked.GoogleID)
		assert.Equal(t, "Asha", linked.Name)
		assert.Equal(t, "https://img/1", linked.Avatar)

		got, err := repo.FindByGoogleID(ctx, "g-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		other, err := repo.Create(ctx, Identity{Email: "other@example.com"})
		require.NoError(t, err)
		_, err = repo.LinkGoogleID(ctx, other.ID, "g-1", "", "")
		assert.ErrorIs(t, err, ErrGoogleIDTaken)
	})

	t.Run("reset token does not touch other fields", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		_, err = repo.LinkGoogleID(ctx, created.ID, "g-2", "", "")
		require.NoError(t, err)

		require.NoError(t, repo.SetResetToken(ctx, stale.ID, "abc", time.Now().Add(time.Hour)))

		got, err := repo.FindByResetTokenHash(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "g-2", got.GoogleID)

		_, err = repo.FindByResetTokenHash(ctx, "")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("consume reset token once", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, repo.SetResetToken(ctx, created.ID, "once", now.Add(time.Hour)))

		consumed, err := repo.ConsumeResetToken(ctx, "once", now, "new-hash")
		require.NoError(t, err)
		assert.Equal(t, "new-hash", consumed.PasswordHash)
		assert.Empty(t, consumed.ResetPasswordTokenHash)
		assert.True(t, consumed.ResetPasswordExpiresAt.IsZero())

		_, err = repo.ConsumeResetToken(ctx, "once", now, "second-hash")
		assert.ErrorIs(t, err, ErrUserNotFound)

		got, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
	})

	t.Run("consume expired reset token", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, repo.SetResetToken(ctx, created.ID, "late", now))

		_, err := repo.ConsumeResetToken(ctx, "late", now, "new-hash")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := repo.SetResetToken(ctx, uuid.New(), "abc", time.Now())
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.LinkGoogleID(ctx, uuid.New(), "g-3", "", "")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUserServiceLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	svc := NewUserService(repo)

	created, err := repo.Create(ctx, Identity{Name: "Ravi", Email: "ravi@example.com"})
	require.NoError(t, err)

	got, err := svc.Lookup(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Ravi", got.Name)

	_, err = svc.Lookup(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Lookup(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestFindOrProvisionByPhone(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(NewInMemoryRepository())

	first, err := svc.FindOrProvisionByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "9876543210", first.Phone)
	assert.Equal(t, ProviderLocal, first.Provider)
	assert.Empty(t, first.Email)

	again, err := svc.FindOrProvisionByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestFindOrProvisionGoogle(t *testing.T) {
	ctx := context.Background()

	t.Run("creates new identity", func(t *testing.T) {
		svc := NewUserService(NewInMemoryRepository())
		profile := FederatedProfile{ProviderID: "g-1", Email: "G@Example.com", Name: "Gita", Avatar: "https://img/1"}

		created, err := svc.FindOrProvisionGoogle(ctx, profile)
		require.NoError(t, err)
		assert.Equal(t, ProviderGoogle, created.Provider)
		assert.Equal(t, "g@example.com", created.Email)
		assert.Equal(t, "g-1", created.GoogleID)

		again, err := svc.FindOrProvisionGoogle(ctx, profile)
		require.NoError(t, err)
		assert.Equal(t, created.ID, again.ID)
	})

	t.Run("links existing email", func(t *testing.T) {
		repo := NewInMemoryRepository()
		svc := NewUserService(repo)
		local, err := repo.Create(ctx, Identity{Name: "Local", Email: "l@example.com", PasswordHash: "x", Provider: ProviderLocal})
		require.NoError(t, err)

		linked, err := svc.FindOrProvisionGoogle(ctx, FederatedProfile{ProviderID: "g-2", Email: "l@example.com", Name: "Other", Avatar: "a"})
		require.NoError(t, err)
		assert.Equal(t, local.ID, linked.ID)
		assert.Equal(t, "g-2", linked.GoogleID)
		assert.Equal(t, "Local", linked.Name)
		assert.Equal(t, "a", linked.Avatar)
		assert.Equal(t, "x", linked.PasswordHash)
	})

	t.Run("missing provider id", func(t *testing.T) {
		svc := NewUserService(NewInMemoryRepository())
		_, err := svc.FindOrProvisionGoogle(ctx, FederatedProfile{Email: "x@example.com"})
		assert.Error(t, err)
	})
}

func TestIdentitySelect(t *testing.T) {
	full := Identity{
		ID:           uuid.New(),
		Name:         "N",
		Email:        "e@example.com",
		Phone:        "9876543210",
		PasswordHash: "secret",
		IsAdmin:      true,
		Provider:     ProviderLocal,
	}

	sel := full.Select([]string{FieldName, FieldIsAdmin})
	assert.Equal(t, full.ID, sel.ID)
	assert.Equal(t, "N", sel.Name)
	assert.True(t, sel.IsAdmin)
	assert.Empty(t, sel.Email)
	assert.Empty(t, sel.Phone)
	assert.Empty(t, sel.PasswordHash)

	all := full.Select(DefaultFields)
	assert.Equal(t, "e@example.com", all.Email)
	assert.Empty(t, all.PasswordHash)
}
