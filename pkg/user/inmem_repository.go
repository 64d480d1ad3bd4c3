package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository with maps guarded by a RWMutex
type InMemoryRepository struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]Identity
	byEmail    map[string]uuid.UUID
	byPhone    map[string]uuid.UUID
	byGoogleID map[string]uuid.UUID
	now        func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:      make(map[uuid.UUID]Identity),
		byEmail:    make(map[string]uuid.UUID),
		byPhone:    make(map[string]uuid.UUID),
		byGoogleID: make(map[string]uuid.UUID),
		now:        time.Now,
	}
}

func (r *InMemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return u, nil
}

func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (Identity, error) {
	return r.findByIndex(r.byEmail, NormalizeEmail(email))
}

func (r *InMemoryRepository) FindByPhone(ctx context.Context, phone string) (Identity, error) {
	return r.findByIndex(r.byPhone, phone)
}

func (r *InMemoryRepository) FindByGoogleID(ctx context.Context, googleID string) (Identity, error) {
	return r.findByIndex(r.byGoogleID, googleID)
}

func (r *InMemoryRepository) findByIndex(index map[string]uuid.UUID, key string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key == "" {
		return Identity{}, ErrUserNotFound
	}
	id, ok := index[key]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return r.users[id], nil
}

func (r *InMemoryRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tokenHash == "" {
		return Identity{}, ErrUserNotFound
	}
	for _, u := range r.users {
		if u.ResetPasswordTokenHash == tokenHash {
			return u, nil
		}
	}
	return Identity{}, ErrUserNotFound
}

func (r *InMemoryRepository) Create(ctx context.Context, identity Identity) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	identity.Email = NormalizeEmail(identity.Email)
	if err := r.checkUnique(identity); err != nil {
		return Identity{}, err
	}

	now := r.now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	r.store(identity)
	return identity, nil
}

func (r *InMemoryRepository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.ResetPasswordTokenHash = tokenHash
	u.ResetPasswordExpiresAt = expiresAt
	u.UpdatedAt = r.now().UTC()
	r.users[id] = u
	return nil
}

func (r *InMemoryRepository) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tokenHash == "" {
		return Identity{}, ErrUserNotFound
	}
	for id, u := range r.users {
		if u.ResetPasswordTokenHash != tokenHash {
			continue
		}
		if !now.Before(u.ResetPasswordExpiresAt) {
			return Identity{}, ErrUserNotFound
		}
		u.PasswordHash = passwordHash
		u.ResetPasswordTokenHash = ""
		u.ResetPasswordExpiresAt = time.Time{}
		u.UpdatedAt = r.now().UTC()
		r.users[id] = u
		return u, nil
	}
	return Identity{}, ErrUserNotFound
}

func (r *InMemoryRepository) LinkGoogleID(ctx context.Context, id uuid.UUID, googleID, name, avatar string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	if owner, taken := r.byGoogleID[googleID]; taken && owner != id {
		return Identity{}, ErrGoogleIDTaken
	}
	if u.GoogleID != "" {
		delete(r.byGoogleID, u.GoogleID)
	}
	u.GoogleID = googleID
	if u.Name == "" {
		u.Name = name
	}
	if u.Avatar == "" {
		u.Avatar = avatar
	}
	u.UpdatedAt = r.now().UTC()
	r.store(u)
	return u, nil
}

// checkUnique must be called with the write lock held.
func (r *InMemoryRepository) checkUnique(identity Identity) error {
	if id, ok := r.byEmail[identity.Email]; ok && identity.Email != "" && id != identity.ID {
		return ErrEmailTaken
	}
	if id, ok := r.byPhone[identity.Phone]; ok && identity.Phone != "" && id != identity.ID {
		return ErrPhoneTaken
	}
	if id, ok := r.byGoogleID[identity.GoogleID]; ok && identity.GoogleID != "" && id != identity.ID {
		return ErrGoogleIDTaken
	}
	return nil
}

func (r *InMemoryRepository) store(identity Identity) {
	r.users[identity.ID] = identity
	if identity.Email != "" {
		r.byEmail[identity.Email] = identity.ID
	}
	if identity.Phone != "" {
		r.byPhone[identity.Phone] = identity.ID
	}
	if identity.GoogleID != "" {
		r.byGoogleID[identity.GoogleID] = identity.ID
	}
}
