package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const DefaultTTL = 5 * time.Minute

var (
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrOtpNotFound  = errors.New("otp not found")
	ErrOtpExpired   = errors.New("otp expired")
	ErrOtpInvalid   = errors.New("invalid otp")
)

// Manager owns the lifecycle of phone login codes: issue, roll back after a
// failed delivery, verify once.
type Manager struct {
	store    Store
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(generate func() (string, error)) Option {
	return func(m *Manager) {
		m.generate = generate
	}
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		ttl:      DefaultTTL,
		now:      time.Now,
		generate: GenerateCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestCode validates phone, stores the hash of a fresh code for it and
// returns the plaintext code for delivery. A malformed phone is rejected
// before the store is touched.
func (m *Manager) RequestCode(ctx context.Context, phone string) (string, error) {
	if !ValidatePhone(phone) {
		return "", ErrInvalidPhone
	}

	code, err := m.generate()
	if err != nil {
		return "", err
	}

	rec := Record{
		Hash:      HashCode(code),
		ExpiresAt: m.now().Add(m.ttl),
	}
	if err := m.store.Put(ctx, phone, rec); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}

	slog.Info("OTP issued", "phone", maskPhone(phone), "expires_at", rec.ExpiresAt)
	return code, nil
}

// RecordDispatchFailure rolls back the record created for code. A record
// written by a newer request for the same phone is left alone.
func (m *Manager) RecordDispatchFailure(ctx context.Context, phone, code string) error {
	deleted, err := m.store.CompareAndDelete(ctx, phone, HashCode(code))
	if err != nil {
		return fmt.Errorf("rollback otp: %w", err)
	}
	slog.Warn("OTP rolled back after dispatch failure", "phone", maskPhone(phone), "deleted", deleted)
	return nil
}

// VerifyCode checks code against the pending record for phone and consumes
// it on success.
func (m *Manager) VerifyCode(ctx context.Context, phone, code string) error {
	result, err := m.store.Consume(ctx, phone, HashCode(code), m.now())
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}

	switch result {
	case ConsumeMatched:
		slog.Info("OTP verified", "phone", maskPhone(phone))
		return nil
	case ConsumeExpired:
		return ErrOtpExpired
	case ConsumeMismatch:
		slog.Warn("OTP mismatch", "phone", maskPhone(phone))
		return ErrOtpInvalid
	default:
		return ErrOtpNotFound
	}
}
