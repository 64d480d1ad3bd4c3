package tokengenerator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultSessionValidity = 7 * 24 * time.Hour

// Login types carried in the login_type claim.
const (
	LoginTypePassword   = "password"
	LoginTypeOTP        = "otp"
	LoginTypeGoogle     = "google"
	LoginTypeOAuthState = "oauth_state"
)

var (
	ErrMissingSigningKey = errors.New("jwt signing secret is not configured")
	// ErrInvalidToken covers every verification failure: malformed, expired,
	// wrong signature or wrong algorithm.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the session token payload. ID repeats the subject for readers
// that look up the user id under "id".
type Claims struct {
	ID        string `json:"id,omitempty"`
	LoginType string `json:"login_type,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// SubjectClaims is what a login path knows about the authenticated identity.
type SubjectClaims struct {
	Subject   string
	LoginType string
	Email     string
	Phone     string
	IsAdmin   bool
}

// TokenValue is a signed token and the moment it stops being valid.
type TokenValue struct {
	Token     string
	ExpiresAt time.Time
}

// Issuer signs and verifies HS256 session tokens with one process-wide secret.
type Issuer struct {
	secret          []byte
	issuer          string
	defaultValidity time.Duration
	now             func() time.Time
}

type Option func(*Issuer)

func WithIssuer(issuer string) Option {
	return func(i *Issuer) {
		i.issuer = issuer
	}
}

func WithDefaultValidity(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.defaultValidity = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer fails with ErrMissingSigningKey when secret is empty.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSigningKey
	}
	i := &Issuer{
		secret:          []byte(secret),
		defaultValidity: DefaultSessionValidity,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// DefaultValidity is the lifetime used when Issue is called with zero validity.
func (i *Issuer) DefaultValidity() time.Duration {
	return i.defaultValidity
}

// Issue signs a token for sc that expires after validity.
func (i *Issuer) Issue(sc SubjectClaims, validity time.Duration) (TokenValue, error) {
	if sc.Subject == "" {
		return TokenValue{}, fmt.Errorf("issue token: empty subject")
	}
	if validity <= 0 {
		validity = i.defaultValidity
	}

	now := i.now().UTC()
	claims := Claims{
		ID:        sc.Subject,
		LoginType: sc.LoginType,
		Email:     sc.Email,
		Phone:     sc.Phone,
		IsAdmin:   sc.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sc.Subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			ID:        uuid.NewString(),
		},
	}

	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		slog.Error("Failed sign JWT Claim string!", "err", err)
		return TokenValue{}, err
	}
	return TokenValue{Token: ss, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, algorithm and expiry and returns the raw claims.
// Callers only ever see ErrInvalidToken; the cause is logged.
func (i *Issuer) Verify(tokenStr string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		slog.Debug("Failed parse JWT string!", "err", err)
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
