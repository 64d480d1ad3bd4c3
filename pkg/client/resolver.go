package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/turbootoys/idm/pkg/errors"
	"github.com/turbootoys/idm/pkg/tokengenerator"
	"github.com/turbootoys/idm/pkg/user"
)

var (
	ErrNoToken      = errors.New("no auth token")
	ErrInvalidToken = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
)

// TokenVerifier checks a session token and returns its claims
type TokenVerifier interface {
	Verify(token string) (jwt.MapClaims, error)
}

// Directory resolves a token subject into an identity
type Directory interface {
	Lookup(ctx context.Context, subject string) (user.Identity, error)
}

// AuthContext is attached to the request once a session resolves.
type AuthContext struct {
	User      user.Identity
	UserID    string
	Channel   Channel
	LoginType string
}

func (a AuthContext) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", a.UserID),
		slog.String("channel", string(a.Channel)),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "idm context value " + k.name
}

var AuthContextKey = &contextKey{"AuthContext"}

// SessionResolver turns the token on a request into an AuthContext:
// locate (ordered sources), verify, read the subject (ordered aliases),
// load the identity.
type SessionResolver struct {
	verifier  TokenVerifier
	directory Directory
	sources   []TokenSource
	aliases   []string
	fields    []string
}

type Option func(*SessionResolver)

func WithTokenSources(sources ...TokenSource) Option {
	return func(s *SessionResolver) {
		s.sources = sources
	}
}

func WithSubjectClaimAliases(aliases ...string) Option {
	return func(s *SessionResolver) {
		s.aliases = aliases
	}
}

// WithFieldSelection sets which identity fields are copied into the context.
func WithFieldSelection(fields ...string) Option {
	return func(s *SessionResolver) {
		s.fields = fields
	}
}

func NewSessionResolver(verifier TokenVerifier, directory Directory, opts ...Option) *SessionResolver {
	s := &SessionResolver{
		verifier:  verifier,
		directory: directory,
		sources:   DefaultTokenSources(),
		aliases:   DefaultSubjectClaimAliases,
		fields:    user.DefaultFields,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns ErrNoToken, ErrInvalidToken or ErrUserNotFound, or an
// internal error when the directory fails.
func (s *SessionResolver) Resolve(r *http.Request) (*AuthContext, error) {
	token, channel, ok := ExtractToken(r, s.sources)
	if !ok {
		return nil, ErrNoToken
	}

	claims, err := s.verifier.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	loginType, _ := claims["login_type"].(string)
	if loginType == tokengenerator.LoginTypeOAuthState {
		slog.Warn("OAuth state token presented as session", "channel", channel)
		return nil, ErrInvalidToken
	}

	subject, ok := SubjectFromClaims(claims, s.aliases)
	if !ok {
		slog.Warn("Token has no subject claim", "channel", channel)
		return nil, ErrInvalidToken
	}

	identity, err := s.directory.Lookup(r.Context(), subject)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &AuthContext{
		User:      identity.Select(s.fields),
		UserID:    identity.ID.String(),
		Channel:   channel,
		LoginType: loginType,
	}, nil
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err *apperrors.Error) {
	render.Status(r, err.HTTPStatusCode())
	render.JSON(w, r, messageResponse{Message: err.Message})
}

// resolveError maps a Resolve failure onto the error written to the client.
func resolveError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, ErrNoToken):
		return apperrors.New(apperrors.ErrCodeNoToken, "No auth token")
	case errors.Is(err, ErrInvalidToken):
		return apperrors.Wrap(err, apperrors.ErrCodeTokenInvalid, "Invalid token")
	case errors.Is(err, ErrUserNotFound):
		return apperrors.Wrap(err, apperrors.ErrCodeUserNotFound, "User not found")
	default:
		return apperrors.Internal(err)
	}
}

// Middleware rejects unresolved requests with 401 and otherwise passes the
// AuthContext on to next.
func (s *SessionResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := s.Resolve(r)
		if err != nil {
			appErr := resolveError(err)
			switch appErr.Code {
			case apperrors.ErrCodeNoToken:
				slog.Debug("Unauthenticated request to protected resource", "path", r.URL.Path)
			case apperrors.ErrCodeUserNotFound:
				slog.Warn("Token subject no longer exists", "path", r.URL.Path)
			case apperrors.ErrCodeInternal:
				slog.Error("Failed to resolve session", "error", err)
			}
			writeError(w, r, appErr)
			return
		}

		slog.Debug("authenticated user", "auth", authCtx)
		ctx := context.WithValue(r.Context(), AuthContextKey, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext returns the AuthContext set by Middleware.
func GetAuthContext(r *http.Request) (*AuthContext, bool) {
	authCtx, ok := r.Context().Value(AuthContextKey).(*AuthContext)
	return authCtx, ok && authCtx != nil
}

// RequireAdmin must run after Middleware. Non-admin identities get 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := GetAuthContext(r)
		if !ok {
			writeError(w, r, resolveError(ErrNoToken))
			return
		}
		if !authCtx.User.IsAdmin {
			slog.Warn("User lacks admin flag", "userId", authCtx.UserID)
			writeError(w, r, apperrors.New(apperrors.ErrCodeForbidden, "Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
