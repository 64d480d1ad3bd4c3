package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/turbootoys/idm/pkg/errors"
	"github.com/turbootoys/idm/pkg/tokengenerator"
	"github.com/turbootoys/idm/pkg/user"
)

const testSecret = "resolver-secret"

type fixture struct {
	issuer   *tokengenerator.Issuer
	resolver *SessionResolver
	alice    user.Identity
	bob      user.Identity
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	ctx := context.Background()

	issuer, err := tokengenerator.NewIssuer(testSecret)
	require.NoError(t, err)

	repo := user.NewInMemoryRepository()
	alice, err := repo.Create(ctx, user.Identity{Name: "Alice", Email: "alice@example.com", PasswordHash: "h", IsAdmin: true})
	require.NoError(t, err)
	bob, err := repo.Create(ctx, user.Identity{Name: "Bob", Phone: "9876543210"})
	require.NoError(t, err)

	return fixture{
		issuer:   issuer,
		resolver: NewSessionResolver(issuer, user.NewUserService(repo), opts...),
		alice:    alice,
		bob:      bob,
	}
}

func (f fixture) token(t *testing.T, id uuid.UUID) string {
	t.Helper()
	tv, err := f.issuer.Issue(tokengenerator.SubjectClaims{Subject: id.String(), LoginType: tokengenerator.LoginTypePassword}, time.Hour)
	require.NoError(t, err)
	return tv.Token
}

func TestExtractToken(t *testing.T) {
	sources := DefaultTokenSources()

	t.Run("header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "bearer abc")
		token, ch, ok := ExtractToken(r, sources)
		assert.True(t, ok)
		assert.Equal(t, "abc", token)
		assert.Equal(t, ChannelHeader, ch)
	})

	t.Run("primary cookie before legacy", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "token", Value: "legacy"})
		r.AddCookie(&http.Cookie{Name: "jwt", Value: "primary"})
		token, ch, ok := ExtractToken(r, sources)
		assert.True(t, ok)
		assert.Equal(t, "primary", token)
		assert.Equal(t, ChannelCookie, ch)
	})

	t.Run("legacy cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "token", Value: "legacy"})
		token, _, ok := ExtractToken(r, sources)
		assert.True(t, ok)
		assert.Equal(t, "legacy", token)
	})

	t.Run("malformed header is ignored", func(t *testing.T) {
		for _, header := range []string{
			"Basic dXNlcjpwYXNz",
			"Bearer",
			"Bearer ",
			"Bearerxabc",
			"Bearer:abc",
			"Bearer abc def",
		} {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", header)
			_, _, ok := ExtractToken(r, sources)
			assert.False(t, ok, header)
		}
	})

	t.Run("malformed header falls through to cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer_abc")
		r.AddCookie(&http.Cookie{Name: "jwt", Value: "primary"})
		token, ch, ok := ExtractToken(r, sources)
		assert.True(t, ok)
		assert.Equal(t, "primary", token)
		assert.Equal(t, ChannelCookie, ch)
	})

	t.Run("nothing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		_, _, ok := ExtractToken(r, sources)
		assert.False(t, ok)
	})
}

func TestSubjectFromClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   string
		ok     bool
	}{
		{"sub", map[string]interface{}{"sub": "a"}, "a", true},
		{"id", map[string]interface{}{"id": "b"}, "b", true},
		{"_id", map[string]interface{}{"_id": "c"}, "c", true},
		{"userId", map[string]interface{}{"userId": "d"}, "d", true},
		{"order", map[string]interface{}{"userId": "d", "id": "b"}, "b", true},
		{"empty string skipped", map[string]interface{}{"sub": "", "_id": "c"}, "c", true},
		{"non string", map[string]interface{}{"id": 42.0}, "", false},
		{"none", map[string]interface{}{"phone": "9876543210"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SubjectFromClaims(tt.claims, DefaultSubjectClaimAliases)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)

	t.Run("header wins over cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+f.token(t, f.alice.ID))
		r.AddCookie(&http.Cookie{Name: "jwt", Value: f.token(t, f.bob.ID)})

		authCtx, err := f.resolver.Resolve(r)
		require.NoError(t, err)
		assert.Equal(t, f.alice.ID.String(), authCtx.UserID)
		assert.Equal(t, ChannelHeader, authCtx.Channel)
		assert.Equal(t, tokengenerator.LoginTypePassword, authCtx.LoginType)
		assert.Empty(t, authCtx.User.PasswordHash)
		assert.Equal(t, "Alice", authCtx.User.Name)
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "jwt", Value: f.token(t, f.bob.ID)})

		authCtx, err := f.resolver.Resolve(r)
		require.NoError(t, err)
		assert.Equal(t, f.bob.ID.String(), authCtx.UserID)
		assert.Equal(t, ChannelCookie, authCtx.Channel)
	})

	t.Run("legacy id claim", func(t *testing.T) {
		legacy, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"_id": f.bob.ID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "token", Value: legacy})

		authCtx, err := f.resolver.Resolve(r)
		require.NoError(t, err)
		assert.Equal(t, f.bob.ID.String(), authCtx.UserID)
	})

	t.Run("no token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := f.resolver.Resolve(r)
		assert.ErrorIs(t, err, ErrNoToken)
	})

	t.Run("invalid header token is not rescued by cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer garbage")
		r.AddCookie(&http.Cookie{Name: "jwt", Value: f.token(t, f.bob.ID)})

		authCtx, err := f.resolver.Resolve(r)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, authCtx)
	})

	t.Run("expired cookie token", func(t *testing.T) {
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": f.bob.ID.String(),
			"exp": time.Now().Add(-time.Minute).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "jwt", Value: expired})
		authCtx, err := f.resolver.Resolve(r)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, authCtx)
	})

	t.Run("token without subject", func(t *testing.T) {
		noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"phone": "9876543210",
			"exp":   time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+noSub)
		_, err = f.resolver.Resolve(r)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("oauth state token is not a session", func(t *testing.T) {
		tv, err := f.issuer.Issue(tokengenerator.SubjectClaims{
			Subject:   f.alice.ID.String(),
			LoginType: tokengenerator.LoginTypeOAuthState,
		}, time.Minute)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+tv.Token)
		_, err = f.resolver.Resolve(r)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown user", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+f.token(t, uuid.New()))
		_, err := f.resolver.Resolve(r)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestFieldSelection(t *testing.T) {
	f := newFixture(t, WithFieldSelection(user.FieldName))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.token(t, f.alice.ID))
	authCtx, err := f.resolver.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "Alice", authCtx.User.Name)
	assert.Empty(t, authCtx.User.Email)
	assert.False(t, authCtx.User.IsAdmin)
}

type failingDirectory struct{}

func (failingDirectory) Lookup(ctx context.Context, subject string) (user.Identity, error) {
	return user.Identity{}, errors.New("db down")
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)
	protected := f.resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := GetAuthContext(r)
		require.True(t, ok)
		w.Write([]byte(authCtx.UserID))
	}))

	t.Run("authenticated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+f.token(t, f.alice.ID))
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, f.alice.ID.String(), rec.Body.String())
	})

	cases := []struct {
		name    string
		setup   func(r *http.Request)
		message string
	}{
		{"no token", func(r *http.Request) {}, "No auth token"},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "Invalid token"},
		{"missing user", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+f.token(t, uuid.New())) }, "User not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(r)
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, r)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.message, body["message"])
		})
	}

	t.Run("directory failure", func(t *testing.T) {
		resolver := NewSessionResolver(f.issuer, failingDirectory{})
		h := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+f.token(t, f.alice.ID))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	f := newFixture(t)
	h := f.resolver.Middleware(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.token(t, f.alice.ID))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.token(t, f.bob.ID))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Admin access required", body["message"])

	t.Run("without resolver", func(t *testing.T) {
		bare := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))
		rec := httptest.NewRecorder()
		bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "No auth token", body["message"])
	})
}

func TestResolveError(t *testing.T) {
	tests := []struct {
		err  error
		code apperrors.ErrorCode
	}{
		{ErrNoToken, apperrors.ErrCodeNoToken},
		{ErrInvalidToken, apperrors.ErrCodeTokenInvalid},
		{fmt.Errorf("lookup: %w", ErrUserNotFound), apperrors.ErrCodeUserNotFound},
		{errors.New("connection refused"), apperrors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			appErr := resolveError(tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.NotContains(t, appErr.Message, "connection refused")
		})
	}
}
