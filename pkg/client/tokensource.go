package client

import (
	"net/http"
	"strings"

	"github.com/go-chi/jwtauth/v5"
	"github.com/turbootoys/idm/pkg/tokengenerator"
)

// Channel is the transport a session token arrived on
type Channel string

const (
	ChannelHeader Channel = "header"
	ChannelCookie Channel = "cookie"
)

// TokenSource pulls a token from one place in the request. Extract returns
// "" when the source has nothing.
type TokenSource struct {
	Name    string
	Channel Channel
	Extract func(r *http.Request) string
}

// HeaderSource reads `Authorization: Bearer <token>`. The scheme is
// case-insensitive and must be followed by exactly one token.
func HeaderSource() TokenSource {
	return TokenSource{
		Name:    "authorization",
		Channel: ChannelHeader,
		Extract: bearerToken,
	}
}

func bearerToken(r *http.Request) string {
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// CookieSource reads the named cookie.
func CookieSource(name string) TokenSource {
	extract := func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
	if name == "jwt" {
		extract = jwtauth.TokenFromCookie
	}
	return TokenSource{
		Name:    "cookie:" + name,
		Channel: ChannelCookie,
		Extract: extract,
	}
}

// DefaultTokenSources tries the bearer header, then the session cookie, then
// the legacy cookie. A fresh bearer token from a password login therefore
// wins over a stale cookie from an earlier session in the same browser.
func DefaultTokenSources() []TokenSource {
	return []TokenSource{
		HeaderSource(),
		CookieSource(tokengenerator.SessionCookieName),
		CookieSource(tokengenerator.LegacyCookieName),
	}
}

// ExtractToken returns the token from the first source that has one.
func ExtractToken(r *http.Request, sources []TokenSource) (string, Channel, bool) {
	for _, src := range sources {
		if token := src.Extract(r); token != "" {
			return token, src.Channel, true
		}
	}
	return "", "", false
}

// DefaultSubjectClaimAliases lists the claim keys a user id has been issued
// under, in lookup order.
var DefaultSubjectClaimAliases = []string{"sub", "id", "_id", "userId"}

// SubjectFromClaims returns the first non-empty string claim among aliases.
func SubjectFromClaims(claims map[string]interface{}, aliases []string) (string, bool) {
	for _, key := range aliases {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
