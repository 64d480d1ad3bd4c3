package tokengenerator

import (
	"net/http"
	"time"
)

const (
	// SessionCookieName is the cookie every login path writes.
	SessionCookieName = "jwt"
	// LegacyCookieName was written by older OTP logins and is still accepted.
	LegacyCookieName = "token"
	// StateCookieName holds the nonce a Google login redirect is bound to.
	StateCookieName = "oauth_nonce"
	// StateCookiePath scopes the nonce cookie to the Google login routes.
	StateCookiePath = "/auth/google"
)

// CookieSetter writes and clears the session cookie and the login nonce
type CookieSetter interface {
	SetSessionCookie(w http.ResponseWriter, tv TokenValue)
	ClearSessionCookies(w http.ResponseWriter)
	SetStateCookie(w http.ResponseWriter, nonce string, maxAge time.Duration)
	ClearStateCookie(w http.ResponseWriter)
}

// CookieService issues HttpOnly session cookies whose Secure and SameSite
// attributes follow the deployment: cross-site over TLS in production, lax
// and plain http locally.
type CookieService struct {
	Path     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

func NewCookieService(production bool, maxAge time.Duration) *CookieService {
	if maxAge <= 0 {
		maxAge = DefaultSessionValidity
	}
	c := &CookieService{
		Path:     "/",
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
	if production {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func (c *CookieService) SetSessionCookie(w http.ResponseWriter, tv TokenValue) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    tv.Token,
		Path:     c.Path,
		MaxAge:   int(c.MaxAge.Seconds()),
		Expires:  tv.ExpiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// ClearSessionCookies expires both cookie names in both attribute variants
// they have ever been issued with, since a browser only drops a cookie when
// the clearing attributes match.
func (c *CookieService) ClearSessionCookies(w http.ResponseWriter) {
	variants := []struct {
		secure   bool
		sameSite http.SameSite
	}{
		{secure: false, sameSite: http.SameSiteLaxMode},
		{secure: true, sameSite: http.SameSiteNoneMode},
	}

	for _, name := range []string{SessionCookieName, LegacyCookieName} {
		for _, v := range variants {
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    "",
				Path:     c.Path,
				MaxAge:   -1,
				Expires:  time.Unix(0, 0),
				HttpOnly: true,
				Secure:   v.secure,
				SameSite: v.sameSite,
			})
		}
	}
}

// SetStateCookie stores the login nonce. It is always SameSite=Lax so the
// browser sends it on the top-level redirect back from Google.
func (c *CookieService) SetStateCookie(w http.ResponseWriter, nonce string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    nonce,
		Path:     StateCookiePath,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *CookieService) ClearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     StateCookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
