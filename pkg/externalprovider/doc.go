// Package externalprovider implements Google login with the OAuth2
// authorization code flow.
//
// The state parameter is a short-lived token signed by the session token
// issuer with login_type "oauth_state". Its subject is the hash of a random
// nonce that the caller stores in the browser, so a callback is bound to the
// browser that started the login without server-side storage:
//
//	svc, err := externalprovider.NewGoogleService(externalprovider.GoogleConfig{
//		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
//		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
//		RedirectURL:  "http://localhost:4000/auth/google/callback",
//	}, issuer, userService)
//
//	// GET /auth/google
//	authURL, nonce, err := svc.AuthCodeURL()
//	cookies.SetStateCookie(w, nonce, svc.StateValidity())
//	http.Redirect(w, r, authURL, http.StatusFound)
//
//	// GET /auth/google/callback
//	c, err := r.Cookie(tokengenerator.StateCookieName)
//	identity, err := svc.HandleCallback(r.Context(), r.URL.Query().Get("state"), c.Value, r.URL.Query().Get("code"))
//
// HandleCallback matches the Google account by provider id, then by verified
// email (linking it to the existing identity), and otherwise creates a new
// identity with provider "google".
package externalprovider
