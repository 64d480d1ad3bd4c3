package authapi

import "github.com/go-chi/chi/v5"

// Routes mounts the health check and the /auth routes on r.
func Routes(r chi.Router, h *Handler) {
	r.Get("/health", h.Health)
	r.Route("/auth", func(r chi.Router) {
		AuthRoutes(r, h)
	})
}

// AuthRoutes registers the endpoints served under /auth.
func AuthRoutes(r chi.Router, h *Handler) {
	r.Group(func(r chi.Router) {
		if h.otpRateLimit != nil {
			r.Use(h.otpRateLimit)
		}
		r.Post("/send-otp", h.SendOtp)
		r.Post("/verify-otp", h.VerifyOtp)
	})

	r.Post("/signup", h.Signup)
	r.Post("/signin", h.Signin)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password", h.ResetPassword)
	r.With(h.resolver.Middleware).Get("/me", h.Me)

	r.Get("/google", h.GoogleLogin)
	r.Get("/google/callback", h.GoogleCallback)

	r.Post("/logout", h.Logout)
}

// NewRouter returns a router serving only the auth API.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	Routes(r, h)
	return r
}
