package authapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/turbootoys/idm/pkg/client"
	apperrors "github.com/turbootoys/idm/pkg/errors"
	"github.com/turbootoys/idm/pkg/externalprovider"
	"github.com/turbootoys/idm/pkg/login"
	"github.com/turbootoys/idm/pkg/otp"
	"github.com/turbootoys/idm/pkg/sms"
	"github.com/turbootoys/idm/pkg/tokengenerator"
	"github.com/turbootoys/idm/pkg/user"
)

// SessionIssuer signs session tokens for authenticated identities
type SessionIssuer interface {
	Issue(sc tokengenerator.SubjectClaims, validity time.Duration) (tokengenerator.TokenValue, error)
}

// DefaultResetMailWorkers bounds concurrent password reset deliveries.
const DefaultResetMailWorkers = 4

// HandlerConfig wires the services behind the auth routes. Google and
// OTPRateLimit are optional.
type HandlerConfig struct {
	OTP          *otp.Manager
	SMS          sms.Sender
	Users        *user.UserService
	Logins       *login.LoginService
	Google       *externalprovider.GoogleService
	Issuer       SessionIssuer
	Cookies      tokengenerator.CookieSetter
	Resolver     *client.SessionResolver
	FrontendURL  string
	OTPRateLimit func(http.Handler) http.Handler
	// ResetMailWorkers defaults to DefaultResetMailWorkers.
	ResetMailWorkers int
}

type Handler struct {
	otp          *otp.Manager
	sms          sms.Sender
	users        *user.UserService
	logins       *login.LoginService
	google       *externalprovider.GoogleService
	issuer       SessionIssuer
	cookies      tokengenerator.CookieSetter
	resolver     *client.SessionResolver
	frontendURL  string
	otpRateLimit func(http.Handler) http.Handler
	resetMail    chan struct{}
}

func NewHandler(cfg HandlerConfig) *Handler {
	workers := cfg.ResetMailWorkers
	if workers <= 0 {
		workers = DefaultResetMailWorkers
	}
	return &Handler{
		otp:          cfg.OTP,
		sms:          cfg.SMS,
		users:        cfg.Users,
		logins:       cfg.Logins,
		google:       cfg.Google,
		issuer:       cfg.Issuer,
		cookies:      cfg.Cookies,
		resolver:     cfg.Resolver,
		frontendURL:  strings.TrimRight(cfg.FrontendURL, "/"),
		otpRateLimit: cfg.OTPRateLimit,
		resetMail:    make(chan struct{}, workers),
	}
}

// decode reads a JSON body. An empty body decodes to the zero value so the
// field checks that follow produce the error message.
func decode(r *http.Request, v interface{}) error {
	err := render.DecodeJSON(r.Body, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeOtp(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, otpResponse{Success: status < http.StatusBadRequest, Message: message})
}

func writeOtpError(w http.ResponseWriter, r *http.Request, err *apperrors.Error) {
	if err.HTTPStatusCode() >= http.StatusInternalServerError {
		slog.Error("OTP request failed", "code", err.Code, "err", err.Err)
	}
	writeOtp(w, r, err.HTTPStatusCode(), err.Message)
}

func writeError(w http.ResponseWriter, r *http.Request, err *apperrors.Error) {
	if err.HTTPStatusCode() >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "code", err.Code, "err", err.Err)
	}
	render.Status(r, err.HTTPStatusCode())
	render.JSON(w, r, messageResponse{Message: err.Message})
}

func (h *Handler) issueSession(identity user.Identity, loginType string) (tokengenerator.TokenValue, error) {
	return h.issuer.Issue(tokengenerator.SubjectClaims{
		Subject:   identity.ID.String(),
		LoginType: loginType,
		Email:     identity.Email,
		Phone:     identity.Phone,
		IsAdmin:   identity.IsAdmin,
	}, 0)
}

// SendOtp handles POST /auth/send-otp
func (h *Handler) SendOtp(w http.ResponseWriter, r *http.Request) {
	var req PhoneRequest
	if err := decode(r, &req); err != nil {
		writeOtpError(w, r, apperrors.InvalidInput("Invalid request body"))
		return
	}

	phone := strings.TrimSpace(req.number())
	if phone == "" {
		writeOtpError(w, r, apperrors.InvalidInput("Phone number is required"))
		return
	}

	code, err := h.otp.RequestCode(r.Context(), phone)
	if errors.Is(err, otp.ErrInvalidPhone) {
		writeOtpError(w, r, apperrors.InvalidInput("Invalid phone number. Must be 10 digits starting with 6-9"))
		return
	}
	if err != nil {
		writeOtpError(w, r, apperrors.Internal(err))
		return
	}

	// The store is not locked while the gateway is called.
	if err := h.sms.Send(r.Context(), phone, sms.OTPMessage(code)); err != nil {
		// the request context may already be cancelled
		if rbErr := h.otp.RecordDispatchFailure(context.WithoutCancel(r.Context()), phone, code); rbErr != nil {
			slog.Error("Failed to roll back OTP", "err", rbErr)
		}
		message, ok := sms.ProviderMessage(err)
		if !ok {
			message = "Failed to send OTP. Please try again."
		}
		writeOtpError(w, r, apperrors.Wrap(err, apperrors.ErrCodeDispatchFailed, message))
		return
	}

	writeOtp(w, r, http.StatusOK, "OTP sent successfully")
}

func otpVerifyError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, otp.ErrOtpNotFound):
		return apperrors.New(apperrors.ErrCodeOtpNotFound, "OTP not found or expired. Please request a new OTP")
	case errors.Is(err, otp.ErrOtpExpired):
		return apperrors.New(apperrors.ErrCodeOtpExpired, "OTP has expired. Please request a new OTP")
	case errors.Is(err, otp.ErrOtpInvalid):
		return apperrors.New(apperrors.ErrCodeOtpInvalid, "Invalid OTP")
	default:
		return apperrors.Internal(err)
	}
}

// VerifyOtp handles POST /auth/verify-otp
func (h *Handler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpRequest
	if err := decode(r, &req); err != nil {
		writeOtpError(w, r, apperrors.InvalidInput("Invalid request body"))
		return
	}

	phone := strings.TrimSpace(req.number())
	if phone == "" || req.Otp == "" {
		writeOtpError(w, r, apperrors.InvalidInput("Phone number and OTP are required"))
		return
	}
	if !otp.ValidCodeFormat(req.Otp) {
		writeOtpError(w, r, apperrors.InvalidInput("Invalid OTP format. Must be 6 digits"))
		return
	}

	if err := h.otp.VerifyCode(r.Context(), phone, req.Otp); err != nil {
		writeOtpError(w, r, otpVerifyError(err))
		return
	}

	identity, err := h.users.FindOrProvisionByPhone(r.Context(), phone)
	if err != nil {
		writeOtpError(w, r, apperrors.Internal(err))
		return
	}
	tv, err := h.issueSession(identity, tokengenerator.LoginTypeOTP)
	if err != nil {
		writeOtpError(w, r, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "Server configuration error"))
		return
	}
	view, err := newUserView(identity)
	if err != nil {
		writeOtpError(w, r, apperrors.Internal(err))
		return
	}

	h.cookies.SetSessionCookie(w, tv)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, otpLoginResponse{
		Success: true,
		Message: "Login successful",
		Token:   tv.Token,
		User:    view,
	})
}

func loginError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, login.ErrWeakPassword):
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "Password must be at least 6 characters")
	case errors.Is(err, login.ErrInvalidInput):
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "Name, a valid email and password are required")
	case errors.Is(err, login.ErrEmailTaken):
		return apperrors.Wrap(err, apperrors.ErrCodeEmailTaken, "Email already registered")
	case errors.Is(err, login.ErrInvalidCredentials):
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "Invalid credentials")
	case errors.Is(err, login.ErrInvalidResetToken):
		return apperrors.Wrap(err, apperrors.ErrCodeResetTokenInvalid, "Invalid or expired reset token")
	default:
		return apperrors.Internal(err)
	}
}

// Signup handles POST /auth/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, apperrors.InvalidInput("Invalid request body"))
		return
	}

	identity, err := h.logins.Signup(r.Context(), login.SignupParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, loginError(err))
		return
	}

	tv, err := h.issueSession(identity, tokengenerator.LoginTypePassword)
	if err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "Server configuration error"))
		return
	}
	view, err := newUserView(identity)
	if err != nil {
		writeError(w, r, apperrors.Internal(err))
		return
	}

	h.cookies.SetSessionCookie(w, tv)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sessionResponse{Token: tv.Token, User: view})
}

// Signin handles POST /auth/signin. The token is returned in the body only;
// clients send it back as a bearer header.
func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, apperrors.InvalidInput("Invalid request body"))
		return
	}

	identity, err := h.logins.Signin(r.Context(), req.Email, req.Password)
	if errors.Is(err, login.ErrInvalidInput) {
		writeError(w, r, apperrors.InvalidInput("Email and password are required"))
		return
	}
	if err != nil {
		writeError(w, r, loginError(err))
		return
	}

	tv, err := h.issueSession(identity, tokengenerator.LoginTypePassword)
	if err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "Server configuration error"))
		return
	}
	view, err := newUserView(identity)
	if err != nil {
		writeError(w, r, apperrors.Internal(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, sessionResponse{Token: tv.Token, User: view})
}

// ForgotPassword handles POST /auth/forgot-password. The response does not
// depend on whether the address is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, apperrors.InvalidInput("Invalid request body"))
		return
	}

	// mail delivery happens off the request so response time does not
	// reveal whether the address exists
	select {
	case h.resetMail <- struct{}{}:
		go func(ctx context.Context) {
			defer func() { <-h.resetMail }()
			h.logins.ForgotPassword(ctx, req.Email, h.frontendURL)
		}(context.WithoutCancel(r.Context()))
	default:
		slog.Warn("Password reset mail queue full, request dropped")
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, messageResponse{Message: "If that email is registered, a reset link has been sent"})
}

// ResetPassword handles POST /auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.logins.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, loginError(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, messageResponse{Message: "Password has been reset"})
}

// Me handles GET /auth/me. It runs behind the session resolver.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := client.GetAuthContext(r)
	if !ok {
		writeError(w, r, apperrors.New(apperrors.ErrCodeNoToken, "No auth token"))
		return
	}

	identity, err := h.users.Lookup(r.Context(), authCtx.UserID)
	if errors.Is(err, user.ErrUserNotFound) {
		writeError(w, r, apperrors.New(apperrors.ErrCodeNotFound, "User not found"))
		return
	}
	if err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to load profile"))
		return
	}

	view, err := newUserView(identity)
	if err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to load profile"))
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, meResponse{User: view})
}

func (h *Handler) redirectFailure(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.frontendURL+"/auth/failure", http.StatusFound)
}

// GoogleLogin handles GET /auth/google
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		slog.Warn("Google login requested but not configured")
		h.redirectFailure(w, r)
		return
	}

	authURL, nonce, err := h.google.AuthCodeURL()
	if err != nil {
		slog.Error("Failed to build google auth url", "err", err)
		h.redirectFailure(w, r)
		return
	}
	h.cookies.SetStateCookie(w, nonce, h.google.StateValidity())
	http.Redirect(w, r, authURL, http.StatusFound)
}

// GoogleCallback handles GET /auth/google/callback. Every outcome is a
// redirect to the frontend.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		h.redirectFailure(w, r)
		return
	}

	// a nonce is good for one callback whatever the outcome
	var nonce string
	if c, err := r.Cookie(tokengenerator.StateCookieName); err == nil {
		nonce = c.Value
		h.cookies.ClearStateCookie(w)
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		slog.Info("Google login cancelled", "error", providerErr)
		h.redirectFailure(w, r)
		return
	}
	if nonce == "" {
		slog.Warn("Google callback without login nonce cookie")
		h.redirectFailure(w, r)
		return
	}

	identity, err := h.google.HandleCallback(r.Context(), q.Get("state"), nonce, q.Get("code"))
	if err != nil {
		slog.Warn("Google login failed", "err", err)
		h.redirectFailure(w, r)
		return
	}

	tv, err := h.issueSession(identity, tokengenerator.LoginTypeGoogle)
	if err != nil {
		slog.Error("Failed to issue session for google login", "user_id", identity.ID, "err", err)
		h.redirectFailure(w, r)
		return
	}

	h.cookies.SetSessionCookie(w, tv)
	http.Redirect(w, r, h.frontendURL+"/auth/success", http.StatusFound)
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearSessionCookies(w)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, messageResponse{Message: "Logged out"})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{Status: "ok"})
}
