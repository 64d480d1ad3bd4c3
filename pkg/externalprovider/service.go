package externalprovider

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/turbootoys/idm/pkg/tokengenerator"
	"github.com/turbootoys/idm/pkg/user"
	"golang.org/x/oauth2"
)

const DefaultStateValidity = 10 * time.Minute

var (
	ErrInvalidState  = errors.New("invalid oauth state")
	ErrMissingCode   = errors.New("missing authorization code")
	ErrProviderError = errors.New("identity provider request failed")
)

// StateSigner issues and verifies the signed state parameter
type StateSigner interface {
	Issue(sc tokengenerator.SubjectClaims, validity time.Duration) (tokengenerator.TokenValue, error)
	Verify(token string) (jwt.MapClaims, error)
}

// Provisioner maps a verified Google profile to a local identity
type Provisioner interface {
	FindOrProvisionGoogle(ctx context.Context, p user.FederatedProfile) (user.Identity, error)
}

// GoogleService runs the authorization code flow against Google. The state
// parameter is a short-lived signed token carrying the hash of a nonce that
// the caller keeps in the browser, so nothing is stored server side between
// the redirect and the callback.
type GoogleService struct {
	config        GoogleConfig
	oauth         *oauth2.Config
	states        StateSigner
	directory     Provisioner
	stateValidity time.Duration
	httpClient    *http.Client
}

// Option is a function that configures a GoogleService
type Option func(*GoogleService)

// WithStateExpiration sets how long a login redirect stays valid
func WithStateExpiration(duration time.Duration) Option {
	return func(s *GoogleService) {
		s.stateValidity = duration
	}
}

// WithHTTPClient sets the HTTP client used for token and user info calls
func WithHTTPClient(client *http.Client) Option {
	return func(s *GoogleService) {
		s.httpClient = client
	}
}

func NewGoogleService(config GoogleConfig, states StateSigner, directory Provisioner, opts ...Option) (*GoogleService, error) {
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}
	s := &GoogleService{
		config:        config,
		oauth:         config.oauth2Config(),
		states:        states,
		directory:     directory,
		stateValidity: DefaultStateValidity,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AuthCodeURL returns the provider URL the browser is redirected to and the
// nonce the state is bound to. The caller must hand the nonce back to
// HandleCallback from the same browser.
func (s *GoogleService) AuthCodeURL() (authURL, nonce string, err error) {
	nonce = uuid.NewString()
	state, err := s.states.Issue(tokengenerator.SubjectClaims{
		Subject:   hashNonce(nonce),
		LoginType: tokengenerator.LoginTypeOAuthState,
	}, s.stateValidity)
	if err != nil {
		return "", "", fmt.Errorf("issue oauth state: %w", err)
	}
	return s.oauth.AuthCodeURL(state.Token), nonce, nil
}

// StateValidity is how long a login redirect stays valid.
func (s *GoogleService) StateValidity() time.Duration {
	return s.stateValidity
}

// HandleCallback verifies state against nonce, exchanges code and returns the
// local identity for the Google account, provisioning or linking it as needed.
func (s *GoogleService) HandleCallback(ctx context.Context, state, nonce, code string) (user.Identity, error) {
	claims, err := s.states.Verify(state)
	if err != nil {
		return user.Identity{}, ErrInvalidState
	}
	if lt, _ := claims["login_type"].(string); lt != tokengenerator.LoginTypeOAuthState {
		return user.Identity{}, ErrInvalidState
	}
	sub, _ := claims["sub"].(string)
	if nonce == "" || subtle.ConstantTimeCompare([]byte(sub), []byte(hashNonce(nonce))) != 1 {
		return user.Identity{}, ErrInvalidState
	}
	if code == "" {
		return user.Identity{}, ErrMissingCode
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		slog.Warn("Google code exchange failed", "err", err)
		return user.Identity{}, fmt.Errorf("%w: %v", ErrProviderError, err)
	}

	info, err := s.getUserInfo(ctx, token)
	if err != nil {
		return user.Identity{}, err
	}

	profile := user.FederatedProfile{
		ProviderID: info.ExternalID,
		Name:       info.Name,
		Avatar:     info.Picture,
	}
	if info.EmailVerified {
		profile.Email = info.Email
	} else if info.Email != "" {
		slog.Info("Ignoring unverified google email", "external_id", info.ExternalID)
	}

	identity, err := s.directory.FindOrProvisionGoogle(ctx, profile)
	if err != nil {
		return user.Identity{}, err
	}
	return identity, nil
}

func (s *GoogleService) getUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.userInfoURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: user info request: %v", ErrProviderError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read user info: %v", ErrProviderError, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: user info request failed with status %d", ErrProviderError, resp.StatusCode)
	}

	userInfo, err := parseUserInfo(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	slog.Info("User info retrieved", "provider", user.ProviderGoogle, "external_id", userInfo.ExternalID)
	return userInfo, nil
}

func hashNonce(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(sum[:])
}
