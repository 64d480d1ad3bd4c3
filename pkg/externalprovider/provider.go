package externalprovider

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleConfig holds the OAuth client registration for Google login
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// UserInfoURL defaults to GoogleUserInfoURL
	UserInfoURL string
	// Endpoint defaults to Google's authorization and token endpoints
	Endpoint oauth2.Endpoint
}

// ValidateConfig validates the provider configuration
func (c GoogleConfig) ValidateConfig() error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect URL is required")
	}
	return nil
}

func (c GoogleConfig) oauth2Config() *oauth2.Config {
	endpoint := c.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = endpoints.Google
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       []string{"profile", "email"},
	}
}

func (c GoogleConfig) userInfoURL() string {
	if c.UserInfoURL == "" {
		return GoogleUserInfoURL
	}
	return c.UserInfoURL
}

// ExternalUserInfo represents normalized user information from Google
type ExternalUserInfo struct {
	ExternalID    string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

func parseUserInfo(data []byte) (*ExternalUserInfo, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user info: %w", err)
	}

	userInfo := &ExternalUserInfo{
		ExternalID:    getStringValue(raw, "id"),
		Email:         getStringValue(raw, "email"),
		EmailVerified: getBoolValue(raw, "verified_email"),
		Name:          getStringValue(raw, "name"),
		Picture:       getStringValue(raw, "picture"),
	}
	if userInfo.ExternalID == "" {
		// OIDC style payloads carry the id as sub
		userInfo.ExternalID = getStringValue(raw, "sub")
	}
	if userInfo.ExternalID == "" {
		return nil, fmt.Errorf("no external ID found in user info")
	}
	return userInfo, nil
}

func getStringValue(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBoolValue(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
