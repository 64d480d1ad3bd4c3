package config

import (
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sosodev/duration"
)

const (
	SMSDriverFast2SMS = "fast2sms"
	SMSDriverLog      = "log"
)

// Config is the process-wide configuration of the identity service.
type Config struct {
	Env         string `env:"APP_ENV" env-default:"development"`
	BackendURL  string `env:"BACKEND_URL" env-default:"http://localhost:4000"`
	FrontendURL string `env:"FRONTEND_URL" env-default:"http://localhost:5173"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	JWT       JWTConfig
	OTP       OTPConfig
	SMS       SMSConfig
	Google    GoogleConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
}

// JWTConfig holds session token settings. Secret has no default on purpose:
// an empty secret fails validation and the service refuses to start.
type JWTConfig struct {
	Secret     string `env:"JWT_SECRET"`
	Issuer     string `env:"JWT_ISSUER" env-default:"turbootoys-idm"`
	SessionTTL string `env:"SESSION_TTL" env-default:"P7D"`
}

// SessionDuration parses SessionTTL
func (j JWTConfig) SessionDuration() (time.Duration, error) {
	return parseDuration(j.SessionTTL)
}

type OTPConfig struct {
	TTL string `env:"OTP_TTL" env-default:"PT5M"`
}

// Duration parses TTL
func (o OTPConfig) Duration() (time.Duration, error) {
	return parseDuration(o.TTL)
}

// SMSConfig selects and configures the SMS gateway.
type SMSConfig struct {
	Driver   string `env:"SMS_DRIVER" env-default:"fast2sms"`
	APIKey   string `env:"FAST2SMS_API_KEY"`
	URL      string `env:"FAST2SMS_URL" env-default:"https://www.fast2sms.com/dev/bulkV2"`
	SenderID string `env:"FAST2SMS_SENDER_ID" env-default:"TXTIND"`
	Route    string `env:"FAST2SMS_ROUTE" env-default:"v3"`
	Language string `env:"FAST2SMS_LANGUAGE" env-default:"english"`
	Timeout  string `env:"FAST2SMS_TIMEOUT" env-default:"15s"`
}

// TimeoutDuration parses Timeout
func (s SMSConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration(s.Timeout)
}

type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	CallbackURL  string `env:"GOOGLE_CALLBACK_URL" env-default:"http://localhost:4000/auth/google/callback"`
}

// Enabled reports whether Google login is configured
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// DatabaseConfig points at the Postgres user directory. An empty host keeps
// identities in memory.
type DatabaseConfig struct {
	Host     string `env:"IDM_PG_HOST"`
	Port     uint16 `env:"IDM_PG_PORT" env-default:"5432"`
	Database string `env:"IDM_PG_DATABASE" env-default:"idm_db"`
	User     string `env:"IDM_PG_USER" env-default:"idm"`
	Password string `env:"IDM_PG_PASSWORD" env-default:"pwd"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// RedisConfig points at the shared OTP store. An empty address keeps codes
// in process memory.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB" env-default:"0"`
	Namespace string `env:"REDIS_NAMESPACE" env-default:"idm"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// EmailConfig holds SMTP settings used for password reset mail
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST"`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME"`
	Password string `env:"EMAIL_PASSWORD"`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

func (e EmailConfig) Enabled() bool {
	return e.Host != ""
}

// RateLimitConfig controls the optional per-IP limiter on the OTP routes.
// It is off unless explicitly enabled.
type RateLimitConfig struct {
	Enabled    bool    `env:"OTP_RATE_LIMIT_ENABLED" env-default:"false"`
	Capacity   int     `env:"OTP_RATE_LIMIT_CAPACITY" env-default:"5"`
	RefillRate float64 `env:"OTP_RATE_LIMIT_REFILL_RATE" env-default:"0.0833"` // tokens per second
}

// IsProduction reports whether cookies must be issued for a TLS-terminated,
// cross-site deployment.
func (c Config) IsProduction() bool {
	return c.Env == "production" || strings.HasPrefix(c.BackendURL, "https://")
}

// Load reads the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot run without.
func (c Config) Validate() error {
	return Validate(
		func() ValidationErrors {
			return CollectErrors(
				RequireNonEmpty("JWT_SECRET", c.JWT.Secret),
				RequirePositiveDuration("SESSION_TTL", c.JWT.SessionTTL),
				RequirePositiveDuration("OTP_TTL", c.OTP.TTL),
				RequireValidURL("FRONTEND_URL", c.FrontendURL),
			)
		},
		c.validateSMS,
		func() ValidationErrors {
			if !c.Google.Enabled() {
				return nil
			}
			return CollectErrors(RequireValidURL("GOOGLE_CALLBACK_URL", c.Google.CallbackURL))
		},
	)
}

func (c Config) validateSMS() ValidationErrors {
	if err := RequireOneOf("SMS_DRIVER", c.SMS.Driver, []string{SMSDriverFast2SMS, SMSDriverLog}); err != nil {
		return CollectErrors(err)
	}
	if c.SMS.Driver == SMSDriverLog {
		if c.IsProduction() {
			return CollectErrors(&ValidationError{Field: "SMS_DRIVER", Message: "log driver is not allowed in production"})
		}
		return nil
	}
	return CollectErrors(
		RequireNonEmpty("FAST2SMS_API_KEY", c.SMS.APIKey),
		RequireValidURL("FAST2SMS_URL", c.SMS.URL),
		RequirePositiveDuration("FAST2SMS_TIMEOUT", c.SMS.Timeout),
	)
}

// parseDuration tries ISO8601 first ("P7D", "PT5M"), then Go duration syntax.
func parseDuration(s string) (time.Duration, error) {
	isoDuration, err := duration.Parse(s)
	if err == nil {
		return isoDuration.ToTimeDuration(), nil
	}
	return time.ParseDuration(s)
}
