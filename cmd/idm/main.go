package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/turbootoys/idm/pkg/authapi"
	"github.com/turbootoys/idm/pkg/client"
	"github.com/turbootoys/idm/pkg/config"
	"github.com/turbootoys/idm/pkg/externalprovider"
	"github.com/turbootoys/idm/pkg/login"
	"github.com/turbootoys/idm/pkg/notification"
	"github.com/turbootoys/idm/pkg/otp"
	"github.com/turbootoys/idm/pkg/ratelimit"
	"github.com/turbootoys/idm/pkg/sms"
	"github.com/turbootoys/idm/pkg/tokengenerator"
	"github.com/turbootoys/idm/pkg/user"
)

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl, AddSource: true})))
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("Invalid configuration", "err", err)
	}
	setupLogger(cfg.LogLevel)

	sessionTTL, err := cfg.JWT.SessionDuration()
	if err != nil {
		fatal("Invalid SESSION_TTL", "err", err)
	}
	issuer, err := tokengenerator.NewIssuer(cfg.JWT.Secret,
		tokengenerator.WithIssuer(cfg.JWT.Issuer),
		tokengenerator.WithDefaultValidity(sessionTTL),
	)
	if err != nil {
		fatal("Failed to create token issuer", "err", err)
	}

	ctx := context.Background()

	var repo user.Repository = user.NewInMemoryRepository()
	if cfg.Database.Enabled() {
		pool, err := dbutils.NewDbPool(ctx, dbutils.DbConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
		})
		if err != nil {
			fatal("Failed to connect to database", "host", cfg.Database.Host, "err", err)
		}
		defer pool.Close()
		if err := user.EnsureSchema(ctx, pool); err != nil {
			fatal("Failed to prepare user schema", "err", err)
		}
		repo = user.NewPostgresRepository(pool)
		slog.Info("Using postgres user directory", "host", cfg.Database.Host, "database", cfg.Database.Database)
	} else {
		slog.Warn("IDM_PG_HOST not set, identities are kept in memory")
	}

	var store otp.Store = otp.NewInMemoryStore()
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			fatal("Failed to connect to redis", "addr", cfg.Redis.Addr, "err", err)
		}
		store = otp.NewRedisStore(rdb, cfg.Redis.Namespace)
		slog.Info("Using redis OTP store", "addr", cfg.Redis.Addr)
	}

	otpTTL, err := cfg.OTP.Duration()
	if err != nil {
		fatal("Invalid OTP_TTL", "err", err)
	}
	otpManager := otp.NewManager(store, otp.WithTTL(otpTTL))

	var sender sms.Sender
	switch cfg.SMS.Driver {
	case config.SMSDriverLog:
		slog.Warn("SMS_DRIVER=log, OTP codes are written to the log")
		sender = sms.LogSender{}
	default:
		timeout, err := cfg.SMS.TimeoutDuration()
		if err != nil {
			fatal("Invalid FAST2SMS_TIMEOUT", "err", err)
		}
		fast2sms := sms.NewFast2SMSClient(cfg.SMS.APIKey, cfg.SMS.URL, cfg.SMS.SenderID, timeout)
		fast2sms.Route = cfg.SMS.Route
		fast2sms.Language = cfg.SMS.Language
		sender = fast2sms
	}

	var notifier notification.Notifier = notification.LogNotifier{}
	if cfg.Email.Enabled() {
		emailNotifier, err := notification.NewEmailNotifier(notification.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     int(cfg.Email.Port),
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			TLS:      cfg.Email.TLS,
		})
		if err != nil {
			fatal("Failed to create email notifier", "err", err)
		}
		notifier = emailNotifier
	} else {
		slog.Warn("EMAIL_HOST not set, password reset mail is only logged")
	}

	users := user.NewUserService(repo)
	logins := login.NewLoginService(repo, notifier)
	resolver := client.NewSessionResolver(issuer, users)

	var google *externalprovider.GoogleService
	if cfg.Google.Enabled() {
		google, err = externalprovider.NewGoogleService(externalprovider.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.CallbackURL,
		}, issuer, users)
		if err != nil {
			fatal("Failed to configure google login", "err", err)
		}
	} else {
		slog.Info("Google login disabled")
	}

	handlerCfg := authapi.HandlerConfig{
		OTP:         otpManager,
		SMS:         sender,
		Users:       users,
		Logins:      logins,
		Google:      google,
		Issuer:      issuer,
		Cookies:     tokengenerator.NewCookieService(cfg.IsProduction(), sessionTTL),
		Resolver:    resolver,
		FrontendURL: cfg.FrontendURL,
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewMiddleware(ratelimit.Config{
			Capacity:   cfg.RateLimit.Capacity,
			RefillRate: cfg.RateLimit.RefillRate,
			BucketTTL:  time.Hour,
		})
		defer limiter.Close()
		handlerCfg.OTPRateLimit = limiter.Handler
	}
	h := authapi.NewHandler(handlerCfg)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	api := chi.NewRouter()
	api.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	authapi.AuthRoutes(api, h)

	server.R.Get("/health", h.Health)
	server.R.Mount("/auth", api)

	slog.Info("Starting identity service", "env", cfg.Env, "frontend", cfg.FrontendURL, "sms_driver", cfg.SMS.Driver)
	server.Run()
}
