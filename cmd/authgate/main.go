// Command authgate serves the authentication API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/internal/config"
	"github.com/MrEthical07/authgate/internal/httpapi"
	"github.com/MrEthical07/authgate/internal/logger"
	"github.com/MrEthical07/authgate/internal/mailer"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/store/postgres"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New("authgate", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("authgate stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	engine, err := buildEngine(cfg, db, rdb, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Ping(ctx); err != nil {
		return err
	}

	var sessionData *jwt.Manager
	if cfg.AuthSecret != "" {
		sessionData, err = jwt.NewManager(jwt.Config{
			Secret: []byte(cfg.AuthSecret),
			Issuer: "authgate",
		})
		if err != nil {
			return fmt.Errorf("session data signer: %w", err)
		}
	} else {
		log.Warn("AUTH_SECRET not set, session data cookie disabled")
	}

	api, err := httpapi.New(httpapi.Options{
		Engine:       engine,
		Logger:       log,
		CORSOrigins:  cfg.CORSOrigins,
		CookieSecure: cfg.CookieSecure,
		TrustProxy:   cfg.TrustProxyHeaders,
		SessionData:  sessionData,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("authgate listening", "addr", cfg.Addr())
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("authgate stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func buildEngine(cfg config.Config, db *sql.DB, rdb redis.UniversalClient, log *slog.Logger) (*authgate.Engine, error) {
	engineCfg := authgate.DefaultConfig()
	engineCfg.OTP.Backend = authgate.OTPBackend(cfg.OTPBackend)

	mail, err := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		Secure:   cfg.SMTP.Secure,
		From:     cfg.SMTP.From,
		Validity: engineCfg.OTP.TTL,
	}, log)
	if err != nil {
		return nil, err
	}

	store := postgres.New(db)
	builder := authgate.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithNotificationSender(mail).
		WithLogger(log)
	if engineCfg.OTP.Backend == authgate.OTPBackendDatabase {
		builder = builder.WithChallengeStore(store)
	}
	return builder.Build()
}
