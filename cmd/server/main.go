package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/videoplaying/auth-service/internal/app"
	"github.com/videoplaying/auth-service/internal/config"
	"github.com/videoplaying/auth-service/internal/domain"
	"github.com/videoplaying/auth-service/internal/http/handler"
	"github.com/videoplaying/auth-service/internal/http/middleware"
	"github.com/videoplaying/auth-service/internal/http/router"
	"github.com/videoplaying/auth-service/internal/observability"
	"github.com/videoplaying/auth-service/internal/repository"
	"github.com/videoplaying/auth-service/internal/security"
	"github.com/videoplaying/auth-service/internal/service"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:   "auth-service",
		Short: "Session-backed authentication service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file, existing environment wins")
	root.AddCommand(newServeCommand(), newMigrateCommand(), newCleanupCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := observability.InitRuntime(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			if err := migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			srv := buildServer(cfg, db, logger)
			return app.New(cfg, logger, srv, runtime).Run(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			return migrate(db)
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired sessions and their refresh tokens, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			removed, err := repository.NewSessionRepository(db).CleanupExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("cleanup expired sessions: %w", err)
			}
			slog.Info("expired sessions removed", "count", removed)
			return nil
		},
	}
}

func buildServer(cfg *config.Config, db *gorm.DB, logger *slog.Logger) *http.Server {
	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	ledger := repository.NewRefreshTokenRepository(db)
	codec := security.NewTokenCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	cache := newSessionCache(cfg, logger)

	authSvc := service.NewAuthService(users, sessions, ledger, codec, cache, service.AuthConfig{
		SessionTTL: cfg.SessionTTL,
		BcryptCost: cfg.BcryptCost,
	})
	sessionSvc := service.NewSessionService(sessions, cache)

	cookies := security.CookieOptions{
		Secure:   cfg.CookieSecure,
		Domain:   cfg.CookieDomain,
		SameSite: cfg.CookieSameSite,
	}

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authSvc, cookies, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		UserHandler:      handler.NewUserHandler(sessionSvc),
		IdentityResolver: middleware.NewIdentityResolver(codec, sessions, users, cache),
		CORSOrigins:      cfg.CORSOrigins,
		ReadyCheck: func(r *http.Request) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(r.Context())
		},
		EnableOTelHTTP: cfg.OTELEnabled,
	})

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func newSessionCache(cfg *config.Config, logger *slog.Logger) service.SessionCache {
	if cfg.RedisAddr == "" {
		logger.Info("dead-session cache running in-process")
		return service.NewInMemorySessionCache()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logger.Info("dead-session cache enabled", "addr", cfg.RedisAddr)
	return service.NewRedisSessionCache(client, "dead_sessions")
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// openDatabase selects the driver by URL scheme: postgres in production,
// sqlite for local development.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
	if strings.HasPrefix(cfg.DatabaseURL, "sqlite://") {
		return gorm.Open(sqlite.Open(strings.TrimPrefix(cfg.DatabaseURL, "sqlite://")), gormCfg)
	}
	return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.User{}, &domain.Session{}, &domain.RefreshToken{})
}
