package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zyncure/zyncure/internal/config"
	"github.com/zyncure/zyncure/internal/domain/credential"
	"github.com/zyncure/zyncure/internal/domain/otp"
	"github.com/zyncure/zyncure/internal/domain/profile"
	"github.com/zyncure/zyncure/internal/domain/scheduling"
	"github.com/zyncure/zyncure/internal/domain/sharing"
	"github.com/zyncure/zyncure/internal/platform/auth"
	"github.com/zyncure/zyncure/internal/platform/blobstore"
	"github.com/zyncure/zyncure/internal/platform/db"
	"github.com/zyncure/zyncure/internal/platform/middleware"
	"github.com/zyncure/zyncure/internal/platform/notification"
	"github.com/zyncure/zyncure/internal/platform/validation"
	"github.com/zyncure/zyncure/migrations"
)

const licenseUploadPath = "/api/v1/doctors/me/license"

func main() {
	rootCmd := &cobra.Command{
		Use:   "zyncure-server",
		Short: "ZynCure portal API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// unconfiguredAuth rejects every password check. It stands in for the auth
// service when SUPABASE_URL is not set.
type unconfiguredAuth struct{}

func (unconfiguredAuth) VerifyPassword(context.Context, string, string) (uuid.UUID, error) {
	return uuid.Nil, errors.New("auth service not configured")
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Outbound providers
	var sender notification.EmailSender = notification.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom, cfg.ResendBaseURL)
	if cfg.ResendAPIKey == "" {
		logger.Warn().Msg("RESEND_API_KEY not set, emails are logged instead of sent")
		sender = notification.LogSender{Logger: logger}
	}
	notifier := notification.NewNotifier(sender, notification.NewTemplateEngine(), logger)

	var blobs blobstore.Store = blobstore.NewMemoryStore()
	var passwords otp.PasswordVerifier = unconfiguredAuth{}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		blobs = blobstore.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.LicenseBucket)
		verifier, err := otp.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create auth client")
		}
		passwords = verifier
	} else {
		logger.Warn().Msg("SUPABASE_URL not set, licences are kept in memory and issue-otp is disabled")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "11M", licenseUploadPath))
	e.Use(middleware.RequestTimeout(15*time.Second, licenseUploadPath))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/functions/")
		},
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.Audit(logger))

	// Auth
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware([]byte(cfg.SupabaseJWTSecret))
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.SupabaseJWTSecret),
			JWKSURL:    cfg.SupabaseJWKSURL,
		})
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// API
	apiV1 := e.Group("/api/v1")
	apiCfg := rateLimitCfg
	apiCfg.Scope = "api"
	apiV1.Use(middleware.RateLimit(apiCfg))
	apiV1.Use(authMW)
	apiV1.Use(db.ClaimsMiddleware(pool, ""))

	profiles := profile.NewRepoPG(pool)

	schedSvc := scheduling.NewService(
		scheduling.NewTemplateRepoPG(pool),
		scheduling.NewExceptionRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		profiles,
		scheduling.WithLocation(cfg.Location()),
		scheduling.WithNotifier(notifier),
		scheduling.WithLogger(logger),
	)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)

	sharingSvc := sharing.NewService(
		sharing.NewConnectionRepoPG(pool),
		sharing.NewGrantRepoPG(pool),
		sharing.NewResourceRepoPG(pool),
		profiles,
		db.NewTransactor(pool),
		sharing.WithLogger(logger),
	)
	sharing.NewHandler(sharingSvc).RegisterRoutes(apiV1)

	credentialSvc := credential.NewService(credential.NewRepoPG(pool), blobs, credential.WithLogger(logger))
	credential.NewHandler(credentialSvc).RegisterRoutes(apiV1)

	// Functions
	otpSvc := otp.NewService(otp.NewRepoPG(pool), profiles, passwords, notifier,
		otp.WithTTL(cfg.OTPTTL()),
		otp.WithLogger(logger),
	)
	fnCfg := rateLimitCfg
	fnCfg.Scope = "functions"
	fnCfg.OnLimit = otp.RateLimited
	otp.NewHandler(otpSvc, cfg.CORSOrigins).
		RegisterRoutes(e.Group("/functions/v1"), middleware.RateLimit(fnCfg), authMW)

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
