package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ohcnetwork/abdm-gateway/internal/config"
	"github.com/ohcnetwork/abdm-gateway/internal/domain/abha"
	"github.com/ohcnetwork/abdm-gateway/internal/domain/consent"
	"github.com/ohcnetwork/abdm-gateway/internal/domain/hip"
	"github.com/ohcnetwork/abdm-gateway/internal/domain/hiu"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/blobstore"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/cache"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/callback"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/db"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/gateway"
	"github.com/ohcnetwork/abdm-gateway/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "abdm-server",
		Short: "ABDM health information exchange gateway",
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
		Short: "Start the exchange API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
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
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Short lived state: session tokens, discovery and linking correlations.
	// Falls back to an in-process store when REDIS_URL is unset.
	store := cache.New(ctx, cfg.RedisURL, logger)
	defer store.Close()

	httpTimeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	// Consent manager gateway client
	broker := gateway.NewTokenBroker(
		cfg.SessionURL(),
		cfg.ClientID,
		cfg.ClientSecret,
		store,
		httpTimeout,
		logger,
	)
	gw := gateway.NewClient(cfg.GatewayURL, cfg.CMID, broker, httpTimeout, logger)

	// Received health information pages
	files := blobstore.NewInMemoryStore()

	// Domain services
	abhaSvc := abha.NewService(abha.NewRepo(pool))
	consentSvc := consent.NewService(consent.NewRepo(pool), files, logger)
	records := hip.NewHTTPRecordSource(cfg.BackendBaseURL, httpTimeout)
	hipSvc := hip.NewService(
		abhaSvc,
		consentSvc,
		gw,
		store,
		records,
		cfg.HIPID,
		cfg.DiscoveryNameSimilarity,
		time.Duration(cfg.CorrelationTTLMinutes)*time.Minute,
		logger,
	)
	hiuSvc := hiu.NewService(
		abhaSvc,
		consentSvc,
		gw,
		files,
		gateway.StaticFacilityDirectory{ID: cfg.HIUID},
		cfg.DataPushURL(),
		logger,
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "64M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Host facing API
	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	hipHandler := hip.NewHandler(hipSvc)
	hiuHandler := hiu.NewHandler(hiuSvc)

	abha.NewHandler(abhaSvc).RegisterRoutes(api)
	hipHandler.RegisterRoutes(api)
	hiuHandler.RegisterRoutes(api)
	blobstore.NewHandler(files).RegisterRoutes(api)

	// Consent manager facing callbacks, verified against the gateway's JWKS.
	callbacks := e.Group("", callback.Auth(cfg.JWKSURL, logger))
	hipHandler.RegisterCallbackRoutes(callbacks)
	hiuHandler.RegisterCallbackRoutes(callbacks)

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}
