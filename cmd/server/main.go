package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/atmx/yield-farm/internal/authority"
	"github.com/atmx/yield-farm/internal/config"
	"github.com/atmx/yield-farm/internal/farm"
	"github.com/atmx/yield-farm/internal/metrics"
	"github.com/atmx/yield-farm/internal/service"
	"github.com/atmx/yield-farm/internal/store"
	"github.com/atmx/yield-farm/internal/token"
)

func main() {
	root := &cobra.Command{
		Use:          "yield-farm",
		Short:        "Staking pool accounting service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServer,
	}

	serveCmd.Flags().String("port", "8080", "HTTP listen port")
	serveCmd.Flags().String("database-url", "", "PostgreSQL URL; in-memory store when empty")
	serveCmd.Flags().String("redis-url", "", "Redis URL for the read-through cache")
	serveCmd.Flags().Duration("cache-ttl", 30*time.Second, "Redis cache TTL")
	serveCmd.Flags().Bool("require-signatures", false, "require X-Signature on mutating requests")
	serveCmd.Flags().String("treasury", "", "fee treasury owner address")
	serveCmd.Flags().String("farm-mint", "", "reward token mint address")
	serveCmd.Flags().Bool("dev-mode", false, "enable POST /api/v1/dev/fund")
	serveCmd.Flags().Duration("shutdown-timeout", 5*time.Second, "graceful shutdown timeout")

	root.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("database-url", "", "PostgreSQL URL")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("database-url is required")
	}

	ctx := cmd.Context()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := store.NewPostgresStore(pool).Migrate(ctx); err != nil {
		return err
	}
	slog.Info("schema applied")
	return nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
		}
	} else {
		slog.Warn("database-url not set, using in-memory store (data will not persist)")
		if cfg.RedisURL != "" {
			slog.Warn("redis-url ignored without database-url")
		}
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Token bank ---
	// Balances live in process memory and reset on restart.
	bank := token.NewMemoryBank()
	bank.CreateMint(cfg.FarmMint, authority.FarmMintAuthority())

	// --- Caller verification ---
	var verifier authority.Verifier = authority.TrustingVerifier{}
	if cfg.RequireSignatures {
		verifier = authority.SignatureVerifier{}
	} else {
		slog.Warn("signatures not required, X-Caller is trusted as-is")
	}

	// --- WebSocket hub ---
	wsHub := service.NewWSHub()
	go wsHub.Run()
	defer wsHub.Close()

	// --- Pool service ---
	svc := service.NewService(st, bank, farm.NewEngine(cfg.Treasury, cfg.FarmMint), verifier, wsHub)
	if cfg.DevMode {
		svc.EnableDevMode()
		slog.Warn("dev mode enabled, POST /api/v1/dev/fund is open")
	}
	if err := svc.RefreshGauges(ctx); err != nil {
		slog.Warn("failed to seed pool gauges", "err", err)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Caller, X-Signature")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"yield-farm"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for pool events.
		r.Get("/ws", wsHub.HandleWS)
		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("yield-farm listening",
			"port", cfg.Port,
			"treasury", cfg.Treasury.Hex(),
			"farm_mint", cfg.FarmMint.Hex(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down yield-farm...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("yield-farm stopped")
	return nil
}
