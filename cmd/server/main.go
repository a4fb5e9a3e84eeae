package main

import (
	"context"
	"flag"
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
	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/config"
	"github.com/otcdesk/desk-engine/internal/desk"
	"github.com/otcdesk/desk-engine/internal/hub"
	"github.com/otcdesk/desk-engine/internal/marketdata"
	"github.com/otcdesk/desk-engine/internal/metrics"
	"github.com/otcdesk/desk-engine/internal/seed"
	"github.com/otcdesk/desk-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("DESK_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg := loadConfig(*configPath)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		slog.Warn("database.url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Demo book ---
	if err := seed.Ensure(context.Background(), st, cfg.MarketData.Instruments); err != nil {
		slog.Error("seeding failed", "err", err)
		os.Exit(1)
	}

	defaultMids := make(map[string]decimal.Decimal, len(cfg.MarketData.Instruments))
	for _, ins := range cfg.MarketData.Instruments {
		defaultMids[ins.Symbol] = ins.DefaultMid
	}

	// --- Broadcast hub and market data feed ---
	h := hub.New()
	generator := marketdata.New(st, h, cfg.MarketData.TickInterval, defaultMids)
	generator.Start(context.Background())

	// --- Desk service ---
	deskSvc := desk.NewService(st, h, cfg.Pricing, defaultMids)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for the dashboard frontend.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"desk-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// Real-time subscriptions, one channel per socket.
	r.Get("/ws/{channel}", h.HandleWS(cfg.Auth.JWTSecret))

	r.Mount("/api/v1", deskSvc.Routes())

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("desk-engine listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: stop taking requests, then stop the feed and
	// wait for its in-flight iteration before releasing the store.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down desk-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	generator.Stop()
	fmt.Println("desk-engine stopped")
}

// loadConfig reads the YAML config when a path is given, otherwise runs on
// defaults with the JWT secret taken from the environment.
func loadConfig(path string) *config.Config {
	if path != "" {
		cfg, err := config.LoadAndValidate(path)
		if err != nil {
			slog.Error("config load failed", "path", path, "err", err)
			os.Exit(1)
		}
		return cfg
	}

	cfg := config.Default()
	cfg.Auth.JWTSecret = os.Getenv("DESK_JWT_SECRET")
	if cfg.Auth.JWTSecret == "" {
		slog.Warn("DESK_JWT_SECRET not set, using development secret")
		cfg.Auth.JWTSecret = "dev-secret"
	}
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Redis.URL = os.Getenv("REDIS_URL")
	if err := cfg.Validate(); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	return cfg
}
