// Package coordinator implements app.Runner for the swap coordinator process.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/api"
	apphttp "github.com/chainsafe/swap-coordinator/pkg/app/http"
	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/auth"
	"github.com/chainsafe/swap-coordinator/pkg/balance"
	"github.com/chainsafe/swap-coordinator/pkg/config"
	swapcoord "github.com/chainsafe/swap-coordinator/pkg/coordinator"
	"github.com/chainsafe/swap-coordinator/pkg/executor"
	"github.com/chainsafe/swap-coordinator/pkg/gate"
	"github.com/chainsafe/swap-coordinator/pkg/notify"
	"github.com/chainsafe/swap-coordinator/pkg/pgutil"
	"github.com/chainsafe/swap-coordinator/pkg/quote"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
	"github.com/chainsafe/swap-coordinator/pkg/swapstore"
	"github.com/chainsafe/swap-coordinator/pkg/wallet"
)

// Server holds configuration for the coordinator process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new coordinator Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the swap engine and the HTTP API.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging, "swap-coordinator")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting swap coordinator",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	wallets, err := wallet.NewBook(cfg, logger)
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}
	defer wallets.Close()

	registry := asset.DefaultRegistry()
	store := swapstore.NewStore(db)
	router := routing.NewClient(cfg.Routing, logger)

	bus := notify.NewBus(logger)
	hub := notify.NewHub(logger)
	defer hub.Close()
	if err := bus.Subscribe(notify.LogSink(logger)); err != nil {
		return fmt.Errorf("subscribe log sink: %w", err)
	}
	if err := bus.Subscribe(hub.Broadcast); err != nil {
		return fmt.Errorf("subscribe notification hub: %w", err)
	}

	coordinator := swapcoord.New(swapcoord.Deps{
		Registry:   registry,
		Store:      store,
		Executor:   executor.New(registry, router, wallets, cfg.Coordinator, logger),
		Chains:     wallets,
		Settlement: router,
		Balances:   balance.NewRefresher(registry, wallets, store, logger),
		Notifier:   bus,
		Gate:       gate.New(),
	}, cfg.Coordinator, logger)
	svc := swapcoord.NewLog(coordinator, logger)

	engine := swapcoord.NewEngine(svc, store, cfg.Coordinator, logger)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start swap engine: %w", err)
	}
	// Stopped explicitly after ServeAndWait for deterministic shutdown order.
	defer engine.Stop()

	handler := s.newRouter(db, api.Deps{
		Quotes:        quote.NewResolver(registry, router, logger),
		Swaps:         svc,
		Store:         store,
		Tracker:       engine,
		Wallets:       wallets,
		Registry:      registry,
		Notifications: hub,
		AcceptTimeout: cfg.Server.AcceptTimeout,
	}, logger)

	err = apphttp.ServeAndWait(ctx, handler, logger, &cfg.Server)

	engine.Stop()
	bus.Wait()

	return err
}

func (s *Server) newRouter(db *bun.DB, deps api.Deps, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	r.Group(func(r chi.Router) {
		// The notification stream is long-lived and is left out of the request timeout.
		r.Use(func(next http.Handler) http.Handler {
			timeout := middleware.Timeout(s.cfg.Server.RequestTimeout)(next)
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/v1/notifications" || s.cfg.Server.RequestTimeout <= 0 {
					next.ServeHTTP(w, r)
					return
				}
				timeout.ServeHTTP(w, r)
			})
		})
		if s.cfg.Auth.Enabled {
			validator := auth.NewJWTValidator(s.cfg.Auth, nil)
			r.Use(auth.Middleware(validator, logger))
			logger.Info("Bearer authentication enabled", zap.String("issuer", s.cfg.Auth.Issuer))
		}
		api.RegisterRoutes(r, deps, logger)
	})

	return r
}
