package server

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
	"github.com/jackc/pgx/v5/pgxpool"

	"paystub/internal/domain/audit"
	"paystub/internal/domain/auth"
	"paystub/internal/domain/integrity"
	"paystub/internal/domain/jurisdiction"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/paystub"
	"paystub/internal/domain/render"
	"paystub/internal/domain/tax"
	"paystub/internal/domain/ytd"
	"paystub/internal/platform/config"
	"paystub/internal/platform/crypto"
	"paystub/internal/platform/db"
	"paystub/internal/platform/metrics"
	"paystub/internal/transport/http/api"
	audithandler "paystub/internal/transport/http/handlers/audit"
	authhandler "paystub/internal/transport/http/handlers/auth"
	paystubhandler "paystub/internal/transport/http/handlers/paystub"
	"paystub/internal/transport/http/middleware"
)

const (
	tokenTTL        = time.Hour
	shutdownTimeout = 15 * time.Second
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Metrics *metrics.Collector
	Render  *render.Pool
}

// Deps are the collaborators the router is assembled from. Nil audit
// dependencies leave the audit routes unmounted.
type Deps struct {
	Config      config.Config
	Paystubs    *paystub.Service
	Snapshots   ytd.StoreAPI
	Idempotency middleware.IdempotencyKeys
	AuditLog    audit.Recorder
	AuditEvents audithandler.EventLister
	Auth        *auth.Service
	Policy      *auth.Policy
	Metrics     *metrics.Collector
	Ready       func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(nil, d.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(d.Config.Environment == "production"))
	router.Use(middleware.BodyLimit(d.Config.MaxBodyBytes))
	router.Use(middleware.Auth(d.Config.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if d.Ready != nil {
			if err := d.Ready(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		snap := map[string]any{}
		if d.Metrics != nil {
			snap = d.Metrics.Snapshot()
		}
		if d.Paystubs != nil {
			snap["renderPool"] = d.Paystubs.Renderer().Pool().Stats()
		}
		api.Success(w, snap, middleware.GetRequestID(r.Context()))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Config.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(d.Config.RateLimitPerMinute, time.Minute))

		authhandler.NewHandler(d.Auth, d.Policy).RegisterRoutes(r)

		paystubHandler := paystubhandler.NewHandler(d.Paystubs, d.Snapshots, d.Idempotency, d.AuditLog, d.Policy)
		paystubHandler.OwnerPassword = d.Config.DocumentOwnerPassword
		paystubHandler.RegisterRoutes(r)

		if d.AuditEvents != nil {
			audithandler.NewHandler(d.AuditEvents, d.Policy).RegisterRoutes(r)
		}
	})
	return router
}

// NewPaystubs assembles the generate, seal and render pipeline from
// configuration. The caller owns the returned pool.
func NewPaystubs(cfg config.Config, ledger integrity.Ledger, observer render.Observer) (*paystub.Service, *render.Pool, error) {
	catalogue, err := loadCatalogue(cfg.JurisdictionProfiles)
	if err != nil {
		return nil, nil, err
	}
	keys, err := crypto.NewKeyring(cfg.SealSecret, cfg.SealKeyID, cfg.RetiredSealKeyIDs...)
	if err != nil {
		return nil, nil, fmt.Errorf("seal keyring: %w", err)
	}
	pool, err := render.NewPool(render.PDFFactory(render.DefaultLayout()), render.PoolConfig{
		Size:           cfg.RenderPoolSize,
		AcquireTimeout: cfg.RenderAcquireTimeout,
		RenderTimeout:  cfg.RenderTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	opts := []render.Option{render.WithLookupHint(cfg.VerifyBaseURL)}
	if observer != nil {
		opts = append(opts, render.WithObserver(observer))
	}
	if cfg.DocumentOwnerPassword != "" {
		opts = append(opts, render.WithProtector(render.NewProtector(cfg.DocumentOwnerPassword)))
	}
	svc := paystub.NewService(
		payroll.NewService(tax.NewEngine(catalogue)),
		integrity.NewSealer(keys, nil, cfg.IssuerName),
		render.NewRenderer(pool, opts...),
		ledger,
	)
	return svc, pool, nil
}

func loadCatalogue(path string) (*jurisdiction.Catalogue, error) {
	if path == "" {
		return jurisdiction.Default()
	}
	catalogue, err := jurisdiction.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jurisdiction profiles %s: %w", path, err)
	}
	return catalogue, nil
}

// Build connects storage and wires every component for cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	collector := metrics.New()
	svc, renderPool, err := NewPaystubs(cfg, integrity.NewStore(pool), collector)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := renderPool.Warm(1); err != nil {
		slog.Warn("render pool warm-up failed", "err", err)
	}
	policy, err := auth.NewPolicy()
	if err != nil {
		pool.Close()
		_ = renderPool.Close()
		return nil, err
	}
	auditService := audit.New(pool)

	router := NewRouter(Deps{
		Config:      cfg,
		Paystubs:    svc,
		Snapshots:   ytd.NewStore(pool),
		Idempotency: middleware.NewIdempotencyStore(pool),
		AuditLog:    auditService,
		AuditEvents: auditService,
		Auth:        auth.NewService(auth.NewStore(pool), cfg.JWTSecret, tokenTTL),
		Policy:      policy,
		Metrics:     collector,
		Ready:       pool.Ping,
	})
	return &App{Config: cfg, DB: pool, Router: router, Metrics: collector, Render: renderPool}, nil
}

func (a *App) Close() {
	if a.Render != nil {
		_ = a.Render.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := Build(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              app.Config.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("paystub server listening", "addr", app.Config.Addr, "env", app.Config.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
