package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/api/handlers"
	mw "github.com/Harshitk-cp/tenantops/internal/api/middleware"
	"github.com/Harshitk-cp/tenantops/internal/buildconfig"
	"github.com/Harshitk-cp/tenantops/internal/cloud"
	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/federation"
	"github.com/Harshitk-cp/tenantops/internal/metrics"
	"github.com/Harshitk-cp/tenantops/internal/service"
	"github.com/Harshitk-cp/tenantops/internal/store"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const limiterCleanupInterval = 10 * time.Minute

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the HTTP surface needs.
type Deps struct {
	Tenants *service.TenantService
	Broker  handlers.ConsoleBroker
	Metrics *metrics.Metrics
	DB      Pinger
	Limiter *mw.RateLimiter
}

// App holds the router and the pipeline workers for lifecycle management.
type App struct {
	Router     *chi.Mux
	FeedRunner *service.FeedRunner
	Dispatcher *service.Dispatcher

	limiter *mw.RateLimiter
	stopCh  chan struct{}
}

func NewApp(db *pgxpool.Pool, clients *cloud.Clients, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *App {
	// Stores
	tenantStore := store.NewTenantStore(db)
	changeFeed := store.NewChangeFeed(db)
	eventBus := store.NewEventBus(db, cfg.EventBusName)

	// Pipeline
	classifier := service.NewClassifier(tenantStore, eventBus, cfg, m, logger.Named("classifier"))
	provisioner := service.NewProvisioner(clients.Logs, clients.Buckets, eventBus, cfg, m, logger.Named("provisioner"))
	reconciler := service.NewReconciler(tenantStore, cfg, m, logger.Named("reconciler"))

	feedRunner := service.NewFeedRunner(changeFeed, classifier, cfg, logger.Named("feed"))
	dispatcher := service.NewDispatcher(eventBus, cfg, m, logger.Named("dispatcher"))
	dispatcher.Subscribe("provisioner", provisioner, domain.LifecycleDetailTypes()...)
	dispatcher.Subscribe("reconciler", reconciler, domain.DetailTenantProvisioned)

	// Operator surface
	tenantSvc := service.NewTenantService(tenantStore, eventBus, cfg, logger.Named("tenants"))
	signin := federation.NewSigninClient(cfg.FederationEndpoint, &http.Client{Timeout: cfg.CallTimeout})
	broker := federation.NewBroker(clients.STS, signin, cfg, m, logger.Named("federation"))

	limiter := mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	app := &App{
		FeedRunner: feedRunner,
		Dispatcher: dispatcher,
		limiter:    limiter,
		stopCh:     make(chan struct{}),
	}
	app.Router = NewRouter(cfg, Deps{
		Tenants: tenantSvc,
		Broker:  broker,
		Metrics: m,
		DB:      db,
		Limiter: limiter,
	}, logger)
	return app
}

// Start runs the pipeline workers.
func (app *App) Start() {
	app.limiter.StartCleanup(limiterCleanupInterval, app.stopCh)
	app.FeedRunner.Start()
	app.Dispatcher.Start()
}

// Stop stops the workers. The feed runner stops first so no new events are
// published while the dispatcher drains its current batch.
func (app *App) Stop() {
	app.FeedRunner.Stop()
	app.Dispatcher.Stop()
	close(app.stopCh)
}

func NewRouter(cfg *config.Config, deps Deps, logger *zap.Logger) *chi.Mux {
	tenantHandler := handlers.NewTenantHandler(deps.Tenants, logger)
	tierHandler := handlers.NewTierHandler()
	consoleHandler := handlers.NewConsoleHandler(deps.Tenants, deps.Broker, logger)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics(deps.Metrics))
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)

	// No auth
	r.Get("/health", healthHandler(deps.DB))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	r.Get("/version", versionHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.AdminAuth(cfg.AdminAPIKey))

		r.Get("/tiers", tierHandler.List)
		r.Get("/tiers/{tier}", tierHandler.Get)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", tenantHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tenantHandler.Get)
				r.Patch("/", tenantHandler.Update)
				r.Delete("/", tenantHandler.Delete)
				r.Post("/reprovision", tenantHandler.Reprovision)
				r.With(limiter.Middleware).Post("/console-access", consoleHandler.Issue)
			})
		})
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "database unreachable"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.TenantStore         = (*store.TenantStore)(nil)
	_ domain.ChangeFeed          = (*store.ChangeFeed)(nil)
	_ domain.EventBus            = (*store.EventBus)(nil)
	_ domain.LogRetentionManager = (*cloud.LogGroups)(nil)
	_ domain.BucketManager       = (*cloud.Buckets)(nil)
	_ handlers.ConsoleBroker     = (*federation.Broker)(nil)
	_ federation.RoleAssumer     = (*sts.Client)(nil)
)
