package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/marginal/internal/api/handlers"
	mw "github.com/Harshitk-cp/marginal/internal/api/middleware"
	"github.com/Harshitk-cp/marginal/internal/buildconfig"
	"github.com/Harshitk-cp/marginal/internal/config"
	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/Harshitk-cp/marginal/internal/inference"
	"github.com/Harshitk-cp/marginal/internal/service"
	"github.com/Harshitk-cp/marginal/internal/store"
	"github.com/Harshitk-cp/marginal/internal/store/sqlite"
)

// Stores is the persistence the app runs on. Ping backs the health check.
type Stores struct {
	Networks domain.NetworkStore
	Queries  domain.QueryStore
	Ping     func(ctx context.Context) error
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Networks  *service.NetworkService
	Inference *service.InferenceService
	Expirer   *service.ExpirerService
	Registry  *prometheus.Registry
	startTime time.Time
}

func NewApp(stores Stores, logger *zap.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	heuristic, err := inference.ParseHeuristic(config.DefaultHeuristic())
	if err != nil {
		return nil, err
	}

	// Services
	networkSvc, err := service.NewNetworkService(stores.Networks, config.NetworkCacheSize(), config.MaxNetworkBytes(), logger)
	if err != nil {
		return nil, err
	}
	inferenceSvc := service.NewInferenceService(networkSvc, stores.Queries, service.NewMetrics(reg), logger)
	inferenceSvc.SetTimeout(config.QueryTimeout())
	inferenceSvc.SetWorkers(config.InferenceWorkers())
	inferenceSvc.SetDefaultHeuristic(heuristic)

	expirerSvc := service.NewExpirerService(stores.Queries, logger)
	expirerSvc.SetInterval(config.ExpirerInterval())
	expirerSvc.SetRetention(config.QueryRetention())

	// Handlers
	networkHandler := handlers.NewNetworkHandler(networkSvc, config.MaxNetworkBytes())
	queryHandler := handlers.NewQueryHandler(inferenceSvc)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Networks:  networkSvc,
		Inference: inferenceSvc,
		Expirer:   expirerSvc,
		Registry:  reg,
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.NewMetricsCollector(reg).Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health, metrics and version (no auth)
	r.Get("/health", app.healthHandler(stores.Ping))
	r.Get("/version", versionHandler)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Route("/networks", func(r chi.Router) {
			r.Post("/", networkHandler.Create)
			r.Get("/", networkHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", networkHandler.GetByID)
				r.Delete("/", networkHandler.Delete)
				r.Get("/structure", networkHandler.Structure)
				r.Post("/query", queryHandler.Query)
				r.Post("/marginals", queryHandler.Marginals)
				r.Get("/queries", queryHandler.History)
			})
		})
	})

	return app, nil
}

func (app *App) healthHandler(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"uptime_seconds": time.Since(app.startTime).Seconds(),
		})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.NetworkStore = (*store.NetworkStore)(nil)
	_ domain.QueryStore   = (*store.QueryStore)(nil)
	_ domain.NetworkStore = (*sqlite.NetworkStore)(nil)
	_ domain.QueryStore   = (*sqlite.QueryStore)(nil)
)
