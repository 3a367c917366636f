package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	_ "github.com/ranikadev/baas-bot/docs"
	"github.com/ranikadev/baas-bot/internal/api/v1/handler"
	"github.com/ranikadev/baas-bot/internal/config"
	"github.com/ranikadev/baas-bot/internal/middleware"
	"github.com/ranikadev/baas-bot/internal/scheduler"
	"github.com/ranikadev/baas-bot/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/swaggo/swag"
)

const triggerRoute = "trigger"

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchedulerStatus is the part of the scheduler the health check reports on.
type SchedulerStatus interface {
	State() scheduler.State
	Next() time.Time
}

// Deps are the already-built services the HTTP surface exposes. Billing,
// Scheduler, DB and Registry may be nil.
type Deps struct {
	Users     service.UserService
	Posting   service.PostingService
	Billing   service.BillingService
	Limiter   middleware.RateLimiter
	Registry  *prometheus.Registry
	Scheduler SchedulerStatus
	DB        Pinger
}

type healthResponse struct {
	Status    string     `json:"status"`
	Database  string     `json:"database,omitempty"`
	Scheduler string     `json:"scheduler,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

func New(cfg *config.Config, deps Deps, logger zerolog.Logger) http.Handler {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initialized")

	validate := validator.New(validator.WithRequiredStructEnabled())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	triggerLimit := middleware.RateLimit(
		deps.Limiter,
		triggerRoute,
		cfg.TriggerRateLimit,
		time.Duration(cfg.TriggerRateWindowSec)*time.Second,
		func(r *http.Request) string {
			if id := r.PathValue("id"); id != "" {
				return "user:" + id
			}
			return ""
		},
	)

	userHandler := handler.NewUserHandler(deps.Users, deps.Posting, validate, logger)

	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware, triggerLimit)
	if deps.Billing != nil {
		handler.NewBillingHandler(deps.Billing, logger).RegisterRoutes(apiV1Mux, authMiddleware)
	} else {
		logger.Info().Msg("Billing disabled, Stripe routes not mounted")
	}

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	if deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		doc, err := swag.ReadDoc()
		if err != nil {
			http.Error(w, "swagger doc unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	})

	mux.HandleFunc("GET /{$}", health(deps, logger))

	// Redirect all other root-level requests to /v1/{path}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/swagger/") || r.URL.Path == "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/v1"+r.URL.Path, http.StatusMovedPermanently)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux))
}

func health(deps Deps, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK

		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := deps.DB.Ping(ctx)
			cancel()
			if err != nil {
				logger.Error().Err(err).Msg("Health check: database unreachable")
				resp.Status = "degraded"
				resp.Database = "unreachable"
				status = http.StatusServiceUnavailable
			} else {
				resp.Database = "ok"
			}
		}

		if deps.Scheduler != nil {
			resp.Scheduler = string(deps.Scheduler.State())
			if next := deps.Scheduler.Next(); !next.IsZero() {
				resp.NextRun = &next
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
