package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/calculojuridico/revisional-go/internal/infra/observability"
	"github.com/calculojuridico/revisional-go/internal/port"
	"github.com/calculojuridico/revisional-go/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc *service.CalculationService, rates port.RateHistoryProvider, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(middleware.Timeout(60 * time.Second))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(rates, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Calculations: quick preview, full report, detailed appendices.
		r.Post("/calculations/preview", previewHandler(svc, logger))
		r.Post("/calculations/full", calculateHandler(svc, logger))
		r.Post("/calculations/appendices", appendicesHandler(svc, logger))

		// Correction/benchmark index lookup.
		r.Get("/indices/{index}", indexRateHandler(rates, logger))
	})

	return r
}

// healthzHandler reports overall health, probing the rate-history provider
// when one is configured.
func healthzHandler(rates port.RateHistoryProvider, logger *zap.Logger) http.HandlerFunc {
	type serviceHealth struct {
		Name      string `json:"name"`
		Status    string `json:"status"`
		LatencyMs int64  `json:"latency_ms"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		services := []serviceHealth{
			{Name: "revisional-api", Status: "healthy"},
		}

		if rates != nil {
			start := time.Now()
			_, err := rates.Rate(r.Context(), "TR", time.Now().UTC().Format("2006-01"))
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Debug("rate-history probe failed", zap.Error(err))
			}
			services = append(services, serviceHealth{
				Name:      "rate-history",
				Status:    status,
				LatencyMs: time.Since(start).Milliseconds(),
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   overall,
			"services": services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
