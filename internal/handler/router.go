package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"access-key-service/internal/middleware"
)

// RouterConfig はルーターの構成。
type RouterConfig struct {
	// Metrics が nil の場合はHTTPメトリクスを収集しない。
	Metrics *middleware.HTTPMetrics
	// Gatherer が nil の場合は /metrics を公開しない。
	Gatherer prometheus.Gatherer
	// ServiceName はotelhttpのスパン名の既定値。
	ServiceName string
}

// NewRouter はルーターを生成する。
func NewRouter(h *AccessKeyHandler, health *HealthHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RouteTag)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Handler)
	}

	r.Get("/healthz", health.Healthz)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// ルート定義
	r.Route("/v1/access-keys", func(r chi.Router) {
		r.Post("/", h.CreateAccessKey)
		r.Get("/", h.ListAccessKeys)
		r.Get("/{access_key_id}", h.GetAccessKey)
		r.Delete("/{access_key_id}", h.RevokeAccessKey)
	})

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "access-key-service"
	}
	return otelhttp.NewHandler(r, serviceName)
}
