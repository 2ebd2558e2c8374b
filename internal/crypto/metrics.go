package crypto

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"access-key-service/internal/domain"
)

const metricsNamespace = "access_key_service"

const tracerName = "access-key-service/internal/crypto"

// Metrics は暗号バックエンド呼び出しのメトリクスを収集する prometheus.Collector。
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics は新しいMetricsを生成する。
func NewMetrics() *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "crypto",
				Name:      "operations_total",
				Help:      "Number of crypto backend operations by backend, operation and result.",
			}, []string{"backend", "operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "crypto",
				Name:      "operation_duration_seconds",
				Help:      "Latency of crypto backend operations.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			}, []string{"backend", "operation"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.operations.Describe(ch)
	m.duration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.operations.Collect(ch)
	m.duration.Collect(ch)
}

// Instrument はバックエンドをメトリクスとトレースで計装したProviderを返す。
// m が nil の場合はトレースのみを記録する。
func Instrument(p Provider, m *Metrics) Provider {
	return &instrumented{
		Provider: p,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
	}
}

type instrumented struct {
	Provider
	metrics *Metrics
	tracer  trace.Tracer
}

func (i *instrumented) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	ctx, span := i.tracer.Start(ctx, "crypto.Encrypt", trace.WithAttributes(attribute.String("crypto.backend", i.Tag())))
	defer span.End()

	start := time.Now()
	out, err := i.Provider.Encrypt(ctx, plaintext)
	i.observe("encrypt", start, err, span)
	return out, err
}

func (i *instrumented) Decrypt(ctx context.Context, blob []byte) ([]byte, error) {
	ctx, span := i.tracer.Start(ctx, "crypto.Decrypt", trace.WithAttributes(attribute.String("crypto.backend", i.Tag())))
	defer span.End()

	start := time.Now()
	out, err := i.Provider.Decrypt(ctx, blob)
	i.observe("decrypt", start, err, span)
	return out, err
}

// Close は内側のバックエンドが io.Closer であれば閉じる。
func (i *instrumented) Close() error {
	if c, ok := i.Provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (i *instrumented) observe(operation string, start time.Time, err error, span trace.Span) {
	result := resultLabel(err)
	if err != nil {
		span.SetStatus(codes.Error, result)
	}
	if i.metrics == nil {
		return
	}
	i.metrics.operations.WithLabelValues(i.Tag(), operation, result).Inc()
	i.metrics.duration.WithLabelValues(i.Tag(), operation).Observe(time.Since(start).Seconds())
}

// resultLabel はエラーをメトリクスのラベルに変換する。エラー本文は含めない。
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrCryptoUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrCryptoRejected):
		return "rejected"
	case errors.Is(err, domain.ErrCiphertextAuthentication):
		return "authentication_failed"
	case errors.Is(err, domain.ErrMalformedCiphertext):
		return "malformed"
	default:
		return "error"
	}
}
