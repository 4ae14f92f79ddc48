package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	promreg "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ncecere/usage_reports/backend/internal/config"
)

const (
	namespace   = "usage_reports"
	serviceName = "usage-reports"
)

// Provider owns the tracer/meter providers and the domain collectors. All
// Record methods are safe on a nil Provider.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *metric.MeterProvider
	promHandler    http.Handler
	shutdownFuncs  []func(context.Context) error

	httpRequestCounter *promreg.CounterVec
	httpRequestLatency *promreg.HistogramVec
	reportsSaved       *promreg.CounterVec
	reportedCost       *promreg.CounterVec
	reportedTokens     *promreg.CounterVec
	notifications      *promreg.CounterVec
	aggregationLatency *promreg.HistogramVec
	exportsSwept       promreg.Counter
}

func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.EnableOTLP && !cfg.EnableMetrics {
		return nil, nil
	}

	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.EnableOTLP {
		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(otlpOptions(cfg.OTLPEndpoint)...))
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		provider.tracerProvider = tp
		provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry := promreg.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		provider.meterProvider = mp
		provider.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		provider.shutdownFuncs = append(provider.shutdownFuncs, mp.Shutdown)

		if err := provider.registerCollectors(registry); err != nil {
			return nil, err
		}
	}

	return provider, nil
}

func otlpOptions(rawEndpoint string) []otlptracegrpc.Option {
	endpoint := strings.TrimSpace(rawEndpoint)
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	opts := []otlptracegrpc.Option{}
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
		opts = append(opts, otlptracegrpc.WithInsecure())
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
	default:
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithEndpoint(endpoint))
}

func (p *Provider) registerCollectors(registry promreg.Registerer) error {
	latencyBuckets := []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10}
	p.httpRequestCounter = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	p.httpRequestLatency = promreg.NewHistogramVec(
		promreg.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   latencyBuckets,
		},
		[]string{"method", "route", "status"},
	)
	p.reportsSaved = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "reports_saved_total",
			Help:      "Reports persisted, by save kind.",
		},
		[]string{"kind"},
	)
	p.reportedCost = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "reported_cost_usd_total",
			Help:      "Sum of the cost carried by saved reports.",
		},
		[]string{"kind"},
	)
	p.reportedTokens = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "reported_tokens_total",
			Help:      "Sum of the tokens carried by saved reports.",
		},
		[]string{"kind"},
	)
	p.notifications = promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Slack and webhook deliveries by outcome.",
		},
		[]string{"channel", "outcome"},
	)
	p.aggregationLatency = promreg.NewHistogramVec(
		promreg.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Time spent loading and aggregating reports.",
			Buckets:   latencyBuckets,
		},
		[]string{"operation"},
	)
	p.exportsSwept = promreg.NewCounter(promreg.CounterOpts{
		Namespace: namespace,
		Name:      "export_files_swept_total",
		Help:      "Expired export files removed by the sweeper.",
	})

	for _, c := range []promreg.Collector{
		p.httpRequestCounter,
		p.httpRequestLatency,
		p.reportsSaved,
		p.reportedCost,
		p.reportedTokens,
		p.notifications,
		p.aggregationLatency,
		p.exportsSwept,
	} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) PrometheusHandler() http.Handler {
	if p == nil || p.promHandler == nil {
		return nil
	}
	return p.promHandler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracerProvider
}

func (p *Provider) RecordHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	if p == nil || p.httpRequestCounter == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	p.httpRequestCounter.WithLabelValues(method, route, statusLabel).Inc()
	p.httpRequestLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

func (p *Provider) RecordReportSaved(kind string, cost float64, tokens int64) {
	if p == nil || p.reportsSaved == nil {
		return
	}
	p.reportsSaved.WithLabelValues(kind).Inc()
	if cost > 0 {
		p.reportedCost.WithLabelValues(kind).Add(cost)
	}
	if tokens > 0 {
		p.reportedTokens.WithLabelValues(kind).Add(float64(tokens))
	}
}

func (p *Provider) RecordNotification(channel string, ok bool) {
	if p == nil || p.notifications == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	p.notifications.WithLabelValues(channel, outcome).Inc()
}

func (p *Provider) RecordAggregation(operation string, duration time.Duration) {
	if p == nil || p.aggregationLatency == nil {
		return
	}
	p.aggregationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (p *Provider) RecordExportsSwept(n int64) {
	if p == nil || p.exportsSwept == nil || n <= 0 {
		return
	}
	p.exportsSwept.Add(float64(n))
}
