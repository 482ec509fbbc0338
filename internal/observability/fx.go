package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/smallbiznis/paylens/internal/config"
	"github.com/smallbiznis/paylens/internal/observability/metrics"
	"github.com/smallbiznis/paylens/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// NewRegistry builds the process-wide prometheus registry.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func asRegisterer(reg *prometheus.Registry) prometheus.Registerer { return reg }

func asGatherer(reg *prometheus.Registry) prometheus.Gatherer { return reg }

func provideTracingConfig(cfg config.Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.AppName,
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OTLPEndpoint,
		SamplingRatio:    cfg.SamplingRatio,
	}
}

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

var Module = fx.Module("observability",
	fx.Provide(
		NewRegistry,
		asRegisterer,
		asGatherer,
		metrics.NewHTTPMetrics,
		metrics.NewReconcileMetrics,
		provideTracingConfig,
		tracing.NewProvider,
	),
	fx.Invoke(ensureTracingProvider),
)
