package observability

import (
	"strings"

	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/internal/observability/logger"
	"github.com/smallbiznis/orderpricing/internal/observability/metrics"
	"github.com/smallbiznis/orderpricing/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		loggerConfig,
		logger.New,
		tracingConfig,
		tracing.NewProvider,
		metricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.Payout,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func serviceName(cfg config.Config) string {
	if name := strings.TrimSpace(cfg.AppName); name != "" {
		return name
	}
	return "orderpricing"
}

func loggerConfig(cfg config.Config) logger.Config {
	dev := cfg.IsDevelopment()
	return logger.Config{
		ServiceName:   serviceName(cfg),
		Environment:   cfg.Environment,
		Version:       cfg.AppVersion,
		Level:         cfg.Observability.LogLevel,
		Format:        cfg.Observability.LogFormat,
		StackOnError:  dev,
		DisableSample: dev,
	}
}

func tracingConfig(cfg config.Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.Observability.OtelEnabled,
		ServiceName:      serviceName(cfg),
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.Observability.OtelEndpoint,
		ExporterProtocol: cfg.Observability.OtelProtocol,
		SamplingRatio:    cfg.Observability.SamplingRatio,
	}
}

func metricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.Observability.OtelEnabled,
		ExporterEndpoint: cfg.Observability.OtelEndpoint,
		ExporterProtocol: cfg.Observability.OtelProtocol,
		ServiceName:      serviceName(cfg),
		Environment:      cfg.Environment,
	}
}
