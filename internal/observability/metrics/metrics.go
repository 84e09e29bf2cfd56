package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes engine-level instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	reconciles          metric.Int64Counter
	reconcileViolations metric.Int64Counter
	tariffFailures      metric.Int64Counter
	checkoutQuotes      metric.Int64Counter
	payoutBatches       metric.Int64Counter
	payoutExcluded      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the engine counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "orderpricing"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.reconciles, "orderpricing_reconcile_total", "Orders reconciled, by source branch."},
		{&m.reconcileViolations, "orderpricing_reconcile_violations_total", "Stored orders whose pricing failed its invariants."},
		{&m.tariffFailures, "orderpricing_tariff_failures_total", "Shipping resolutions that blocked checkout."},
		{&m.checkoutQuotes, "orderpricing_checkout_quotes_total", "Checkout quotes, by outcome."},
		{&m.payoutBatches, "orderpricing_payout_batches_total", "Payout batches written, by kind."},
		{&m.payoutExcluded, "orderpricing_payout_excluded_orders_total", "Orders left out of a payout, by reason."},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordReconcile counts reconciled orders by the branch that produced them.
func (m *Metrics) RecordReconcile(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.reconciles.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconcileViolation counts stored records whose pricing is internally inconsistent.
func (m *Metrics) RecordReconcileViolation(ctx context.Context, shape, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("shape", strings.TrimSpace(shape)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.reconcileViolations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTariffFailure counts shipping resolutions that blocked checkout.
func (m *Metrics) RecordTariffFailure(ctx context.Context, code, mode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("code", strings.TrimSpace(code)),
		attribute.String("mode", strings.TrimSpace(mode)),
	)
	m.tariffFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCheckoutQuote counts checkout quotes by outcome.
func (m *Metrics) RecordCheckoutQuote(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.checkoutQuotes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutBatch counts written payout batches by kind.
func (m *Metrics) RecordPayoutBatch(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.payoutBatches.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutExcluded counts orders left out of a batch and why.
func (m *Metrics) RecordPayoutExcluded(ctx context.Context, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.payoutExcluded.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":  {},
	"shape":   {},
	"reason":  {},
	"code":    {},
	"mode":    {},
	"outcome": {},
	"kind":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Order, seller and customer identifiers never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
