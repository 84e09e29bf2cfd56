package reconcile

import (
	"context"
	"errors"

	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/internal/observability/logger"
	"github.com/smallbiznis/orderpricing/internal/observability/metrics"
	"github.com/smallbiznis/orderpricing/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	reasonInvariant = "invariant_violation"
	reasonMalformed = "malformed_record"
	reasonMissing   = "missing_pricing_data"
)

type Params struct {
	fx.In

	Pricing config.PricingConfig
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Service is the single entry point every order display surface uses.
type Service struct {
	fallbackPct money.Percent
	log         *zap.Logger
	metrics     *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		fallbackPct: p.Pricing.FallbackCardFeePct,
		log:         p.Log.Named("reconcile.service"),
		metrics:     p.Metrics,
	}
}

// Reconcile is the strict form: inconsistent records return an error.
func (s *Service) Reconcile(ctx context.Context, rec Record) (CanonicalTotals, error) {
	out, err := Reconcile(rec, s.fallbackPct)
	if err != nil {
		return CanonicalTotals{}, err
	}
	s.metrics.RecordReconcile(ctx, string(out.Source))
	return out, nil
}

// ReconcileOrder never fails on bad stored data. When the record's own
// pricing is inconsistent or unreadable, the violation is logged and counted
// and totals are re-derived from the line items with Discrepancy set.
// Errors are returned only for arithmetic overflow.
func (s *Service) ReconcileOrder(ctx context.Context, rec Record) (CanonicalTotals, error) {
	out, err := Reconcile(rec, s.fallbackPct)
	if err == nil {
		s.metrics.RecordReconcile(ctx, string(out.Source))
		return out, nil
	}
	if errors.Is(err, money.ErrOverflow) {
		return CanonicalTotals{}, err
	}
	return s.degrade(ctx, rec, err)
}

// ReconcileStored decodes raw metadata and reconciles it in display mode.
func (s *Service) ReconcileStored(ctx context.Context, orderID string, metadata []byte, items []Item) (CanonicalTotals, error) {
	rec, err := Decode(orderID, metadata, items)
	if err != nil {
		return s.degrade(ctx, rec, err)
	}
	return s.ReconcileOrder(ctx, rec)
}

func (s *Service) degrade(ctx context.Context, rec Record, cause error) (CanonicalTotals, error) {
	reason := reasonFor(cause)
	s.metrics.RecordReconcileViolation(ctx, string(rec.Shape), reason)
	logger.WithContext(ctx, s.log).Warn("order pricing discrepancy",
		zap.String("order_id", rec.OrderID),
		zap.String("shape", string(rec.Shape)),
		zap.String("reason", reason),
		zap.Error(cause),
	)

	tax, shipping := partialComponents(rec)
	out, err := derive(rec, tax, shipping, s.fallbackPct)
	if err != nil {
		// The stored tax or shipping are themselves unusable; derive from
		// items alone.
		out, err = derive(rec, 0, 0, s.fallbackPct)
		if err != nil {
			return CanonicalTotals{}, err
		}
	}
	out.Discrepancy = &Discrepancy{Shape: rec.Shape, Reason: reason, Detail: cause.Error()}
	s.metrics.RecordReconcile(ctx, string(out.Source))
	return out, nil
}

// partialComponents pulls tax and shipping from whichever shape the record
// has, ignoring any that fail to parse.
func partialComponents(rec Record) (tax, shipping money.Cents) {
	switch {
	case rec.Cents != nil:
		tax, _ = optionalCents(rec.Cents.TaxCents, "tax_cents", nil)
		shipping, _ = optionalCents(rec.Cents.ShippingCents, "shipping_cents", nil)
	case rec.Decimal != nil:
		if rec.Decimal.Tax.Set {
			tax, _ = rec.Decimal.Tax.currency()
		}
		if rec.Decimal.Shipping.Set {
			shipping, _ = rec.Decimal.Shipping.currency()
		}
	default:
		tax, shipping, _ = legacyComponents(rec.Legacy)
	}
	if tax < 0 {
		tax = 0
	}
	if shipping < 0 {
		shipping = 0
	}
	return tax, shipping
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrInvariantViolation):
		return reasonInvariant
	case errors.Is(err, ErrMissingPricingData):
		return reasonMissing
	default:
		return reasonMalformed
	}
}
