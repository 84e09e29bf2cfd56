// Package engine is the in-process entry point for the storefront and admin
// surfaces: checkout quoting, order placement, stored-order reconciliation
// and owner payouts.
package engine

import (
	"context"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/orderpricing/internal/checkout/domain"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	payoutdomain "github.com/smallbiznis/orderpricing/internal/payout/domain"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	"github.com/smallbiznis/orderpricing/internal/snapshot"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Checkout   checkoutdomain.Service
	Orders     orderdomain.Service
	Reconciler *reconcile.Service
	Payouts    payoutdomain.Service
}

type Engine struct {
	checkout   checkoutdomain.Service
	orders     orderdomain.Service
	reconciler *reconcile.Service
	payouts    payoutdomain.Service
}

func New(p Params) *Engine {
	return &Engine{
		checkout:   p.Checkout,
		orders:     p.Orders,
		reconciler: p.Reconciler,
		payouts:    p.Payouts,
	}
}

// QuoteCheckoutTotals prices a cart. The returned snapshot is what
// PlaceOrder would persist for the same inputs.
func (e *Engine) QuoteCheckoutTotals(ctx context.Context, cart checkoutdomain.Cart, dest tariffdomain.Destination, mode tariffdomain.ShippingMode) (snapshot.PricingSnapshot, error) {
	q, err := e.checkout.QuoteCheckoutTotals(ctx, cart, dest, mode)
	if err != nil {
		return snapshot.PricingSnapshot{}, err
	}
	return q.Snapshot, nil
}

func (e *Engine) PlaceOrder(ctx context.Context, req checkoutdomain.PlaceOrderRequest) (*orderdomain.Order, error) {
	return e.checkout.PlaceOrder(ctx, req)
}

// ReconcileOrder resolves an already loaded record in display mode.
func (e *Engine) ReconcileOrder(ctx context.Context, rec reconcile.Record) (reconcile.CanonicalTotals, error) {
	return e.reconciler.ReconcileOrder(ctx, rec)
}

// ReconcileOrderByID loads a stored order and returns it with its totals.
func (e *Engine) ReconcileOrderByID(ctx context.Context, id snowflake.ID) (orderdomain.View, error) {
	return e.orders.Get(ctx, id)
}

func (e *Engine) AggregatePayouts(ctx context.Context, period payoutdomain.Period, filter payoutdomain.Filter) (payoutdomain.Report, error) {
	return e.payouts.Aggregate(ctx, period, filter)
}

func (e *Engine) CloseOwnerBatch(ctx context.Context, req payoutdomain.CloseBatchRequest) (*payoutdomain.Batch, error) {
	return e.payouts.CloseBatch(ctx, req)
}

func (e *Engine) CompensateBatch(ctx context.Context, batchID snowflake.ID, note string) (*payoutdomain.Batch, error) {
	return e.payouts.CompensateBatch(ctx, batchID, note)
}
