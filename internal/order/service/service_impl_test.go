package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/orderpricing/internal/clock"
	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/internal/order/repository"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	"github.com/smallbiznis/orderpricing/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	repo  domain.Repository
	svc   domain.Service
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Order{}, &domain.Item{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	reconciler := reconcile.NewService(reconcile.Params{
		Pricing: config.PricingConfig{CardFeePct: money.PercentFromInt(3), FallbackCardFeePct: money.PercentFromInt(3)},
		Log:     zap.NewNop(),
	})
	return &fixture{
		db:    db,
		repo:  repo,
		node:  node,
		clock: clk,
		svc:   New(Params{DB: db, Log: zap.NewNop(), Repo: repo, Reconciler: reconciler, Clock: clk}),
	}
}

func (f *fixture) insert(t *testing.T, pricing string, placedAt time.Time) snowflake.ID {
	t.Helper()
	order := &domain.Order{
		ID:         f.node.Generate(),
		CustomerID: "customer-1",
		Status:     domain.StatusPlaced,
		Pricing:    datatypes.JSON(pricing),
		PlacedAt:   placedAt,
		CreatedAt:  placedAt,
		UpdatedAt:  placedAt,
	}
	items := []domain.Item{
		{ID: f.node.Generate(), OrderID: order.ID, SellerID: "s1", Quantity: 2, UnitPriceCents: 1000, BasePriceCents: 800},
		{ID: f.node.Generate(), OrderID: order.ID, SellerID: "s2", Quantity: 1, UnitPriceCents: 2500, BasePriceCents: 2500},
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, order, items))
	return order.ID
}

func TestGetReconcilesEveryShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now(ctx)

	legacy := f.insert(t, `{"subtotal":"45.00","tax":"3.60"}`, at)
	view, err := f.svc.Get(ctx, legacy)
	require.NoError(t, err)
	assert.Equal(t, reconcile.SourceDerivedFallback, view.Totals.Source)
	assert.Equal(t, money.Cents(5006), view.Totals.TotalWithFeeCents)
	assert.Len(t, view.Items, 2)

	decimalShape := f.insert(t, `{"pricing":{"subtotal":"45.00","tax":"3.60","shipping":"19.00","card_fee":"2.03","total":"67.60"}}`, at)
	view, err = f.svc.Get(ctx, decimalShape)
	require.NoError(t, err)
	assert.Equal(t, reconcile.SourceLegacyFields, view.Totals.Source)
	assert.Equal(t, money.Cents(6963), view.Totals.TotalWithFeeCents)
}

func TestGetDegradesOnInconsistentSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.insert(t, `{"pricing_cents":{"subtotal_cents":4500,"tax_cents":360,"shipping_cents":0,"card_fee_cents":146,"total_without_fee_cents":4860,"total_with_card_cents":1}}`, f.clock.Now(ctx))
	view, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, view.Totals.Discrepancy)
	assert.Equal(t, reconcile.SourceDerivedFallback, view.Totals.Source)
	assert.Equal(t, money.Cents(5006), view.Totals.TotalWithFeeCents)
	assert.False(t, view.Totals.Authoritative())
}

func TestGetMissingOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Get(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.clock.Now(ctx)

	var ids []snowflake.ID
	for i := 0; i < 5; i++ {
		ids = append(ids, f.insert(t, `{"subtotal":"45.00"}`, base.Add(time.Duration(i)*time.Hour)))
	}

	first, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, ids[4], first.Orders[0].Order.ID)
	assert.Equal(t, ids[3], first.Orders[1].Order.ID)

	second, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Orders, 2)
	assert.Equal(t, ids[2], second.Orders[0].Order.ID)

	third, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2, PageToken: second.NextPageToken})
	require.NoError(t, err)
	require.Len(t, third.Orders, 1)
	assert.False(t, third.HasMore)
	assert.Equal(t, ids[0], third.Orders[0].Order.ID)

	_, err = f.svc.List(ctx, domain.ListRequest{PageToken: "not-a-token"})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestListFiltersBySeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, `{}`, f.clock.Now(ctx))

	res, err := f.svc.List(ctx, domain.ListRequest{SellerID: "s2"})
	require.NoError(t, err)
	assert.Len(t, res.Orders, 1)

	res, err = f.svc.List(ctx, domain.ListRequest{SellerID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, `{}`, f.clock.Now(ctx))

	f.clock.Advance(48 * time.Hour)
	require.NoError(t, f.svc.MarkShipped(ctx, id))
	require.NoError(t, f.svc.MarkDelivered(ctx, id))
	assert.ErrorIs(t, f.svc.Cancel(ctx, id), domain.ErrInvalidTransition)

	order, err := f.repo.FindByID(ctx, f.db, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, order.Status)
	require.NotNil(t, order.DeliveredAt)
	assert.True(t, order.DeliveredAt.Equal(f.clock.Now(ctx)))
}
