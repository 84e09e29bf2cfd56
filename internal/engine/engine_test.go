package engine

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/orderpricing/internal/checkout/domain"
	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/internal/events"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	payoutdomain "github.com/smallbiznis/orderpricing/internal/payout/domain"
	"github.com/smallbiznis/orderpricing/internal/quote"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	tariffrepository "github.com/smallbiznis/orderpricing/internal/tariff/repository"
	"github.com/smallbiznis/orderpricing/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orderdomain.Order{},
		&orderdomain.Item{},
		&tariffrepository.SellerTariffRow{},
		&payoutdomain.Batch{},
		&payoutdomain.Claim{},
		&events.Event{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var eng *Engine
	app := fxtest.New(t,
		fx.Supply(
			config.Config{Tariffs: config.TariffSourceConfig{Source: config.TariffSourceDB}},
			config.PricingConfig{CardFeePct: money.PercentFromInt(3), FallbackCardFeePct: money.PercentFromInt(3)},
			db,
			node,
		),
		fx.Provide(zap.NewNop),
		Module,
		fx.Populate(&eng),
	)
	app.RequireStart()
	t.Cleanup(app.RequireStop)
	return eng, db
}

func TestEngineEndToEnd(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, tariffrepository.NewDBStore(db).UpsertSellerTariff(ctx, tariffdomain.SellerTariff{
		SellerID: "seller-1",
		Sea: &tariffdomain.TariffBranch{
			Mode:  tariffdomain.BranchModeFixed,
			Fixed: map[tariffdomain.ZoneKey]money.Cents{tariffdomain.ZoneProvinciasMunicipio: 800},
		},
	}))

	cart := checkoutdomain.Cart{
		CustomerID: "customer-1",
		Lines: []checkoutdomain.CartLine{{
			ProductID:     "coffee",
			SellerID:      "seller-1",
			Quantity:      1,
			Price:         quote.ProductPriceConfig{BasePriceCents: 1000, MarginPct: money.PercentFromInt(20), Taxable: true, TaxPct: money.PercentFromInt(10)},
			UnitWeightLbs: decimal.RequireFromString("2"),
		}},
	}
	dest := tariffdomain.Destination{Country: tariffdomain.CountryCU, Province: "Matanzas", Municipality: "Cárdenas"}

	snap, err := eng.QuoteCheckoutTotals(ctx, cart, dest, tariffdomain.ShippingModeSea)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1200), snap.SubtotalCents())
	assert.Equal(t, money.Cents(120), snap.TaxCents())
	assert.Equal(t, money.Cents(800), snap.ShippingCents())
	assert.Equal(t, money.Cents(64), snap.CardFeeCents())
	assert.Equal(t, money.Cents(2184), snap.TotalWithFeeCents())

	order, err := eng.PlaceOrder(ctx, checkoutdomain.PlaceOrderRequest{Cart: cart, Destination: dest, Mode: tariffdomain.ShippingModeSea})
	require.NoError(t, err)

	view, err := eng.ReconcileOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.SourceSnapshot, view.Totals.Source)
	assert.Equal(t, snap.Totals(), view.Totals.Totals())

	rec, err := order.Record(view.Items)
	require.NoError(t, err)
	totals, err := eng.ReconcileOrder(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(2184), totals.TotalWithFeeCents)

	now := time.Now().UTC()
	period := payoutdomain.Period{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
	report, err := eng.AggregatePayouts(ctx, period, payoutdomain.Filter{OwnerID: "seller-1"})
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, money.Cents(1800), report.Rows[0].AmountToOwnerCents)
	assert.Equal(t, money.Cents(200), report.Rows[0].MarginCents)
	assert.Equal(t, money.Cents(120), report.Rows[0].TaxCents)
	assert.Equal(t, money.Cents(64), report.Rows[0].GatewayFeeCents)

	batch, err := eng.CloseOwnerBatch(ctx, payoutdomain.CloseBatchRequest{OwnerID: "seller-1", Period: period})
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1800), batch.AmountToOwnerCents)

	comp, err := eng.CompensateBatch(ctx, batch.ID, "")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(-1800), comp.AmountToOwnerCents)

	var outbox int64
	require.NoError(t, db.Model(&events.Event{}).Count(&outbox).Error)
	assert.Equal(t, int64(3), outbox)
}
