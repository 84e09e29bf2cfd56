package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/orderpricing/internal/checkout/domain"
	"github.com/smallbiznis/orderpricing/internal/clock"
	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/internal/events"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	orderrepository "github.com/smallbiznis/orderpricing/internal/order/repository"
	"github.com/smallbiznis/orderpricing/internal/quote"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	"github.com/smallbiznis/orderpricing/internal/snapshot"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	tariffservice "github.com/smallbiznis/orderpricing/internal/tariff/service"
	"github.com/smallbiznis/orderpricing/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeTariffs map[string]tariffdomain.SellerTariff

func (f fakeTariffs) GetSellerTariff(_ context.Context, sellerID string) (*tariffdomain.SellerTariff, error) {
	t, ok := f[sellerID]
	if !ok {
		return nil, &tariffdomain.Error{Code: tariffdomain.ErrTariffNotFound, SellerID: sellerID}
	}
	return &t, nil
}

var matanzasCardenas = tariffdomain.Destination{
	Country:      tariffdomain.CountryCU,
	Province:     "Matanzas",
	Municipality: "Cárdenas",
}

func testTariffs() fakeTariffs {
	seaRate := money.Cents(150)
	return fakeTariffs{
		"seller-1": {
			SellerID: "seller-1",
			Sea: &tariffdomain.TariffBranch{
				Mode: tariffdomain.BranchModeByWeight,
				ByWeight: &tariffdomain.ByWeightConfig{
					RatePerLb: &seaRate,
					Base:      map[tariffdomain.ZoneKey]money.Cents{tariffdomain.ZoneProvinciasMunicipio: 500},
					MinFee:    800,
				},
			},
		},
		"seller-2": {
			SellerID: "seller-2",
			Sea: &tariffdomain.TariffBranch{
				Mode:  tariffdomain.BranchModeFixed,
				Fixed: map[tariffdomain.ZoneKey]money.Cents{tariffdomain.ZoneProvinciasMunicipio: 800},
			},
		},
	}
}

func testCart() domain.Cart {
	return domain.Cart{
		CustomerID: "customer-1",
		Lines: []domain.CartLine{
			{
				ProductID:     "rice",
				SellerID:      "seller-1",
				Quantity:      2,
				Price:         quote.ProductPriceConfig{BasePriceCents: 1000, MarginPct: money.PercentFromInt(20), Taxable: true, TaxPct: money.PercentFromInt(10)},
				UnitWeightLbs: decimal.RequireFromString("1.6"),
			},
			{
				ProductID:     "oil",
				SellerID:      "seller-2",
				Quantity:      1,
				Price:         quote.ProductPriceConfig{BasePriceCents: 2500},
				UnitWeightLbs: decimal.RequireFromString("0.5"),
			},
		},
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orderdomain.Order{}, &orderdomain.Item{}, &events.Event{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	return New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Pricing: config.PricingConfig{CardFeePct: money.PercentFromInt(3), FallbackCardFeePct: money.PercentFromInt(3)},
		Tariffs: tariffservice.NewService(tariffservice.Params{Repo: testTariffs(), Log: zap.NewNop()}),
		Orders:  orderrepository.Provide(),
		Outbox:  events.NewOutbox(node, clk),
	}).(*Service)
}

func TestQuoteCheckoutTotals(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	q, err := svc.QuoteCheckoutTotals(context.Background(), testCart(), matanzasCardenas, tariffdomain.ShippingModeSea)
	require.NoError(t, err)

	s := q.Snapshot
	assert.Equal(t, money.Cents(4900), s.SubtotalCents())
	assert.Equal(t, money.Cents(240), s.TaxCents())
	assert.Equal(t, money.Cents(1900), s.ShippingCents())
	assert.Equal(t, money.Cents(7040), s.TotalWithoutFeeCents())
	assert.Equal(t, money.Cents(211), s.CardFeeCents())
	assert.Equal(t, money.Cents(7251), s.TotalWithFeeCents())

	fee, ok := s.SellerShippingCents("seller-1")
	require.True(t, ok)
	assert.Equal(t, money.Cents(1100), fee)
	fee, ok = s.SellerShippingCents("seller-2")
	require.True(t, ok)
	assert.Equal(t, money.Cents(800), fee)

	require.Len(t, q.Shipments, 2)
	assert.Equal(t, "seller-1", q.Shipments[0].SellerID)
	assert.True(t, q.Shipments[0].WeightLbs.Equal(decimal.RequireFromString("3.2")))
	assert.Equal(t, money.Cents(1200), q.Lines[0].Quote.Unit.SellPriceCents)
}

func TestQuoteBlocksWhenShippingUnavailable(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	habana := tariffdomain.Destination{Country: tariffdomain.CountryCU, Province: "La Habana", Municipality: "Centro Habana"}

	_, err := svc.QuoteCheckoutTotals(context.Background(), testCart(), habana, tariffdomain.ShippingModeSea)
	require.ErrorIs(t, err, domain.ErrShippingUnavailable)
	require.ErrorIs(t, err, tariffdomain.ErrMissingZoneRate)

	var shippingErr *domain.ShippingError
	require.ErrorAs(t, err, &shippingErr)
	assert.Equal(t, "seller-1", shippingErr.SellerID)
}

func TestQuoteRejectsInvalidCarts(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	ctx := context.Background()

	_, err := svc.QuoteCheckoutTotals(ctx, domain.Cart{}, matanzasCardenas, tariffdomain.ShippingModeSea)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	cart := testCart()
	cart.Lines[1].Quantity = 0
	_, err = svc.QuoteCheckoutTotals(ctx, cart, matanzasCardenas, tariffdomain.ShippingModeSea)
	assert.ErrorIs(t, err, domain.ErrInvalidLine)
	assert.ErrorIs(t, err, quote.ErrInvalidQuantity)

	cart = testCart()
	cart.Lines[0].SellerID = "unknown"
	_, err = svc.QuoteCheckoutTotals(ctx, cart, matanzasCardenas, tariffdomain.ShippingModeSea)
	assert.ErrorIs(t, err, tariffdomain.ErrTariffNotFound)
}

func TestPlaceOrderPersistsSnapshotAtomically(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	order, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{Cart: testCart(), Destination: matanzasCardenas, Mode: tariffdomain.ShippingModeSea})
	require.NoError(t, err)

	repo := orderrepository.Provide()
	stored, err := repo.FindByID(ctx, db, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, orderdomain.StatusPlaced, stored.Status)

	items, err := repo.ListItems(ctx, db, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	snap, err := snapshot.Decode(mustPricingCents(t, stored.Pricing))
	require.NoError(t, err)
	assert.Equal(t, money.Cents(7251), snap.TotalWithFeeCents())

	rec, err := stored.Record(items)
	require.NoError(t, err)
	totals, err := reconcile.Reconcile(rec, 0)
	require.NoError(t, err)
	assert.Equal(t, reconcile.SourceSnapshot, totals.Source)
	assert.Equal(t, snap.Totals(), totals.Totals())

	var outbox []events.Event
	require.NoError(t, db.Find(&outbox).Error)
	require.Len(t, outbox, 1)
	assert.Equal(t, events.TopicOrderPlaced, outbox[0].Topic)
	assert.Equal(t, order.ID.String(), outbox[0].Key)
}

func TestPlaceOrderFailsWhenPersistenceFails(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	require.NoError(t, db.Migrator().DropTable(&events.Event{}))

	_, err := svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{Cart: testCart(), Destination: matanzasCardenas, Mode: tariffdomain.ShippingModeSea})
	require.ErrorIs(t, err, domain.ErrPersistence)

	var count int64
	require.NoError(t, db.Model(&orderdomain.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrderRequiresCustomer(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	cart := testCart()
	cart.CustomerID = " "

	_, err := svc.PlaceOrder(context.Background(), domain.PlaceOrderRequest{Cart: cart, Destination: matanzasCardenas, Mode: tariffdomain.ShippingModeSea})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)
}

func mustPricingCents(t *testing.T, metadata []byte) []byte {
	t.Helper()
	var env struct {
		PricingCents json.RawMessage `json:"pricing_cents"`
	}
	require.NoError(t, json.Unmarshal(metadata, &env))
	return env.PricingCents
}
