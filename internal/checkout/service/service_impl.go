package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/orderpricing/internal/checkout/domain"
	"github.com/smallbiznis/orderpricing/internal/clock"
	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/internal/events"
	obscontext "github.com/smallbiznis/orderpricing/internal/observability/context"
	"github.com/smallbiznis/orderpricing/internal/observability/logger"
	"github.com/smallbiznis/orderpricing/internal/observability/metrics"
	"github.com/smallbiznis/orderpricing/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/internal/quote"
	"github.com/smallbiznis/orderpricing/internal/snapshot"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeOK                  = "ok"
	outcomeInvalidCart         = "invalid_cart"
	outcomeShippingUnavailable = "shipping_unavailable"
	outcomeError               = "error"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Pricing config.PricingConfig
	Tariffs tariffdomain.Service
	Orders  orderdomain.Repository
	Outbox  events.Outbox
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	pricing config.PricingConfig
	tariffs tariffdomain.Service
	orders  orderdomain.Repository
	outbox  events.Outbox
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("checkout.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		pricing: p.Pricing,
		tariffs: p.Tariffs,
		orders:  p.Orders,
		outbox:  p.Outbox,
		metrics: p.Metrics,
	}
}

// QuoteCheckoutTotals prices the cart for dest. Nothing is persisted.
func (s *Service) QuoteCheckoutTotals(ctx context.Context, cart domain.Cart, dest tariffdomain.Destination, mode tariffdomain.ShippingMode) (domain.Quote, error) {
	q, err := s.quote(ctx, cart, dest, mode)
	s.metrics.RecordCheckoutQuote(ctx, outcomeOf(err))
	return q, err
}

// PlaceOrder quotes the cart and writes the order, its lines, its pricing
// snapshot and the order.placed event in one transaction. Any write failure
// fails the checkout; no order exists without its snapshot.
func (s *Service) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (order *orderdomain.Order, err error) {
	ctx, span := tracing.Start(ctx, "checkout.PlaceOrder",
		attribute.String("shipping_mode", string(req.Mode)),
		attribute.String("country", string(req.Destination.Country)),
	)
	defer func() { tracing.End(span, err) }()

	customerID := strings.TrimSpace(req.Cart.CustomerID)
	if customerID == "" {
		return nil, domain.ErrInvalidCustomer
	}

	q, err := s.QuoteCheckoutTotals(ctx, req.Cart, req.Destination, req.Mode)
	if err != nil {
		return nil, err
	}

	pricing, err := snapshot.EncodeMetadata(q.Snapshot)
	if err != nil {
		return nil, err
	}
	dest, err := json.Marshal(req.Destination)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx).UTC()
	order = &orderdomain.Order{
		ID:           s.genID.Generate(),
		CustomerID:   customerID,
		Status:       orderdomain.StatusPlaced,
		ShippingMode: string(req.Mode),
		Destination:  datatypes.JSON(dest),
		Pricing:      datatypes.JSON(pricing),
		PlacedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	items := make([]orderdomain.Item, 0, len(q.Lines))
	for _, line := range q.Lines {
		items = append(items, orderdomain.Item{
			ID:             s.genID.Generate(),
			OrderID:        order.ID,
			SellerID:       line.SellerID,
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.Quote.Unit.SellPriceCents,
			BasePriceCents: line.Price.BasePriceCents,
			TaxCents:       line.Quote.Unit.TaxCents,
			WeightLbs:      line.UnitWeightLbs,
		})
	}

	ctx = obscontext.WithOrderID(ctx, order.ID.String())
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orders.Insert(ctx, tx, order, items); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, events.TopicOrderPlaced, order.ID.String(), orderPlaced{
			OrderID:    order.ID.String(),
			CustomerID: customerID,
			PlacedAt:   now,
			Pricing:    q.Snapshot.Document(),
		})
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Error("failed to persist order", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	logger.WithContext(ctx, s.log).Info("order placed",
		zap.String("customer_id", customerID),
		zap.Int64("total_with_fee_cents", q.Snapshot.TotalWithFeeCents().Int64()),
	)
	return order, nil
}

func (s *Service) quote(ctx context.Context, cart domain.Cart, dest tariffdomain.Destination, mode tariffdomain.ShippingMode) (domain.Quote, error) {
	if len(cart.Lines) == 0 {
		return domain.Quote{}, domain.ErrEmptyCart
	}

	builder := snapshot.NewBuilder()
	lines := make([]domain.QuotedLine, 0, len(cart.Lines))
	weights := map[string]decimal.Decimal{}
	for i, line := range cart.Lines {
		line.SellerID = strings.TrimSpace(line.SellerID)
		if line.SellerID == "" {
			return domain.Quote{}, &domain.LineError{Index: i, Err: errors.New("seller_id is required")}
		}
		if line.UnitWeightLbs.IsNegative() {
			return domain.Quote{}, &domain.LineError{Index: i, Err: tariffdomain.ErrInvalidWeight}
		}
		priced, err := quote.LineTotals(line.Price, line.Quantity)
		if err != nil {
			return domain.Quote{}, &domain.LineError{Index: i, Err: err}
		}
		builder.AddLine(priced.SubtotalCents, priced.TaxCents)
		lines = append(lines, domain.QuotedLine{CartLine: line, Quote: priced})

		weight := line.UnitWeightLbs.Mul(decimal.NewFromInt(line.Quantity))
		weights[line.SellerID] = weights[line.SellerID].Add(weight)
	}

	sellers := make([]string, 0, len(weights))
	for id := range weights {
		sellers = append(sellers, id)
	}
	sort.Strings(sellers)

	shipments := make([]domain.SellerShipment, 0, len(sellers))
	for _, sellerID := range sellers {
		fee, err := s.tariffs.QuoteShipping(ctx, tariffdomain.ShippingQuoteRequest{
			SellerID:    sellerID,
			Mode:        mode,
			Destination: dest,
			WeightLbs:   weights[sellerID],
		})
		if err != nil {
			if tariffdomain.IsShippingUnavailable(err) {
				return domain.Quote{}, &domain.ShippingError{SellerID: sellerID, Err: err}
			}
			return domain.Quote{}, err
		}
		builder.SetSellerShipping(sellerID, fee)
		shipments = append(shipments, domain.SellerShipment{SellerID: sellerID, WeightLbs: weights[sellerID], FeeCents: fee})
	}

	snap, err := builder.Build(s.pricing.CardFeePct)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{Lines: lines, Shipments: shipments, Snapshot: snap}, nil
}

type orderPlaced struct {
	OrderID    string            `json:"order_id"`
	CustomerID string            `json:"customer_id"`
	PlacedAt   time.Time         `json:"placed_at"`
	Pricing    snapshot.Document `json:"pricing_cents"`
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, domain.ErrShippingUnavailable):
		return outcomeShippingUnavailable
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrInvalidLine):
		return outcomeInvalidCart
	default:
		return outcomeError
	}
}
