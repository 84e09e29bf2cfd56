package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/internal/quote"
	"github.com/smallbiznis/orderpricing/internal/snapshot"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	"github.com/smallbiznis/orderpricing/pkg/money"
)

var (
	ErrEmptyCart           = errors.New("empty_cart")
	ErrInvalidLine         = errors.New("invalid_cart_line")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrShippingUnavailable = errors.New("shipping_unavailable")
	ErrPersistence         = errors.New("checkout_persistence_failed")
)

// CartLine is one product in the cart. Product storage lives outside the
// engine, so the line carries the pricing inputs it was read with.
type CartLine struct {
	ProductID     string
	SellerID      string
	Quantity      int64
	Price         quote.ProductPriceConfig
	UnitWeightLbs decimal.Decimal
}

type Cart struct {
	CustomerID string
	Lines      []CartLine
}

// QuotedLine is a cart line after pricing.
type QuotedLine struct {
	CartLine
	Quote quote.Line
}

// SellerShipment is the shipping charge for one seller's part of the cart.
type SellerShipment struct {
	SellerID  string
	WeightLbs decimal.Decimal
	FeeCents  money.Cents
}

// Quote is a priced cart. Snapshot is exactly what PlaceOrder persists.
type Quote struct {
	Lines     []QuotedLine
	Shipments []SellerShipment
	Snapshot  snapshot.PricingSnapshot
}

type PlaceOrderRequest struct {
	Cart        Cart
	Destination tariffdomain.Destination
	Mode        tariffdomain.ShippingMode
}

type Service interface {
	QuoteCheckoutTotals(ctx context.Context, cart Cart, dest tariffdomain.Destination, mode tariffdomain.ShippingMode) (Quote, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*orderdomain.Order, error)
}

// ShippingError blocks checkout when a seller's tariff cannot price the
// destination. It matches both ErrShippingUnavailable and the tariff cause.
type ShippingError struct {
	SellerID string
	Err      error
}

func (e *ShippingError) Error() string {
	return fmt.Sprintf("%s: seller=%s: %v", ErrShippingUnavailable, e.SellerID, e.Err)
}

func (e *ShippingError) Unwrap() []error { return []error{ErrShippingUnavailable, e.Err} }

// LineError points at the offending cart line.
type LineError struct {
	Index int
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s: line %d: %v", ErrInvalidLine, e.Index, e.Err)
}

func (e *LineError) Unwrap() []error { return []error{ErrInvalidLine, e.Err} }
