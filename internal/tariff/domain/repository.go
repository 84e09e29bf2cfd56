package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/orderpricing/pkg/money"
)

// Repository is the seller/tariff store collaborator.
type Repository interface {
	// GetSellerTariff returns ErrTariffNotFound when the seller has no schedule.
	GetSellerTariff(ctx context.Context, sellerID string) (*SellerTariff, error)
}

// Writer is implemented by stores that accept schedule updates.
type Writer interface {
	UpsertSellerTariff(ctx context.Context, tariff SellerTariff) error
}

// Service looks up a seller's schedule and prices a shipment with it.
type Service interface {
	QuoteShipping(ctx context.Context, req ShippingQuoteRequest) (money.Cents, error)
	GetSellerTariffs(ctx context.Context, sellerIDs []string) (map[string]SellerTariff, error)
}

type ShippingQuoteRequest struct {
	SellerID    string
	Mode        ShippingMode
	Destination Destination
	WeightLbs   decimal.Decimal
}
