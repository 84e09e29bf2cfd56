package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/orderpricing/internal/observability/metrics"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	"github.com/smallbiznis/orderpricing/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Repo    tariffdomain.Repository
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	repo    tariffdomain.Repository
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewService(p Params) tariffdomain.Service {
	return &Service{
		repo:    p.Repo,
		log:     p.Log.Named("tariff.service"),
		metrics: p.Metrics,
	}
}

func (s *Service) QuoteShipping(ctx context.Context, req tariffdomain.ShippingQuoteRequest) (money.Cents, error) {
	t, err := s.lookup(ctx, req.SellerID)
	if err != nil {
		s.recordFailure(ctx, err, req)
		return 0, err
	}

	fee, err := Resolve(*t, req.Mode, req.Destination, req.WeightLbs)
	if err != nil {
		s.recordFailure(ctx, err, req)
		return 0, err
	}
	return fee, nil
}

// GetSellerTariffs loads every distinct seller's schedule. The first seller
// without one fails the whole lookup.
func (s *Service) GetSellerTariffs(ctx context.Context, sellerIDs []string) (map[string]tariffdomain.SellerTariff, error) {
	out := make(map[string]tariffdomain.SellerTariff, len(sellerIDs))
	for _, id := range sellerIDs {
		if _, ok := out[id]; ok {
			continue
		}
		t, err := s.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = *t
	}
	return out, nil
}

func (s *Service) lookup(ctx context.Context, sellerID string) (*tariffdomain.SellerTariff, error) {
	t, err := s.repo.GetSellerTariff(ctx, sellerID)
	if err != nil {
		if errors.Is(err, tariffdomain.ErrTariffNotFound) {
			return nil, &tariffdomain.Error{Code: tariffdomain.ErrTariffNotFound, SellerID: sellerID}
		}
		return nil, err
	}
	if t == nil {
		return nil, &tariffdomain.Error{Code: tariffdomain.ErrTariffNotFound, SellerID: sellerID}
	}
	return t, nil
}

func (s *Service) recordFailure(ctx context.Context, err error, req tariffdomain.ShippingQuoteRequest) {
	code := "internal"
	var te *tariffdomain.Error
	if errors.As(err, &te) && te.Code != nil {
		code = te.Code.Error()
	}
	s.metrics.RecordTariffFailure(ctx, code, string(req.Mode))
	s.log.Warn("shipping quote failed",
		zap.String("seller_id", req.SellerID),
		zap.String("mode", string(req.Mode)),
		zap.String("country", string(req.Destination.Country)),
		zap.String("province", req.Destination.Province),
		zap.String("code", code),
		zap.Error(err),
	)
}
