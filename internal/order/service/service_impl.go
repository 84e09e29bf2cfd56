package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderpricing/internal/clock"
	"github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	"github.com/smallbiznis/orderpricing/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Reconciler *reconcile.Service
	Clock      clock.Clock
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	reconciler *reconcile.Service
	clock      clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		repo:       p.Repo,
		reconciler: p.Reconciler,
		clock:      p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.View, error) {
	if id == 0 {
		return domain.View{}, domain.ErrInvalidID
	}
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.View{}, err
	}
	if order == nil {
		return domain.View{}, domain.ErrNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, order.ID)
	if err != nil {
		return domain.View{}, err
	}
	return s.view(ctx, *order, items)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	rows, err := s.repo.List(ctx, s.db, domain.ListFilter{
		CustomerID: req.CustomerID,
		SellerID:   req.SellerID,
		Status:     req.Status,
		PlacedFrom: req.PlacedFrom,
		PlacedTo:   req.PlacedTo,
	}, page)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo, rows := pagination.BuildCursorPageInfo(rows, page.Limit(), func(o *domain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        o.ID.String(),
			CreatedAt: o.PlacedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	ids := make([]snowflake.ID, 0, len(rows))
	for _, o := range rows {
		ids = append(ids, o.ID)
	}
	items, err := s.repo.ListItems(ctx, s.db, ids...)
	if err != nil {
		return domain.ListResponse{}, err
	}
	byOrder := make(map[snowflake.ID][]domain.Item, len(rows))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}

	views := make([]domain.View, 0, len(rows))
	for _, o := range rows {
		v, err := s.view(ctx, *o, byOrder[o.ID])
		if err != nil {
			return domain.ListResponse{}, err
		}
		views = append(views, v)
	}
	return domain.ListResponse{PageInfo: pageInfo, Orders: views}, nil
}

func (s *Service) MarkShipped(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, domain.StatusShipped)
}

func (s *Service) MarkDelivered(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, domain.StatusDelivered)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, domain.StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, to domain.Status) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrNotFound
		}
		if !domain.CanTransition(order.Status, to) {
			return domain.ErrInvalidTransition
		}
		return s.repo.UpdateStatus(ctx, tx, id, to, s.clock.Now(ctx).UTC())
	})
}

func (s *Service) view(ctx context.Context, order domain.Order, items []domain.Item) (domain.View, error) {
	totals, err := s.reconciler.ReconcileStored(ctx, order.ID.String(), order.Pricing, domain.ReconcileItems(items))
	if err != nil {
		return domain.View{}, err
	}
	return domain.View{Order: order, Items: items, Totals: totals}, nil
}
