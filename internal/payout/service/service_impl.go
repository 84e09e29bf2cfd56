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
	"github.com/smallbiznis/orderpricing/internal/clock"
	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/internal/events"
	obscontext "github.com/smallbiznis/orderpricing/internal/observability/context"
	"github.com/smallbiznis/orderpricing/internal/observability/logger"
	"github.com/smallbiznis/orderpricing/internal/observability/metrics"
	"github.com/smallbiznis/orderpricing/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/internal/payout/domain"
	"github.com/smallbiznis/orderpricing/internal/payout/statement"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	"github.com/smallbiznis/orderpricing/pkg/db"
	"github.com/smallbiznis/orderpricing/pkg/db/pagination"
	"github.com/smallbiznis/orderpricing/pkg/lock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxCloseAttempts = 3
	defaultLockTTL   = 30 * time.Second
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        config.Config
	Repo          domain.Repository
	Orders        orderdomain.Repository
	Reconciler    *reconcile.Service
	Outbox        events.Outbox
	Locker        lock.Locker            `optional:"true"`
	Metrics       *metrics.Metrics       `optional:"true"`
	PayoutMetrics *metrics.PayoutMetrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	lockTTL       time.Duration
	repo          domain.Repository
	orders        orderdomain.Repository
	reconciler    *reconcile.Service
	outbox        events.Outbox
	locker        lock.Locker
	metrics       *metrics.Metrics
	payoutMetrics *metrics.PayoutMetrics
}

func New(p Params) domain.Service {
	ttl := p.Config.Payout.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payout.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		lockTTL:       ttl,
		repo:          p.Repo,
		orders:        p.Orders,
		reconciler:    p.Reconciler,
		outbox:        p.Outbox,
		locker:        p.Locker,
		metrics:       p.Metrics,
		payoutMetrics: p.PayoutMetrics,
	}
}

// Aggregate reports what each owner is owed for orders placed in period.
// It never writes.
func (s *Service) Aggregate(ctx context.Context, period domain.Period, filter domain.Filter) (report domain.Report, err error) {
	start := time.Now()
	defer func() { s.payoutMetrics.ObserveStage(metrics.PayoutStageAggregate, time.Since(start), err) }()

	if err := period.Validate(); err != nil {
		return domain.Report{}, err
	}
	period = period.UTC()
	filter.OwnerID = strings.TrimSpace(filter.OwnerID)

	orders, err := s.repo.ListOrders(ctx, s.db, domain.OrderQuery{
		Period:        period,
		OwnerID:       filter.OwnerID,
		DeliveredOnly: filter.DeliveredOnly,
	})
	if err != nil {
		return domain.Report{}, err
	}
	col, err := s.collect(ctx, s.db, orders, filter.OwnerID, filter.IncludeAlreadyPaid)
	if err != nil {
		return domain.Report{}, err
	}
	rows, totals, err := summarize(col.shares)
	if err != nil {
		return domain.Report{}, err
	}
	return domain.Report{
		Period:   period,
		Filter:   filter,
		Rows:     rows,
		Totals:   totals,
		Excluded: col.excluded,
	}, nil
}

// CloseBatch is the only operation that marks orders paid to an owner.
// Closing the same (owner, period, delivered_only) again with nothing newly
// eligible returns the existing batch unchanged.
func (s *Service) CloseBatch(ctx context.Context, req domain.CloseBatchRequest) (batch *domain.Batch, err error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	if err := req.Period.Validate(); err != nil {
		return nil, err
	}
	req.Period = req.Period.UTC()

	ctx = obscontext.WithOwnerID(ctx, req.OwnerID)
	ctx, span := tracing.Start(ctx, "payout.CloseBatch",
		attribute.Bool("delivered_only", req.DeliveredOnly),
		attribute.Int("forced_orders", len(req.ForceOrderIDs)),
	)
	start := time.Now()
	defer func() {
		s.payoutMetrics.ObserveStage(metrics.PayoutStageClose, time.Since(start), err)
		tracing.End(span, err)
	}()

	release, err := s.acquire(ctx, "payout:close:"+req.OwnerID)
	if err != nil {
		return nil, err
	}
	defer release()

	var created bool
	for attempt := 1; attempt <= maxCloseAttempts; attempt++ {
		batch, created, err = s.closeOnce(ctx, req)
		if err == nil || !metrics.IsRetryable(err) {
			break
		}
		logger.WithContext(ctx, s.log).Warn("payout close retry", zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, s.log)
	if !created {
		log.Info("payout batch already closed", zap.String("batch_id", batch.ID.String()))
		return batch, nil
	}
	s.metrics.RecordPayoutBatch(ctx, string(domain.KindPayout))
	s.payoutMetrics.AddOrdersClaimed(batch.OrderCount)
	log.Info("payout batch closed",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("order_count", batch.OrderCount),
		zap.Int64("amount_to_owner_cents", batch.AmountToOwnerCents.Int64()),
	)
	return batch, nil
}

func (s *Service) closeOnce(ctx context.Context, req domain.CloseBatchRequest) (*domain.Batch, bool, error) {
	var (
		batch   *domain.Batch
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders, err := s.repo.ListOrders(ctx, tx, domain.OrderQuery{
			Period:        req.Period,
			OwnerID:       req.OwnerID,
			DeliveredOnly: req.DeliveredOnly,
		})
		if err != nil {
			return err
		}
		col, err := s.collect(ctx, tx, orders, req.OwnerID, false)
		if err != nil {
			return err
		}
		if err := checkForced(req, orders, col); err != nil {
			return err
		}
		for reason, n := range col.excludedByReason() {
			s.metrics.RecordPayoutExcluded(ctx, reason, n)
		}

		if len(col.shares) == 0 {
			existing, err := s.repo.FindLatestBatch(ctx, tx, domain.BatchKey{
				OwnerID:       req.OwnerID,
				PeriodFrom:    req.Period.From,
				PeriodTo:      req.Period.To,
				DeliveredOnly: req.DeliveredOnly,
			})
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrNothingToClose
			}
			batch = existing
			return nil
		}

		rows, _, err := summarize(col.shares)
		if err != nil {
			return err
		}
		row := rows[0]
		orderIDs, err := encodeIDs(row.OrderIDs)
		if err != nil {
			return err
		}

		now := s.clock.Now(ctx).UTC()
		batch = &domain.Batch{
			ID:            s.genID.Generate(),
			OwnerID:       req.OwnerID,
			Kind:          domain.KindPayout,
			PeriodFrom:    req.Period.From,
			PeriodTo:      req.Period.To,
			DeliveredOnly: req.DeliveredOnly,
			OrderIDs:      orderIDs,
			OrderCount:    row.OrderCount,
			ItemCount:     row.ItemCount,
			Note:          strings.TrimSpace(req.Note),
			ClosedAt:      now,
		}
		batch.SetAmounts(row.Amounts)
		if err := s.repo.InsertBatch(ctx, tx, batch); err != nil {
			return err
		}

		claims := make([]domain.Claim, 0, len(row.OrderIDs))
		for _, id := range row.OrderIDs {
			claims = append(claims, domain.Claim{
				ID:        s.genID.Generate(),
				BatchID:   batch.ID,
				OwnerID:   req.OwnerID,
				OrderID:   id,
				CreatedAt: now,
			})
		}
		if err := s.repo.InsertClaims(ctx, tx, claims); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: %v", domain.ErrOverlappingBatch, err)
			}
			return err
		}

		if err := s.outbox.Append(ctx, tx, events.TopicPayoutBatchClosed, batch.ID.String(), batchEvent(*batch)); err != nil {
			return err
		}
		created = true
		return nil
	}, db.SerializableTx(s.db))
	if err != nil {
		return nil, false, err
	}
	return batch, created, nil
}

// CompensateBatch reverses a closed payout batch with a new batch carrying
// negated amounts and releases its orders for a future close.
func (s *Service) CompensateBatch(ctx context.Context, batchID snowflake.ID, note string) (comp *domain.Batch, err error) {
	start := time.Now()
	defer func() { s.payoutMetrics.ObserveStage(metrics.PayoutStageCompensate, time.Since(start), err) }()

	original, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	ctx = obscontext.WithOwnerID(ctx, original.OwnerID)

	release, err := s.acquire(ctx, "payout:close:"+original.OwnerID)
	if err != nil {
		return nil, err
	}
	defer release()

	var released int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.repo.FindBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if original == nil {
			return domain.ErrBatchNotFound
		}
		if original.Kind != domain.KindPayout {
			return domain.ErrNotCompensable
		}
		if original.CompensatedByBatchID != nil {
			return domain.ErrAlreadyCompensated
		}

		comp = &domain.Batch{
			ID:                 s.genID.Generate(),
			OwnerID:            original.OwnerID,
			Kind:               domain.KindCompensation,
			PeriodFrom:         original.PeriodFrom,
			PeriodTo:           original.PeriodTo,
			DeliveredOnly:      original.DeliveredOnly,
			OrderIDs:           original.OrderIDs,
			OrderCount:         original.OrderCount,
			ItemCount:          original.ItemCount,
			Note:               strings.TrimSpace(note),
			CompensatesBatchID: &original.ID,
			ClosedAt:           s.clock.Now(ctx).UTC(),
		}
		comp.SetAmounts(original.Amounts().Negate())
		if err := s.repo.InsertBatch(ctx, tx, comp); err != nil {
			return err
		}
		if err := s.repo.MarkCompensated(ctx, tx, original.ID, comp.ID); err != nil {
			return err
		}
		if released, err = s.repo.ReleaseClaims(ctx, tx, original.ID, comp.ID); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, events.TopicPayoutBatchCompensated, comp.ID.String(), batchEvent(*comp))
	}, db.SerializableTx(s.db))
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayoutBatch(ctx, string(domain.KindCompensation))
	logger.WithContext(ctx, s.log).Info("payout batch compensated",
		zap.String("batch_id", batchID.String()),
		zap.String("compensation_id", comp.ID.String()),
		zap.Int64("released_claims", released),
	)
	return comp, nil
}

func (s *Service) GetBatch(ctx context.Context, batchID snowflake.ID) (*domain.Batch, error) {
	if batchID == 0 {
		return nil, domain.ErrBatchNotFound
	}
	batch, err := s.repo.FindBatch(ctx, s.db, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrBatchNotFound
	}
	return batch, nil
}

func (s *Service) ListBatches(ctx context.Context, req domain.ListBatchesRequest) (domain.ListBatchesResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	rows, err := s.repo.ListBatches(ctx, s.db, domain.BatchFilter{
		OwnerID: strings.TrimSpace(req.OwnerID),
		Kind:    req.Kind,
	}, page)
	if err != nil {
		return domain.ListBatchesResponse{}, err
	}
	pageInfo, rows := pagination.BuildCursorPageInfo(rows, page.Limit(), func(b *domain.Batch) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        b.ID.String(),
			CreatedAt: b.ClosedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	batches := make([]domain.Batch, 0, len(rows))
	for _, b := range rows {
		batches = append(batches, *b)
	}
	return domain.ListBatchesResponse{PageInfo: pageInfo, Batches: batches}, nil
}

// Statement renders the owner's PDF for a batch. Lines are recomputed from
// the stored orders, whose pricing never changes after checkout.
func (s *Service) Statement(ctx context.Context, batchID snowflake.ID) ([]byte, error) {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	ids, err := decodeIDs(batch.OrderIDs)
	if err != nil {
		return nil, err
	}

	lines := make([]statement.Line, 0, len(ids))
	if len(ids) > 0 {
		orders, err := s.repo.ListOrders(ctx, s.db, domain.OrderQuery{
			Period:   batch.Period(),
			OwnerID:  batch.OwnerID,
			OrderIDs: ids,
		})
		if err != nil {
			return nil, err
		}
		col, err := s.collect(ctx, s.db, orders, batch.OwnerID, true)
		if err != nil {
			return nil, err
		}
		placed := make(map[snowflake.ID]time.Time, len(orders))
		for _, o := range orders {
			placed[o.ID] = o.PlacedAt
		}
		for _, sh := range col.all {
			lines = append(lines, statement.Line{
				OrderID:       sh.OrderID.String(),
				PlacedAt:      placed[sh.OrderID],
				ItemCount:     sh.ItemCount,
				BaseCents:     sh.BaseCents,
				ShippingCents: sh.ShippingOwnerCents,
				AmountCents:   sh.AmountToOwnerCents,
			})
		}
	}

	return statement.Render(statement.Data{
		Batch:       *batch,
		Lines:       lines,
		GeneratedAt: s.clock.Now(ctx).UTC(),
	})
}

type collected struct {
	// shares are eligible for payout; all additionally holds excluded ones.
	shares   []domain.OwnerShare
	all      []domain.OwnerShare
	excluded []domain.ExcludedOrder
	claimed  map[domain.ClaimKey]snowflake.ID
	flagged  map[snowflake.ID]bool
}

func (c collected) excludedByReason() map[string]int {
	out := map[string]int{}
	for _, ex := range c.excluded {
		out[ex.Reason]++
	}
	return out
}

// collect reconciles every order and splits it by owner. Shares already
// claimed by an open batch are excluded unless includePaid is set; shares of
// orders whose stored pricing is inconsistent are always excluded.
func (s *Service) collect(ctx context.Context, tx *gorm.DB, orders []orderdomain.Order, ownerID string, includePaid bool) (collected, error) {
	out := collected{flagged: map[snowflake.ID]bool{}}
	if len(orders) == 0 {
		return out, nil
	}

	ids := make([]snowflake.ID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := s.orders.ListItems(ctx, tx, ids...)
	if err != nil {
		return collected{}, err
	}
	byOrder := make(map[snowflake.ID][]orderdomain.Item, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	if out.claimed, err = s.repo.ActiveClaims(ctx, tx, ownerID, ids); err != nil {
		return collected{}, err
	}

	for _, o := range orders {
		orderItems := byOrder[o.ID]
		totals, err := s.reconciler.ReconcileStored(ctx, o.ID.String(), o.Pricing, orderdomain.ReconcileItems(orderItems))
		if err != nil {
			return collected{}, err
		}
		shares, err := computeShares(o, orderItems, totals)
		if err != nil {
			return collected{}, err
		}
		for _, sh := range shares {
			if ownerID != "" && sh.OwnerID != ownerID {
				continue
			}
			out.all = append(out.all, sh)
			if _, claimed := out.claimed[domain.ClaimKey{OwnerID: sh.OwnerID, OrderID: sh.OrderID}]; claimed && !includePaid {
				out.excluded = append(out.excluded, domain.ExcludedOrder{OrderID: o.ID, OwnerID: sh.OwnerID, Reason: domain.ExcludedAlreadyPaid})
				continue
			}
			if totals.Discrepancy != nil {
				out.flagged[o.ID] = true
				out.excluded = append(out.excluded, domain.ExcludedOrder{OrderID: o.ID, OwnerID: sh.OwnerID, Reason: domain.ExcludedDiscrepancy})
				continue
			}
			out.shares = append(out.shares, sh)
		}
	}
	return out, nil
}

// checkForced fails the close when a force-included order cannot be paid.
func checkForced(req domain.CloseBatchRequest, orders []orderdomain.Order, col collected) error {
	if len(req.ForceOrderIDs) == 0 {
		return nil
	}
	inPeriod := make(map[snowflake.ID]bool, len(orders))
	for _, o := range orders {
		inPeriod[o.ID] = true
	}

	var overlapping []snowflake.ID
	for _, id := range req.ForceOrderIDs {
		if !inPeriod[id] {
			return &domain.ForcedOrderError{OrderID: id, Reason: "not eligible for this owner and period"}
		}
		if _, claimed := col.claimed[domain.ClaimKey{OwnerID: req.OwnerID, OrderID: id}]; claimed {
			overlapping = append(overlapping, id)
			continue
		}
		if col.flagged[id] {
			return &domain.ForcedOrderError{OrderID: id, Reason: domain.ExcludedDiscrepancy}
		}
	}
	if len(overlapping) > 0 {
		sort.Slice(overlapping, func(i, j int) bool { return overlapping[i] < overlapping[j] })
		return &domain.OverlapError{OwnerID: req.OwnerID, OrderIDs: overlapping}
	}
	return nil
}

// acquire takes the owner's cross-process lock when a locker is configured.
func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	start := time.Now()
	token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
	s.payoutMetrics.ObserveLockWait(metrics.LockResourceOwnerBatch, time.Since(start))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %w", domain.ErrBatchLocked, metrics.ErrLockBusy)
	}
	return func() {
		if err := s.locker.Release(context.Background(), key, token); err != nil {
			s.log.Warn("failed to release payout lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

type batchEventPayload struct {
	BatchID            string `json:"batch_id"`
	OwnerID            string `json:"owner_id"`
	Kind               string `json:"kind"`
	PeriodFrom         string `json:"period_from"`
	PeriodTo           string `json:"period_to"`
	OrderCount         int    `json:"order_count"`
	AmountToOwnerCents int64  `json:"amount_to_owner_cents"`
	CompensatesBatchID string `json:"compensates_batch_id,omitempty"`
}

func batchEvent(b domain.Batch) batchEventPayload {
	payload := batchEventPayload{
		BatchID:            b.ID.String(),
		OwnerID:            b.OwnerID,
		Kind:               string(b.Kind),
		PeriodFrom:         b.PeriodFrom.Format(time.RFC3339),
		PeriodTo:           b.PeriodTo.Format(time.RFC3339),
		OrderCount:         b.OrderCount,
		AmountToOwnerCents: b.AmountToOwnerCents.Int64(),
	}
	if b.CompensatesBatchID != nil {
		payload.CompensatesBatchID = b.CompensatesBatchID.String()
	}
	return payload
}

func encodeIDs(ids []snowflake.ID) (datatypes.JSON, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func decodeIDs(raw datatypes.JSON) ([]snowflake.ID, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	out := make([]snowflake.ID, 0, len(ids))
	for _, s := range ids {
		id, err := snowflake.ParseString(s)
		if err != nil {
			return nil, errors.Join(domain.ErrBatchNotFound, err)
		}
		out = append(out, id)
	}
	return out, nil
}
