package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/orderpricing/pkg/db"
	"gorm.io/gorm"
)

const (
	PayoutReasonDeadlineExceeded     = "deadline_exceeded"
	PayoutReasonDBLockTimeout        = "db_lock_timeout"
	PayoutReasonSerializationFailure = "serialization_failure"
	PayoutReasonUniqueViolation      = "unique_violation"
	PayoutReasonLockBusy             = "lock_busy"
	PayoutReasonUnknown              = "unknown"
)

const (
	PayoutStageAggregate  = "aggregate"
	PayoutStageClose      = "close"
	PayoutStageCompensate = "compensate"
)

const (
	LockResourceOwnerBatch  = "payout_owner_batch"
	LockResourceOrderClaims = "payout_order_claims"
	LockResourceBatchByID   = "payout_batch_by_id"
)

// PayoutMetrics captures payout batch health for operators.
type PayoutMetrics struct {
	stageRuns      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageErrors    *prometheus.CounterVec
	ordersClaimed  prometheus.Counter
	lockWait       *prometheus.HistogramVec
	lockWaitByName map[string]prometheus.Observer
}

var (
	payoutMetricsOnce sync.Once
	payoutMetrics     *PayoutMetrics
)

// Payout returns the process-wide payout metrics registered on the default registerer.
func Payout(cfg Config) *PayoutMetrics {
	payoutMetricsOnce.Do(func() {
		payoutMetrics = NewPayoutMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return payoutMetrics
}

// NewPayoutMetrics registers payout collectors on registerer.
func NewPayoutMetrics(registerer prometheus.Registerer, cfg Config) *PayoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "orderpricing"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	stageRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "orderpricing_payout_stage_runs_total",
		Help:        "Payout stage runs by name.",
		ConstLabels: constLabels,
	}, []string{"stage"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "orderpricing_payout_stage_duration_seconds",
		Help:        "Payout stage latency.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"stage"})
	stageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "orderpricing_payout_stage_errors_total",
		Help:        "Payout stage errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"stage", "reason"})
	ordersClaimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "orderpricing_payout_orders_claimed_total",
		Help:        "Orders claimed by closed payout batches.",
		ConstLabels: constLabels,
	})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "orderpricing_payout_lock_wait_seconds",
		Help:        "Time spent acquiring payout locks.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(stageRuns, stageDuration, stageErrors, ordersClaimed, lockWait)

	lockWaitByName := map[string]prometheus.Observer{}
	for _, resource := range []string{LockResourceOwnerBatch, LockResourceOrderClaims, LockResourceBatchByID} {
		lockWaitByName[resource] = lockWait.WithLabelValues(resource)
	}

	return &PayoutMetrics{
		stageRuns:      stageRuns,
		stageDuration:  stageDuration,
		stageErrors:    stageErrors,
		ordersClaimed:  ordersClaimed,
		lockWait:       lockWait,
		lockWaitByName: lockWaitByName,
	}
}

// ObserveStage records one run of a payout stage and its outcome.
func (m *PayoutMetrics) ObserveStage(stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(stage, ClassifyPayoutReason(err)).Inc()
	}
}

// AddOrdersClaimed counts orders newly bound to a batch.
func (m *PayoutMetrics) AddOrdersClaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ordersClaimed.Add(float64(n))
}

// ObserveLockWait records how long a payout lock took to acquire.
func (m *PayoutMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitByName[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ErrLockBusy is matched by ClassifyPayoutReason; lock implementations wrap it.
var ErrLockBusy = errors.New("lock_busy")

// ClassifyPayoutReason maps payout errors to low-cardinality reasons.
func ClassifyPayoutReason(err error) string {
	if err == nil {
		return PayoutReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return PayoutReasonDeadlineExceeded
	}
	if errors.Is(err, ErrLockBusy) {
		return PayoutReasonLockBusy
	}
	if hasPGCode(err, "55P03") {
		return PayoutReasonDBLockTimeout
	}
	if db.IsSerializationFailure(err) {
		return PayoutReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return PayoutReasonUniqueViolation
	}
	return PayoutReasonUnknown
}

// IsRetryable reports whether a payout close may be retried as-is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch ClassifyPayoutReason(err) {
	case PayoutReasonSerializationFailure, PayoutReasonDBLockTimeout, PayoutReasonLockBusy:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
