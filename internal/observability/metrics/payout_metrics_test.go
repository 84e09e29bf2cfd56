package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyPayoutReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: PayoutReasonDeadlineExceeded},
		{name: "lock_busy", err: fmt.Errorf("acquire: %w", ErrLockBusy), want: PayoutReasonLockBusy},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: PayoutReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: PayoutReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: PayoutReasonUniqueViolation},
		{name: "unique_violation_pg", err: &pgconn.PgError{Code: "23505"}, want: PayoutReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: PayoutReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyPayoutReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failures should be retryable")
	}
	if IsRetryable(gorm.ErrDuplicatedKey) {
		t.Fatalf("unique violations should not be retryable")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestPayoutMetricsObserveStage(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPayoutMetrics(registry, Config{ServiceName: "orderpricing", Environment: "test"})

	m.ObserveStage(PayoutStageClose, 15*time.Millisecond, nil)
	m.ObserveStage(PayoutStageClose, 5*time.Millisecond, &pgconn.PgError{Code: "40001"})
	m.AddOrdersClaimed(3)
	m.ObserveLockWait(LockResourceOwnerBatch, time.Millisecond)

	if got := testutil.ToFloat64(m.stageRuns.WithLabelValues(PayoutStageClose)); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.stageErrors.WithLabelValues(PayoutStageClose, PayoutReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.ordersClaimed); got != 3 {
		t.Fatalf("expected 3 claimed, got %v", got)
	}
}

func TestNilPayoutMetricsIsNoop(t *testing.T) {
	var m *PayoutMetrics
	m.ObserveStage(PayoutStageAggregate, time.Second, errors.New("boom"))
	m.AddOrdersClaimed(1)
	m.ObserveLockWait(LockResourceBatchByID, time.Second)
}
