package statement

import (
	"bytes"
	"testing"
	"time"

	"github.com/smallbiznis/orderpricing/internal/payout/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	closed := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	batch := domain.Batch{
		ID:                 42,
		OwnerID:            "seller-1",
		Kind:               domain.KindPayout,
		PeriodFrom:         closed.AddDate(0, -1, 0),
		PeriodTo:           closed,
		BaseCents:          2000,
		ShippingOwnerCents: 1100,
		AmountToOwnerCents: 3100,
		Note:               "june",
		ClosedAt:           closed,
	}

	out, err := Render(Data{
		Batch:       batch,
		Lines:       []Line{{OrderID: "1", PlacedAt: closed.AddDate(0, 0, -3), ItemCount: 2, BaseCents: 2000, ShippingCents: 1100, AmountCents: 3100}},
		GeneratedAt: closed,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
