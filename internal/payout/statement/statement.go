// Package statement renders the PDF an owner receives for a payout batch.
package statement

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/orderpricing/internal/payout/domain"
	"github.com/smallbiznis/orderpricing/pkg/money"
)

const dateLayout = "2006-01-02"

// Line is one order on the statement.
type Line struct {
	OrderID       string
	PlacedAt      time.Time
	ItemCount     int64
	BaseCents     money.Cents
	ShippingCents money.Cents
	AmountCents   money.Cents
}

type Data struct {
	Batch       domain.Batch
	Lines       []Line
	GeneratedAt time.Time
}

func Render(data Data) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)
	b := data.Batch

	title := "Payout statement"
	if b.Kind == domain.KindCompensation {
		title = "Payout compensation"
	}
	m.AddRow(20,
		text.NewCol(12, title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Owner: "+b.OwnerID, props.Text{Top: 0}),
			text.New("Batch: "+b.ID.String(), props.Text{Top: 4}),
			text.New(fmt.Sprintf("Period: %s to %s", b.PeriodFrom.Format(dateLayout), b.PeriodTo.Format(dateLayout)), props.Text{Top: 8}),
			text.New("Closed: "+b.ClosedAt.Format(time.RFC3339), props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New(deliveredLabel(b.DeliveredOnly), props.Text{Top: 0, Align: align.Right}),
			text.New("Generated: "+data.GeneratedAt.Format(time.RFC3339), props.Text{Top: 4, Align: align.Right}),
		),
	)
	if b.CompensatesBatchID != nil {
		m.AddRow(8, text.NewCol(12, "Reverses batch "+b.CompensatesBatchID.String(), props.Text{Size: 9, Style: fontstyle.Italic}))
	}
	if b.Note != "" {
		m.AddRow(8, text.NewCol(12, "Note: "+b.Note, props.Text{Size: 9}))
	}

	m.AddRow(10,
		text.NewCol(3, "Order", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Placed", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Items", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Base", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Shipping", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Owed", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, line := range data.Lines {
		m.AddRow(7,
			text.NewCol(3, line.OrderID, props.Text{Size: 9}),
			text.NewCol(2, line.PlacedAt.Format(dateLayout), props.Text{Size: 9}),
			text.NewCol(1, fmt.Sprintf("%d", line.ItemCount), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.BaseCents.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.ShippingCents.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.AmountCents.String(), props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := []struct {
		label string
		value money.Cents
	}{
		{"Base revenue", b.BaseCents},
		{"Shipping share", b.ShippingOwnerCents},
		{"Platform margin", b.MarginCents},
		{"Tax collected", b.TaxCents},
		{"Gateway fee", b.GatewayFeeCents},
	}
	for _, t := range totals {
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, t.label, props.Text{Size: 9}),
			text.NewCol(2, t.value.String(), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount to owner", props.Text{Size: 10, Style: fontstyle.Bold}),
		text.NewCol(2, b.AmountToOwnerCents.String(), props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func deliveredLabel(deliveredOnly bool) string {
	if deliveredOnly {
		return "Delivered orders only"
	}
	return "All non-cancelled orders"
}
