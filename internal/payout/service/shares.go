package service

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/internal/payout/domain"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	"github.com/smallbiznis/orderpricing/pkg/money"
)

type ownerLines struct {
	items int64
	sell  money.Cents
	base  money.Cents
	tax   money.Cents
}

// computeShares splits one reconciled order across the owners of its lines.
// Tax follows the per-line tax stored on the items; rows whose line tax does
// not add up to the order tax fall back to a split by sell subtotal. The
// gateway fee is allocated by each owner's share of the order total before
// the fee, that is sell subtotal plus tax plus the owner's shipping. A line
// stored without a base price is treated as carrying no platform margin.
func computeShares(order orderdomain.Order, items []orderdomain.Item, totals reconcile.CanonicalTotals) ([]domain.OwnerShare, error) {
	byOwner := map[string]*ownerLines{}
	for _, it := range items {
		lines, ok := byOwner[it.SellerID]
		if !ok {
			lines = &ownerLines{}
			byOwner[it.SellerID] = lines
		}
		unitBase := it.BasePriceCents
		if unitBase == 0 {
			unitBase = it.UnitPriceCents
		}
		sell, err := it.UnitPriceCents.Mul(it.Quantity)
		if err != nil {
			return nil, err
		}
		base, err := unitBase.Mul(it.Quantity)
		if err != nil {
			return nil, err
		}
		tax, err := it.TaxCents.Mul(it.Quantity)
		if err != nil {
			return nil, err
		}
		if lines.sell, err = lines.sell.Add(sell); err != nil {
			return nil, err
		}
		if lines.base, err = lines.base.Add(base); err != nil {
			return nil, err
		}
		if lines.tax, err = lines.tax.Add(tax); err != nil {
			return nil, err
		}
		lines.items += it.Quantity
	}

	owners := make([]string, 0, len(byOwner))
	for id := range byOwner {
		owners = append(owners, id)
	}
	sort.Strings(owners)

	taxShares, err := ownerTax(owners, byOwner, totals.TaxCents)
	if err != nil {
		return nil, err
	}

	feeWeights := make([]money.Cents, len(owners))
	for i, id := range owners {
		w, err := money.Sum(byOwner[id].sell, taxShares[i], totals.PerSellerShippingCents[id])
		if err != nil {
			return nil, err
		}
		feeWeights[i] = w
	}
	feeShares := money.Allocate(totals.CardFeeCents, feeWeights)

	out := make([]domain.OwnerShare, 0, len(owners))
	for i, id := range owners {
		lines := byOwner[id]
		shipping := totals.PerSellerShippingCents[id]
		toOwner, err := lines.base.Add(shipping)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.OwnerShare{
			OrderID:   order.ID,
			OwnerID:   id,
			ItemCount: lines.items,
			Amounts: domain.Amounts{
				BaseCents:          lines.base,
				ShippingOwnerCents: shipping,
				MarginCents:        lines.sell - lines.base,
				TaxCents:           taxShares[i],
				GatewayFeeCents:    feeShares[i],
				AmountToOwnerCents: toOwner,
			},
		})
	}
	return out, nil
}

// ownerTax returns each owner's tax, in owners order, summing to orderTax.
func ownerTax(owners []string, byOwner map[string]*ownerLines, orderTax money.Cents) ([]money.Cents, error) {
	lineTax := make([]money.Cents, len(owners))
	var sum money.Cents
	for i, id := range owners {
		lineTax[i] = byOwner[id].tax
		var err error
		if sum, err = sum.Add(lineTax[i]); err != nil {
			return nil, err
		}
	}
	if sum == orderTax {
		return lineTax, nil
	}

	weights := make([]money.Cents, len(owners))
	for i, id := range owners {
		weights[i] = byOwner[id].sell
	}
	return money.Allocate(orderTax, weights), nil
}

// summarize folds shares into one row per owner, sorted by owner, plus a
// grand total row.
func summarize(shares []domain.OwnerShare) ([]domain.OwnerRow, domain.OwnerRow, error) {
	rows := map[string]*domain.OwnerRow{}
	seen := map[snowflake.ID]struct{}{}
	var total domain.OwnerRow
	for _, sh := range shares {
		row, ok := rows[sh.OwnerID]
		if !ok {
			row = &domain.OwnerRow{OwnerID: sh.OwnerID}
			rows[sh.OwnerID] = row
		}
		var err error
		if row.Amounts, err = row.Amounts.Add(sh.Amounts); err != nil {
			return nil, domain.OwnerRow{}, err
		}
		if total.Amounts, err = total.Amounts.Add(sh.Amounts); err != nil {
			return nil, domain.OwnerRow{}, err
		}
		row.OrderCount++
		row.ItemCount += sh.ItemCount
		row.OrderIDs = append(row.OrderIDs, sh.OrderID)
		total.ItemCount += sh.ItemCount
		if _, dup := seen[sh.OrderID]; !dup {
			seen[sh.OrderID] = struct{}{}
			total.OrderIDs = append(total.OrderIDs, sh.OrderID)
		}
	}
	total.OrderCount = len(total.OrderIDs)

	out := make([]domain.OwnerRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, total, nil
}
