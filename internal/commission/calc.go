package commission

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
)

// ErrNoMarginDetails marks a record with nothing to recalculate. Callers
// treat it as a skip, not a failure.
var ErrNoMarginDetails = errors.New("commission: record has no margin details")

var oneHundred = decimal.NewFromInt(100)

// CostTable maps product ids to their authoritative acquisition cost for one
// recalculation run. Building it per run and passing it explicitly keeps
// RecalculateRecord pure and avoids cross-run staleness.
type CostTable map[int64]decimal.Decimal

// AuthoritativeCost extracts the cost basis the recalculation uses from a
// catalog product: the first variant's cost when present, else the product
// cost, else zero.
func AuthoritativeCost(product catalog.Product) decimal.Decimal {
	if len(product.Variants) > 0 && product.Variants[0].CostPrice != nil {
		return *product.Variants[0].CostPrice
	}
	return product.CostPrice
}

// LineTotals carries the computed figures for one line. Values are exact;
// rounding happens once at aggregation.
type LineTotals struct {
	BaseMargin       decimal.Decimal
	BaseCommission   decimal.Decimal
	MarkupAmount     decimal.Decimal
	MarkupCommission decimal.Decimal
	ItemMargin       decimal.Decimal
	ItemCommission   decimal.Decimal
}

// RecalculateLine recomputes one line's margin and commission against the
// corrected cost. The base commission applies the record's stored rate; the
// markup above retail is credited to the rep in full.
func RecalculateLine(line Line, correctCost, rate decimal.Decimal) LineTotals {
	quantity := decimal.NewFromInt(int64(line.Quantity))
	totals := LineTotals{
		BaseMargin: line.RetailPrice.Sub(correctCost).Mul(quantity),
	}
	totals.BaseCommission = totals.BaseMargin.Mul(rate).Div(oneHundred)
	if line.HasMarkup {
		totals.MarkupAmount = line.Price.Sub(line.RetailPrice).Mul(quantity)
		totals.MarkupCommission = totals.MarkupAmount
	}
	totals.ItemMargin = totals.BaseMargin.Add(totals.MarkupAmount)
	totals.ItemCommission = totals.BaseCommission.Add(totals.MarkupCommission)
	return totals
}

// RecalculateRecord recomputes every line of the record against the cost
// table and returns the record with corrected margin details and aggregates.
// The stored commission rate is applied as-is; recalculation corrects cost
// drift, never rate drift. Monetary aggregates are rounded half-up to two
// decimals exactly once, at the end.
func RecalculateRecord(rec Record, costs CostTable) (Record, error) {
	if len(rec.MarginDetails) == 0 {
		return rec, ErrNoMarginDetails
	}

	lines := make([]Line, len(rec.MarginDetails))
	productMargin := decimal.Zero
	commissionAmount := decimal.Zero
	baseCommission := decimal.Zero
	markupCommission := decimal.Zero

	for i, line := range rec.MarginDetails {
		cost, ok := costs[line.ProductID]
		if !ok {
			cost = decimal.Zero
		}
		line.Cost = cost
		totals := RecalculateLine(line, cost, rec.CommissionRate)
		lines[i] = line
		productMargin = productMargin.Add(totals.ItemMargin)
		commissionAmount = commissionAmount.Add(totals.ItemCommission)
		baseCommission = baseCommission.Add(totals.BaseCommission)
		markupCommission = markupCommission.Add(totals.MarkupCommission)
	}

	rec.MarginDetails = lines
	rec.ProductMargin = roundMoney(productMargin)
	rec.CommissionAmount = roundMoney(commissionAmount)
	applySplit(&rec, commissionAmount, baseCommission, markupCommission)
	return rec, nil
}

// applySplit divides the total commission between rep and distributor. A
// record without a distributor pays the rep everything.
func applySplit(rec *Record, total, base, markup decimal.Decimal) {
	if rec.DistributorID == nil {
		rep := roundMoney(total)
		rec.SalesRepCommission = &rep
		rec.DistributorCommission = nil
		return
	}
	switch rec.SplitType {
	case SplitFixedWithOverride:
		rep := roundMoney(markup)
		dist := roundMoney(base)
		rec.SalesRepCommission = &rep
		rec.DistributorCommission = &dist
	default:
		splitRate := decimal.Zero
		if rec.SplitRate != nil {
			splitRate = *rec.SplitRate
		}
		repExact := total.Mul(splitRate).Div(oneHundred)
		rep := roundMoney(repExact)
		dist := rec.CommissionAmount.Sub(rep)
		rec.SalesRepCommission = &rep
		rec.DistributorCommission = &dist
	}
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
