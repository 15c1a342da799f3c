package commission_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
	"github.com/TexasJeff75/hs360-backend/internal/commission"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func uuidPtr() *uuid.UUID {
	id := uuid.New()
	return &id
}

func markupLine() commission.Line {
	return commission.Line{
		ProductID:   42,
		Name:        "Glucose Panel",
		Price:       dec("150"),
		RetailPrice: dec("100"),
		Cost:        dec("55"),
		Quantity:    2,
		HasMarkup:   true,
	}
}

func baseRecord(lines ...commission.Line) commission.Record {
	return commission.Record{
		ID:             uuid.New(),
		OrderID:        1001,
		SalesRepID:     uuid.New(),
		CommissionRate: dec("20"),
		SplitType:      commission.SplitPercentageOfDistributor,
		Status:         commission.StatusPending,
		MarginDetails:  lines,
	}
}

func TestRecalculateLineMarkup(t *testing.T) {
	totals := commission.RecalculateLine(markupLine(), dec("60"), dec("20"))

	require.True(t, totals.BaseMargin.Equal(dec("80")), "got %s", totals.BaseMargin)
	require.True(t, totals.BaseCommission.Equal(dec("16")), "got %s", totals.BaseCommission)
	require.True(t, totals.MarkupAmount.Equal(dec("100")))
	require.True(t, totals.MarkupCommission.Equal(dec("100")), "markup is credited to the rep in full")
	require.True(t, totals.ItemCommission.Equal(dec("116")))
	require.True(t, totals.ItemMargin.Equal(dec("180")))
}

func TestRecalculateLineWithoutMarkup(t *testing.T) {
	line := markupLine()
	line.HasMarkup = false
	totals := commission.RecalculateLine(line, dec("60"), dec("20"))

	require.True(t, totals.MarkupAmount.IsZero())
	require.True(t, totals.MarkupCommission.IsZero())
	require.True(t, totals.ItemCommission.Equal(totals.BaseCommission))
	require.True(t, totals.ItemMargin.Equal(totals.BaseMargin))
}

func TestRecalculateRecordAggregates(t *testing.T) {
	rec := baseRecord(markupLine(), commission.Line{
		ProductID:   43,
		Name:        "Lipid Panel",
		Price:       dec("90"),
		RetailPrice: dec("90"),
		Cost:        dec("50"),
		Quantity:    1,
	})
	costs := commission.CostTable{42: dec("60"), 43: dec("48")}

	updated, err := commission.RecalculateRecord(rec, costs)
	require.NoError(t, err)

	// Line 1: margin 180, commission 116. Line 2: margin 42, commission 8.40.
	require.Equal(t, "222.00", updated.ProductMargin.StringFixed(2))
	require.Equal(t, "124.40", updated.CommissionAmount.StringFixed(2))
	require.True(t, updated.MarginDetails[0].Cost.Equal(dec("60")), "line cost is replaced by the authoritative cost")
	require.True(t, updated.MarginDetails[1].Cost.Equal(dec("48")))
	require.Equal(t, commission.StatusPending, updated.Status, "recalculation never touches the workflow status")
}

func TestRecalculateRecordMissingCostDefaultsToZero(t *testing.T) {
	rec := baseRecord(markupLine())

	updated, err := commission.RecalculateRecord(rec, commission.CostTable{})
	require.NoError(t, err)
	require.True(t, updated.MarginDetails[0].Cost.IsZero())
	// margin (100-0)*2 + markup 100 = 300
	require.Equal(t, "300.00", updated.ProductMargin.StringFixed(2))
}

func TestRecalculateRecordIdempotent(t *testing.T) {
	rec := baseRecord(commission.Line{
		ProductID:   42,
		Price:       dec("33.335"),
		RetailPrice: dec("33.335"),
		Cost:        dec("10"),
		Quantity:    3,
	})
	costs := commission.CostTable{42: dec("11.117")}

	first, err := commission.RecalculateRecord(rec, costs)
	require.NoError(t, err)
	second, err := commission.RecalculateRecord(first, costs)
	require.NoError(t, err)

	require.Equal(t, first.ProductMargin.String(), second.ProductMargin.String())
	require.Equal(t, first.CommissionAmount.String(), second.CommissionAmount.String())
	require.Equal(t, first.MarginDetails, second.MarginDetails)
}

func TestRecalculateRecordEmptyDetails(t *testing.T) {
	rec := baseRecord()
	rec.ProductMargin = dec("999")

	got, err := commission.RecalculateRecord(rec, commission.CostTable{})
	require.ErrorIs(t, err, commission.ErrNoMarginDetails)
	require.True(t, got.ProductMargin.Equal(dec("999")), "a skipped record is left untouched")
}

func TestRecalculateRecordUsesStoredRate(t *testing.T) {
	// The rate frozen on the record at creation applies, regardless of what
	// the rep's current assignment says.
	rec := baseRecord(markupLine())
	rec.CommissionRate = dec("5")
	costs := commission.CostTable{42: dec("60")}

	updated, err := commission.RecalculateRecord(rec, costs)
	require.NoError(t, err)
	// base commission 80 * 5% = 4, plus markup 100
	require.Equal(t, "104.00", updated.CommissionAmount.StringFixed(2))
}

func TestSplitPercentageOfDistributor(t *testing.T) {
	rec := baseRecord(markupLine())
	rec.DistributorID = uuidPtr()
	rec.SplitRate = decPtr("60")
	costs := commission.CostTable{42: dec("60")}

	updated, err := commission.RecalculateRecord(rec, costs)
	require.NoError(t, err)
	require.Equal(t, "116.00", updated.CommissionAmount.StringFixed(2))
	require.NotNil(t, updated.SalesRepCommission)
	require.NotNil(t, updated.DistributorCommission)
	require.Equal(t, "69.60", updated.SalesRepCommission.StringFixed(2))
	require.Equal(t, "46.40", updated.DistributorCommission.StringFixed(2))
	// The two halves always reconstruct the rounded total.
	sum := updated.SalesRepCommission.Add(*updated.DistributorCommission)
	require.True(t, sum.Equal(updated.CommissionAmount))
}

func TestSplitFixedWithOverride(t *testing.T) {
	rec := baseRecord(markupLine())
	rec.DistributorID = uuidPtr()
	rec.SplitType = commission.SplitFixedWithOverride
	costs := commission.CostTable{42: dec("60")}

	updated, err := commission.RecalculateRecord(rec, costs)
	require.NoError(t, err)
	require.Equal(t, "100.00", updated.SalesRepCommission.StringFixed(2), "rep keeps the markup")
	require.Equal(t, "16.00", updated.DistributorCommission.StringFixed(2), "distributor keeps the base commission")
}

func TestSplitWithoutDistributor(t *testing.T) {
	rec := baseRecord(markupLine())
	costs := commission.CostTable{42: dec("60")}

	updated, err := commission.RecalculateRecord(rec, costs)
	require.NoError(t, err)
	require.NotNil(t, updated.SalesRepCommission)
	require.Equal(t, "116.00", updated.SalesRepCommission.StringFixed(2))
	require.Nil(t, updated.DistributorCommission)
}

func TestAuthoritativeCost(t *testing.T) {
	variantCost := dec("70")
	withVariant := catalog.Product{
		CostPrice: dec("80"),
		Variants:  []catalog.Variant{{ID: 1, CostPrice: &variantCost}, {ID: 2}},
	}
	require.True(t, commission.AuthoritativeCost(withVariant).Equal(variantCost), "first variant cost wins")

	variantNoCost := catalog.Product{
		CostPrice: dec("80"),
		Variants:  []catalog.Variant{{ID: 1}},
	}
	require.True(t, commission.AuthoritativeCost(variantNoCost).Equal(dec("80")))

	require.True(t, commission.AuthoritativeCost(catalog.Product{}).IsZero())
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from commission.Status
		to   commission.Status
		ok   bool
	}{
		{commission.StatusPending, commission.StatusApproved, true},
		{commission.StatusPending, commission.StatusCancelled, true},
		{commission.StatusPending, commission.StatusPaid, false},
		{commission.StatusApproved, commission.StatusPaid, true},
		{commission.StatusApproved, commission.StatusCancelled, true},
		{commission.StatusApproved, commission.StatusPending, false},
		{commission.StatusPaid, commission.StatusCancelled, false},
		{commission.StatusCancelled, commission.StatusPending, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
