package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
	"github.com/TexasJeff75/hs360-backend/internal/obs"
)

// RecordStore abstracts commission record persistence for recalculation.
type RecordStore interface {
	ListAll(ctx context.Context) ([]Record, error)
	UpdateRecalculated(ctx context.Context, rec Record) error
}

// CostSource looks up products for authoritative cost data.
type CostSource interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// Report summarises one recalculation run.
type Report struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Recalculator replays the commission math over every stored record using
// fresh catalog costs. Records are processed strictly in sequence; a failing
// record is logged and left untouched while the run continues. Concurrent
// runs are not safe and are left to the operator to prevent.
type Recalculator struct {
	Records  RecordStore
	Catalog  CostSource
	Logger   zerolog.Logger
	Validate *validator.Validate
}

var fallbackLineValidator = validator.New()

func (r *Recalculator) lineValidator() *validator.Validate {
	if r.Validate != nil {
		return r.Validate
	}
	return fallbackLineValidator
}

// Run recalculates every commission record, newest first. It returns an
// error only when the record listing itself fails; per-record failures are
// counted in the report.
func (r *Recalculator) Run(ctx context.Context) (Report, error) {
	records, err := r.Records.ListAll(ctx)
	if err != nil {
		recordRun("error")
		return Report{}, fmt.Errorf("list commission records: %w", err)
	}

	report := Report{}
	costs := make(CostTable)
	for _, rec := range records {
		report.Processed++
		logger := r.Logger.With().
			Str("record_id", rec.ID.String()).
			Int64("order_id", rec.OrderID).
			Logger()

		updated, err := r.recalculateOne(ctx, rec, costs)
		switch {
		case errors.Is(err, ErrNoMarginDetails):
			report.Skipped++
			recordOutcome("skipped")
			logger.Info().Msg("record has no margin details, skipped")
			continue
		case err != nil:
			report.Failed++
			recordOutcome("failed")
			logger.Error().Err(err).Msg("record recalculation failed")
			continue
		}

		if err := r.Records.UpdateRecalculated(ctx, updated); err != nil {
			report.Failed++
			recordOutcome("failed")
			logger.Error().Err(err).Msg("record update failed")
			continue
		}
		report.Updated++
		recordOutcome("updated")
		logger.Info().
			Str("product_margin", updated.ProductMargin.StringFixed(2)).
			Str("commission_amount", updated.CommissionAmount.StringFixed(2)).
			Msg("record recalculated")
	}

	recordRun("success")
	r.Logger.Info().
		Int("processed", report.Processed).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("recalculation run complete")
	return report, nil
}

// recalculateOne resolves missing costs for the record's products and then
// applies the pure recalculation. Stored margin details are validated before
// any math runs; a malformed line fails the record rather than persisting
// figures computed from garbage. Fetch failures are not cached so a later
// record referencing the same product gets another attempt.
func (r *Recalculator) recalculateOne(ctx context.Context, rec Record, costs CostTable) (Record, error) {
	if len(rec.MarginDetails) == 0 {
		return rec, ErrNoMarginDetails
	}
	if err := ValidateLines(r.lineValidator(), rec.MarginDetails); err != nil {
		return rec, fmt.Errorf("margin details: %w", err)
	}
	for _, line := range rec.MarginDetails {
		if _, ok := costs[line.ProductID]; ok {
			continue
		}
		product, err := r.Catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return rec, fmt.Errorf("fetch cost for product %d: %w", line.ProductID, err)
		}
		costs[line.ProductID] = AuthoritativeCost(product)
	}
	return RecalculateRecord(rec, costs)
}

func recordOutcome(result string) {
	if obs.RecalcRecordsTotal != nil {
		obs.RecalcRecordsTotal.WithLabelValues(result).Inc()
	}
}

func recordRun(result string) {
	if obs.RecalcRunsTotal != nil {
		obs.RecalcRunsTotal.WithLabelValues(result).Inc()
	}
}
