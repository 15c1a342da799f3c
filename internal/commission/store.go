package commission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrRecordNotFound is returned when a commission record does not exist.
var ErrRecordNotFound = errors.New("commission: record not found")

// Store persists commission records in Postgres. Margin details live in a
// JSONB column and are overwritten wholesale on recalculation.
type Store struct {
	Pool *pgxpool.Pool
}

const recordColumns = `id, order_id, sales_rep_id, distributor_id, organization_id,
	commission_rate, split_rate, split_type, status, margin_details,
	product_margin, commission_amount, sales_rep_commission, distributor_commission,
	created_at, updated_at`

// ListAll returns every commission record ordered by creation time, newest
// first. The recalculation batch always walks the full set.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+recordColumns+` FROM commission_records ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list commission records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// List returns a page of records, optionally filtered by status.
func (s *Store) List(ctx context.Context, status *Status, limit, offset int) ([]Record, int64, error) {
	where := ` WHERE ($1::text IS NULL OR status = $1)`
	statusArg := statusArg(status)

	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM commission_records`+where, statusArg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count commission records: %w", err)
	}

	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+recordColumns+` FROM commission_records`+where+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, statusArg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list commission records: %w", err)
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Get fetches one commission record.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM commission_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("get commission record: %w", err)
	}
	return rec, nil
}

// Create inserts a commission record. Used by order completion and seeding.
func (s *Store) Create(ctx context.Context, rec Record) (Record, error) {
	details, err := json.Marshal(rec.MarginDetails)
	if err != nil {
		return Record{}, fmt.Errorf("marshal margin details: %w", err)
	}
	row := s.Pool.QueryRow(ctx, `INSERT INTO commission_records
		(order_id, sales_rep_id, distributor_id, organization_id, commission_rate, split_rate, split_type, status,
		 margin_details, product_margin, commission_amount, sales_rep_commission, distributor_commission)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+recordColumns,
		rec.OrderID, rec.SalesRepID, rec.DistributorID, rec.OrganizationID,
		numericFromDecimal(rec.CommissionRate), numericFromDecimalPtr(rec.SplitRate),
		string(rec.SplitType), string(rec.Status), details,
		numericFromDecimal(rec.ProductMargin), numericFromDecimal(rec.CommissionAmount),
		numericFromDecimalPtr(rec.SalesRepCommission), numericFromDecimalPtr(rec.DistributorCommission))
	created, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("insert commission record: %w", err)
	}
	return created, nil
}

// UpdateRecalculated overwrites the recalculation outputs of a record:
// margin details, the two aggregates and the split amounts. All other
// fields, the workflow status included, are left untouched.
func (s *Store) UpdateRecalculated(ctx context.Context, rec Record) error {
	details, err := json.Marshal(rec.MarginDetails)
	if err != nil {
		return fmt.Errorf("marshal margin details: %w", err)
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE commission_records SET
		margin_details = $2, product_margin = $3, commission_amount = $4,
		sales_rep_commission = $5, distributor_commission = $6, updated_at = now()
		WHERE id = $1`,
		rec.ID, details,
		numericFromDecimal(rec.ProductMargin), numericFromDecimal(rec.CommissionAmount),
		numericFromDecimalPtr(rec.SalesRepCommission), numericFromDecimalPtr(rec.DistributorCommission))
	if err != nil {
		return fmt.Errorf("update commission record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// UpdateStatus moves a record to a new workflow state.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Record, error) {
	row := s.Pool.QueryRow(ctx, `UPDATE commission_records SET status = $2, updated_at = now()
		WHERE id = $1 RETURNING `+recordColumns, id, string(status))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("update commission status: %w", err)
	}
	return rec, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commission record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commission records: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec              Record
		splitType        string
		status           string
		details          []byte
		commissionRate   pgtype.Numeric
		splitRate        pgtype.Numeric
		productMargin    pgtype.Numeric
		commissionAmount pgtype.Numeric
		repCommission    pgtype.Numeric
		distCommission   pgtype.Numeric
	)
	if err := row.Scan(&rec.ID, &rec.OrderID, &rec.SalesRepID, &rec.DistributorID, &rec.OrganizationID,
		&commissionRate, &splitRate, &splitType, &status, &details,
		&productMargin, &commissionAmount, &repCommission, &distCommission,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.SplitType = SplitType(splitType)
	rec.Status = Status(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.MarginDetails); err != nil {
			return Record{}, fmt.Errorf("unmarshal margin details: %w", err)
		}
	}
	rec.CommissionRate = decimalFromNumericOrZero(commissionRate)
	rec.SplitRate = decimalFromNumericPtr(splitRate)
	rec.ProductMargin = decimalFromNumericOrZero(productMargin)
	rec.CommissionAmount = decimalFromNumericOrZero(commissionAmount)
	rec.SalesRepCommission = decimalFromNumericPtr(repCommission)
	rec.DistributorCommission = decimalFromNumericPtr(distCommission)
	return rec, nil
}

func decimalFromNumericPtr(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return nil
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d
}

func decimalFromNumericOrZero(n pgtype.Numeric) decimal.Decimal {
	if d := decimalFromNumericPtr(n); d != nil {
		return *d
	}
	return decimal.Zero
}

func numericFromDecimal(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func numericFromDecimalPtr(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return numericFromDecimal(*d)
}

func statusArg(s *Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
