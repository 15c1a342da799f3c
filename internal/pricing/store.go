package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrRuleNotFound is returned when a contract rule does not exist.
var ErrRuleNotFound = errors.New("pricing: rule not found")

// Store persists contract rules in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const ruleColumns = `id, scope_kind, scope_id, product_id, contract_price, markup_price,
	min_quantity, max_quantity, effective_date, expiry_date, created_at, updated_at`

// RulesForScope returns every rule for the scope and product, newest first.
// Validity filtering happens at resolution time so admin tooling can still
// list expired rules.
func (s *Store) RulesForScope(ctx context.Context, scope Scope, productID int64) ([]Rule, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+ruleColumns+`
		FROM contract_prices
		WHERE scope_kind = $1 AND scope_id = $2 AND product_id = $3
		ORDER BY created_at DESC`, string(scope.Kind), scope.ID, productID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// GetRule fetches one rule by id.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM contract_prices WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrRuleNotFound
		}
		return Rule{}, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// CreateRule inserts a rule and returns it with generated fields populated.
func (s *Store) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	row := s.Pool.QueryRow(ctx, `INSERT INTO contract_prices
		(scope_kind, scope_id, product_id, contract_price, markup_price, min_quantity, max_quantity, effective_date, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+ruleColumns,
		string(rule.Scope.Kind), rule.Scope.ID, rule.ProductID,
		numericFromDecimalPtr(rule.ContractPrice), numericFromDecimalPtr(rule.MarkupPrice),
		rule.MinQuantity, intToNullable(rule.MaxQuantity),
		timeToNullable(rule.EffectiveDate), timeToNullable(rule.ExpiryDate))
	created, err := scanRule(row)
	if err != nil {
		return Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return created, nil
}

// UpdateRule overwrites all mutable fields of a rule.
func (s *Store) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	row := s.Pool.QueryRow(ctx, `UPDATE contract_prices SET
		contract_price = $2, markup_price = $3, min_quantity = $4, max_quantity = $5,
		effective_date = $6, expiry_date = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns,
		rule.ID,
		numericFromDecimalPtr(rule.ContractPrice), numericFromDecimalPtr(rule.MarkupPrice),
		rule.MinQuantity, intToNullable(rule.MaxQuantity),
		timeToNullable(rule.EffectiveDate), timeToNullable(rule.ExpiryDate))
	updated, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrRuleNotFound
		}
		return Rule{}, fmt.Errorf("update rule: %w", err)
	}
	return updated, nil
}

// DeleteRule removes a rule. A deleted rule simply falls back to the next tier.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM contract_prices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ListFilter narrows admin rule listings.
type ListFilter struct {
	ScopeKind *ScopeKind
	ScopeID   *uuid.UUID
	ProductID *int64
	Limit     int
	Offset    int
}

// ListRules returns a page of rules plus the unpaged total.
func (s *Store) ListRules(ctx context.Context, filter ListFilter) ([]Rule, int64, error) {
	where := " WHERE ($1::text IS NULL OR scope_kind = $1)" +
		" AND ($2::uuid IS NULL OR scope_id = $2)" +
		" AND ($3::bigint IS NULL OR product_id = $3)"
	args := []any{scopeKindArg(filter.ScopeKind), filter.ScopeID, filter.ProductID}

	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM contract_prices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rules: %w", err)
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+ruleColumns+` FROM contract_prices`+where+
		` ORDER BY created_at DESC LIMIT $4 OFFSET $5`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	rules, err := scanRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

func scanRules(rows pgx.Rows) ([]Rule, error) {
	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

func scanRule(row pgx.Row) (Rule, error) {
	var (
		rule          Rule
		kind          string
		contractPrice pgtype.Numeric
		markupPrice   pgtype.Numeric
		maxQuantity   pgtype.Int4
		effectiveDate pgtype.Timestamptz
		expiryDate    pgtype.Timestamptz
	)
	if err := row.Scan(&rule.ID, &kind, &rule.Scope.ID, &rule.ProductID,
		&contractPrice, &markupPrice, &rule.MinQuantity, &maxQuantity,
		&effectiveDate, &expiryDate, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return Rule{}, err
	}
	rule.Scope.Kind = ScopeKind(kind)
	rule.ContractPrice = decimalFromNumeric(contractPrice)
	rule.MarkupPrice = decimalFromNumeric(markupPrice)
	if maxQuantity.Valid {
		v := int(maxQuantity.Int32)
		rule.MaxQuantity = &v
	}
	if effectiveDate.Valid {
		t := effectiveDate.Time
		rule.EffectiveDate = &t
	}
	if expiryDate.Valid {
		t := expiryDate.Time
		rule.ExpiryDate = &t
	}
	return rule, nil
}

func decimalFromNumeric(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return nil
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d
}

func numericFromDecimalPtr(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func intToNullable(v *int) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*v), Valid: true}
}

func timeToNullable(v *time.Time) pgtype.Timestamptz {
	if v == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *v, Valid: true}
}

func scopeKindArg(k *ScopeKind) *string {
	if k == nil {
		return nil
	}
	s := string(*k)
	return &s
}
