package pricing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/TexasJeff75/hs360-backend/internal/common"
)

// RuleStore abstracts contract rule persistence for the service layer.
type RuleStore interface {
	RulesForScope(ctx context.Context, scope Scope, productID int64) ([]Rule, error)
	GetRule(ctx context.Context, id uuid.UUID) (Rule, error)
	CreateRule(ctx context.Context, rule Rule) (Rule, error)
	UpdateRule(ctx context.Context, rule Rule) (Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	ListRules(ctx context.Context, filter ListFilter) ([]Rule, int64, error)
}

// Service manages contract rule writes. Quantity-range overlap within a
// scope/product pair is rejected here at write time; the store itself does
// not enforce it.
type Service struct {
	Rules  RuleStore
	Logger zerolog.Logger
}

// RuleInput carries the mutable fields of a contract rule.
type RuleInput struct {
	Scope         Scope
	ProductID     int64
	ContractPrice *decimal.Decimal
	MarkupPrice   *decimal.Decimal
	MinQuantity   int
	MaxQuantity   *int
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
}

// Create validates and persists a new contract rule.
func (s *Service) Create(ctx context.Context, input RuleInput) (Rule, error) {
	rule := ruleFromInput(input)
	if err := validateRule(rule); err != nil {
		return Rule{}, err
	}
	if err := s.checkOverlap(ctx, rule, uuid.Nil); err != nil {
		return Rule{}, err
	}
	created, err := s.Rules.CreateRule(ctx, rule)
	if err != nil {
		return Rule{}, fmt.Errorf("create rule: %w", err)
	}
	s.Logger.Info().
		Str("rule_id", created.ID.String()).
		Str("scope_kind", string(created.Scope.Kind)).
		Int64("product_id", created.ProductID).
		Msg("contract rule created")
	return created, nil
}

// Update validates and overwrites an existing rule. Scope and product are
// immutable; a rule moving to a different scope is a delete plus create.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input RuleInput) (Rule, error) {
	existing, err := s.Rules.GetRule(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	rule := ruleFromInput(input)
	rule.ID = existing.ID
	rule.Scope = existing.Scope
	rule.ProductID = existing.ProductID
	if err := validateRule(rule); err != nil {
		return Rule{}, err
	}
	if err := s.checkOverlap(ctx, rule, id); err != nil {
		return Rule{}, err
	}
	updated, err := s.Rules.UpdateRule(ctx, rule)
	if err != nil {
		return Rule{}, fmt.Errorf("update rule: %w", err)
	}
	return updated, nil
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.Rules.DeleteRule(ctx, id)
}

// Get fetches one rule.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Rule, error) {
	return s.Rules.GetRule(ctx, id)
}

// List returns a filtered page of rules plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Rule, int64, error) {
	return s.Rules.ListRules(ctx, filter)
}

func ruleFromInput(input RuleInput) Rule {
	return Rule{
		Scope:         input.Scope,
		ProductID:     input.ProductID,
		ContractPrice: input.ContractPrice,
		MarkupPrice:   input.MarkupPrice,
		MinQuantity:   input.MinQuantity,
		MaxQuantity:   input.MaxQuantity,
		EffectiveDate: input.EffectiveDate,
		ExpiryDate:    input.ExpiryDate,
	}
}

func validateRule(rule Rule) error {
	if !rule.Scope.Kind.Valid() {
		return validationError("scope", "scope kind must be individual, location or organization")
	}
	if rule.Scope.ID == uuid.Nil {
		return validationError("scope", "scope id is required")
	}
	if rule.ProductID <= 0 {
		return validationError("productId", "product id is required")
	}
	if !rule.HasPrice() {
		return validationError("price", "a contract price or markup price is required")
	}
	if rule.ContractPrice != nil && rule.ContractPrice.Sign() <= 0 {
		return validationError("contractPrice", "contract price must be positive")
	}
	if rule.MarkupPrice != nil && rule.MarkupPrice.Sign() <= 0 {
		return validationError("markupPrice", "markup price must be positive")
	}
	if rule.MinQuantity < 1 {
		return validationError("minQuantity", "minimum quantity must be at least 1")
	}
	if rule.MaxQuantity != nil && *rule.MaxQuantity < rule.MinQuantity {
		return validationError("maxQuantity", "maximum quantity must not be below minimum quantity")
	}
	if rule.EffectiveDate != nil && rule.ExpiryDate != nil && rule.ExpiryDate.Before(*rule.EffectiveDate) {
		return validationError("expiryDate", "expiry date must not precede effective date")
	}
	return nil
}

// checkOverlap rejects a rule whose quantity band intersects another rule
// for the same scope and product while both validity windows can be live at
// the same time.
func (s *Service) checkOverlap(ctx context.Context, rule Rule, selfID uuid.UUID) error {
	existing, err := s.Rules.RulesForScope(ctx, rule.Scope, rule.ProductID)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	for _, other := range existing {
		if other.ID == selfID {
			continue
		}
		if !other.HasPrice() {
			continue
		}
		if quantityRangesOverlap(rule, other) && validityWindowsOverlap(rule, other) {
			return &common.AppError{
				Code:       "RANGE_OVERLAP",
				Message:    "quantity range overlaps an existing rule for this scope and product",
				HTTPStatus: http.StatusConflict,
				Details: map[string]any{
					"conflictingRuleId": other.ID.String(),
					"minQuantity":       other.MinQuantity,
					"maxQuantity":       other.MaxQuantity,
				},
			}
		}
	}
	return nil
}

func quantityRangesOverlap(a, b Rule) bool {
	if a.MaxQuantity != nil && b.MinQuantity > *a.MaxQuantity {
		return false
	}
	if b.MaxQuantity != nil && a.MinQuantity > *b.MaxQuantity {
		return false
	}
	return true
}

func validityWindowsOverlap(a, b Rule) bool {
	if a.ExpiryDate != nil && b.EffectiveDate != nil && b.EffectiveDate.After(*a.ExpiryDate) {
		return false
	}
	if b.ExpiryDate != nil && a.EffectiveDate != nil && a.EffectiveDate.After(*b.ExpiryDate) {
		return false
	}
	return true
}

func validationError(field, message string) *common.AppError {
	return &common.AppError{
		Code:       "VALIDATION",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}
