package commission

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status tracks a commission record through the payout workflow. The workflow
// is separate from recalculation, which only corrects margin figures.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is a known workflow state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the workflow permits moving to next.
// Pending records can be approved or cancelled, approved records paid or
// cancelled. Paid and cancelled are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusCancelled
	case StatusApproved:
		return next == StatusPaid || next == StatusCancelled
	default:
		return false
	}
}

// SplitType selects how commission is divided between a sales rep and their
// distributor.
type SplitType string

const (
	// SplitPercentageOfDistributor pays the rep a percentage of the total
	// commission; the distributor keeps the remainder.
	SplitPercentageOfDistributor SplitType = "percentage_of_distributor"
	// SplitFixedWithOverride pays the base commission to the distributor and
	// the markup commission to the rep.
	SplitFixedWithOverride SplitType = "fixed_with_override"
)

// Valid reports whether the split type is known.
func (t SplitType) Valid() bool {
	return t == SplitPercentageOfDistributor || t == SplitFixedWithOverride
}

// Line is one order line inside a commission record's margin details. Price
// is what the buyer paid per unit, RetailPrice the pre-markup reference and
// Cost the acquisition cost snapshot the margin was computed against.
type Line struct {
	ProductID   int64           `json:"productId" validate:"required,gt=0"`
	VariantID   *int64          `json:"variantId,omitempty"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	RetailPrice decimal.Decimal `json:"retailPrice"`
	Cost        decimal.Decimal `json:"cost"`
	Quantity    int             `json:"quantity" validate:"required,gte=1"`
	HasMarkup   bool            `json:"hasMarkup"`
}

// Record is the per-order commission ledger entry.
type Record struct {
	ID                    uuid.UUID
	OrderID               int64
	SalesRepID            uuid.UUID
	DistributorID         *uuid.UUID
	OrganizationID        *uuid.UUID
	CommissionRate        decimal.Decimal
	SplitRate             *decimal.Decimal
	SplitType             SplitType
	Status                Status
	MarginDetails         []Line
	ProductMargin         decimal.Decimal
	CommissionAmount      decimal.Decimal
	SalesRepCommission    *decimal.Decimal
	DistributorCommission *decimal.Decimal
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ValidateLines checks deserialized margin details before they reach the
// math. Malformed external JSON is rejected here, not defaulted.
func ValidateLines(v *validator.Validate, lines []Line) error {
	for i, line := range lines {
		if err := v.Struct(line); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		if line.Price.Sign() < 0 || line.RetailPrice.Sign() < 0 || line.Cost.Sign() < 0 {
			return fmt.Errorf("line %d: negative monetary value", i)
		}
	}
	return nil
}
