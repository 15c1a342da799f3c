package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
	"github.com/TexasJeff75/hs360-backend/internal/obs"
)

// ScopeKind distinguishes the entity level a contract rule applies to.
type ScopeKind string

const (
	// ScopeIndividual targets a single user.
	ScopeIndividual ScopeKind = "individual"
	// ScopeLocation targets every user ordering for a location.
	ScopeLocation ScopeKind = "location"
	// ScopeOrganization targets every location of an organization.
	ScopeOrganization ScopeKind = "organization"
)

// Valid reports whether the kind is one of the three known scope levels.
func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeIndividual, ScopeLocation, ScopeOrganization:
		return true
	default:
		return false
	}
}

// Scope identifies the entity a contract rule is negotiated for.
type Scope struct {
	Kind ScopeKind
	ID   uuid.UUID
}

// Rule is a contract-price override. ContractPrice discounts below the
// catalog price; MarkupPrice sells above it with the excess credited to the
// selling rep. At least one of the two must be set for the rule to apply.
type Rule struct {
	ID            uuid.UUID
	Scope         Scope
	ProductID     int64
	ContractPrice *decimal.Decimal
	MarkupPrice   *decimal.Decimal
	MinQuantity   int
	MaxQuantity   *int
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPrice reports whether the rule carries at least one price. Rules
// without any price are data-entry damage and never match.
func (r Rule) HasPrice() bool {
	return r.ContractPrice != nil || r.MarkupPrice != nil
}

// Matches reports whether the rule covers the quantity at the given instant.
// Quantity bounds and the validity window are both inclusive.
func (r Rule) Matches(quantity int, asOf time.Time) bool {
	if !r.HasPrice() {
		return false
	}
	if quantity < r.MinQuantity {
		return false
	}
	if r.MaxQuantity != nil && quantity > *r.MaxQuantity {
		return false
	}
	if r.EffectiveDate != nil && asOf.Before(*r.EffectiveDate) {
		return false
	}
	if r.ExpiryDate != nil && asOf.After(*r.ExpiryDate) {
		return false
	}
	return true
}

// QuoteSource names the precedence tier that produced a quote.
type QuoteSource string

const (
	SourceIndividual   QuoteSource = "individual"
	SourceLocation     QuoteSource = "location"
	SourceOrganization QuoteSource = "organization"
	SourceBase         QuoteSource = "base"
)

// Quote is the resolved price for one product and quantity. RetailPrice is
// the pre-override reference price; UnitPrice is what the buyer pays. When
// HasMarkup is true UnitPrice exceeds RetailPrice and the excess is
// commission-eligible at 100% to the selling rep.
type Quote struct {
	ProductID   int64           `json:"productId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	RetailPrice decimal.Decimal `json:"retailPrice"`
	HasMarkup   bool            `json:"hasMarkup"`
	Source      QuoteSource     `json:"source"`
}

// Requester identifies who is asking for a price. Location and organization
// are optional; their tiers are skipped when absent.
type Requester struct {
	UserID         uuid.UUID
	LocationID     *uuid.UUID
	OrganizationID *uuid.UUID
}

// RuleSource loads contract rules for one scope and product.
type RuleSource interface {
	RulesForScope(ctx context.Context, scope Scope, productID int64) ([]Rule, error)
}

// ProductSource looks up catalog products for base price resolution.
type ProductSource interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// Engine resolves effective prices by walking the contract hierarchy:
// individual, then location, then organization, then the catalog base price.
// The first tier with a matching rule wins.
type Engine struct {
	Rules   RuleSource
	Catalog ProductSource
}

// Resolve determines the price the requester pays for quantity units of the
// product at the given instant. An unknown product is an error, never a zero
// price.
func (e Engine) Resolve(ctx context.Context, productID int64, quantity int, req Requester, asOf time.Time) (Quote, error) {
	if quantity < 1 {
		quantity = 1
	}
	product, err := e.Catalog.GetProduct(ctx, productID)
	if err != nil {
		recordResolution("", "error")
		return Quote{}, err
	}

	for _, tier := range req.tiers() {
		rule, ok, err := e.matchTier(ctx, tier.scope, productID, quantity, asOf)
		if err != nil {
			recordResolution(string(tier.source), "error")
			return Quote{}, fmt.Errorf("pricing: load %s rules: %w", tier.scope.Kind, err)
		}
		if !ok {
			continue
		}
		quote := applyRule(rule, product.Price)
		quote.ProductID = productID
		quote.Quantity = quantity
		quote.Source = tier.source
		recordResolution(string(tier.source), "success")
		return quote, nil
	}

	recordResolution(string(SourceBase), "success")
	return Quote{
		ProductID:   productID,
		Quantity:    quantity,
		UnitPrice:   product.Price,
		RetailPrice: product.Price,
		HasMarkup:   false,
		Source:      SourceBase,
	}, nil
}

type tier struct {
	scope  Scope
	source QuoteSource
}

func (req Requester) tiers() []tier {
	tiers := make([]tier, 0, 3)
	if req.UserID != uuid.Nil {
		tiers = append(tiers, tier{Scope{ScopeIndividual, req.UserID}, SourceIndividual})
	}
	if req.LocationID != nil {
		tiers = append(tiers, tier{Scope{ScopeLocation, *req.LocationID}, SourceLocation})
	}
	if req.OrganizationID != nil {
		tiers = append(tiers, tier{Scope{ScopeOrganization, *req.OrganizationID}, SourceOrganization})
	}
	return tiers
}

func (e Engine) matchTier(ctx context.Context, scope Scope, productID int64, quantity int, asOf time.Time) (Rule, bool, error) {
	rules, err := e.Rules.RulesForScope(ctx, scope, productID)
	if err != nil {
		return Rule{}, false, err
	}
	matches := rules[:0:0]
	for _, rule := range rules {
		if rule.Matches(quantity, asOf) {
			matches = append(matches, rule)
		}
	}
	if len(matches) == 0 {
		return Rule{}, false, nil
	}
	return pickRule(matches), true, nil
}

// pickRule deterministically selects a winner among overlapping rules.
// Write-time validation rejects overlaps, but pre-existing data may still
// carry them: the tightest band wins (smallest MinQuantity), and among equal
// bands the most recently created rule wins.
func pickRule(rules []Rule) Rule {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].MinQuantity != rules[j].MinQuantity {
			return rules[i].MinQuantity < rules[j].MinQuantity
		}
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})
	return rules[0]
}

func applyRule(rule Rule, catalogPrice decimal.Decimal) Quote {
	if rule.MarkupPrice != nil {
		retail := catalogPrice
		if rule.ContractPrice != nil {
			retail = *rule.ContractPrice
		}
		return Quote{
			UnitPrice:   *rule.MarkupPrice,
			RetailPrice: retail,
			HasMarkup:   true,
		}
	}
	return Quote{
		UnitPrice:   *rule.ContractPrice,
		RetailPrice: *rule.ContractPrice,
		HasMarkup:   false,
	}
}

func recordResolution(source, result string) {
	if obs.PriceResolutionsTotal == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	obs.PriceResolutionsTotal.WithLabelValues(source, result).Inc()
}
