package pricing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
	"github.com/TexasJeff75/hs360-backend/internal/pricing"
)

type fakeRules struct {
	rules map[pricing.Scope][]pricing.Rule
	err   error
}

func (f fakeRules) RulesForScope(_ context.Context, scope pricing.Scope, productID int64) ([]pricing.Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []pricing.Rule
	for _, rule := range f.rules[scope] {
		if rule.ProductID == productID {
			out = append(out, rule)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	products map[int64]catalog.Product
}

func (f fakeCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return product, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int { return &v }

const productID = int64(42)

var asOf = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newEngine(rules map[pricing.Scope][]pricing.Rule) pricing.Engine {
	return pricing.Engine{
		Rules: fakeRules{rules: rules},
		Catalog: fakeCatalog{products: map[int64]catalog.Product{
			productID: {ID: productID, Price: dec("100")},
		}},
	}
}

func discountRule(scope pricing.Scope, price string, minQty int, maxQty *int) pricing.Rule {
	return pricing.Rule{
		ID:            uuid.New(),
		Scope:         scope,
		ProductID:     productID,
		ContractPrice: decPtr(price),
		MinQuantity:   minQty,
		MaxQuantity:   maxQty,
		CreatedAt:     asOf.Add(-24 * time.Hour),
	}
}

func TestResolvePrecedence(t *testing.T) {
	userID := uuid.New()
	locationID := uuid.New()
	orgID := uuid.New()

	individual := pricing.Scope{Kind: pricing.ScopeIndividual, ID: userID}
	location := pricing.Scope{Kind: pricing.ScopeLocation, ID: locationID}
	organization := pricing.Scope{Kind: pricing.ScopeOrganization, ID: orgID}

	engine := newEngine(map[pricing.Scope][]pricing.Rule{
		individual:   {discountRule(individual, "70", 1, nil)},
		location:     {discountRule(location, "80", 1, nil)},
		organization: {discountRule(organization, "90", 1, nil)},
	})
	requester := pricing.Requester{UserID: userID, LocationID: &locationID, OrganizationID: &orgID}

	quote, err := engine.Resolve(context.Background(), productID, 3, requester, asOf)
	require.NoError(t, err)
	require.Equal(t, pricing.SourceIndividual, quote.Source)
	require.True(t, quote.UnitPrice.Equal(dec("70")))

	// Without an individual rule the location tier wins over the organization.
	engine = newEngine(map[pricing.Scope][]pricing.Rule{
		location:     {discountRule(location, "80", 1, nil)},
		organization: {discountRule(organization, "90", 1, nil)},
	})
	quote, err = engine.Resolve(context.Background(), productID, 3, requester, asOf)
	require.NoError(t, err)
	require.Equal(t, pricing.SourceLocation, quote.Source)
	require.True(t, quote.UnitPrice.Equal(dec("80")))

	engine = newEngine(map[pricing.Scope][]pricing.Rule{
		organization: {discountRule(organization, "90", 1, nil)},
	})
	quote, err = engine.Resolve(context.Background(), productID, 3, requester, asOf)
	require.NoError(t, err)
	require.Equal(t, pricing.SourceOrganization, quote.Source)
	require.True(t, quote.UnitPrice.Equal(dec("90")))
}

func TestResolveBaseFallback(t *testing.T) {
	engine := newEngine(nil)
	requester := pricing.Requester{UserID: uuid.New()}

	quote, err := engine.Resolve(context.Background(), productID, 1, requester, asOf)
	require.NoError(t, err)
	require.Equal(t, pricing.SourceBase, quote.Source)
	require.True(t, quote.UnitPrice.Equal(dec("100")))
	require.True(t, quote.RetailPrice.Equal(dec("100")))
	require.False(t, quote.HasMarkup)
}

func TestResolveQuantityBoundaries(t *testing.T) {
	userID := uuid.New()
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: userID}
	engine := newEngine(map[pricing.Scope][]pricing.Rule{
		scope: {discountRule(scope, "70", 5, intPtr(10))},
	})
	requester := pricing.Requester{UserID: userID}

	cases := []struct {
		quantity int
		source   pricing.QuoteSource
	}{
		{4, pricing.SourceBase},
		{5, pricing.SourceIndividual},
		{10, pricing.SourceIndividual},
		{11, pricing.SourceBase},
	}
	for _, tc := range cases {
		quote, err := engine.Resolve(context.Background(), productID, tc.quantity, requester, asOf)
		require.NoError(t, err)
		require.Equal(t, tc.source, quote.Source, "quantity %d", tc.quantity)
	}
}

func TestResolveMarkup(t *testing.T) {
	userID := uuid.New()
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: userID}
	markup := pricing.Rule{
		ID:          uuid.New(),
		Scope:       scope,
		ProductID:   productID,
		MarkupPrice: decPtr("120"),
		MinQuantity: 1,
		CreatedAt:   asOf.Add(-time.Hour),
	}
	engine := newEngine(map[pricing.Scope][]pricing.Rule{scope: {markup}})

	quote, err := engine.Resolve(context.Background(), productID, 1, pricing.Requester{UserID: userID}, asOf)
	require.NoError(t, err)
	require.True(t, quote.UnitPrice.Equal(dec("120")))
	require.True(t, quote.RetailPrice.Equal(dec("100")), "retail falls back to the catalog price")
	require.True(t, quote.HasMarkup)

	// With a contract price alongside, retail is the contract price.
	markup.ContractPrice = decPtr("95")
	engine = newEngine(map[pricing.Scope][]pricing.Rule{scope: {markup}})
	quote, err = engine.Resolve(context.Background(), productID, 1, pricing.Requester{UserID: userID}, asOf)
	require.NoError(t, err)
	require.True(t, quote.UnitPrice.Equal(dec("120")))
	require.True(t, quote.RetailPrice.Equal(dec("95")))
	require.True(t, quote.HasMarkup)
}

func TestResolveValidityWindow(t *testing.T) {
	userID := uuid.New()
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: userID}
	effective := asOf.Add(-48 * time.Hour)
	expiry := asOf.Add(-24 * time.Hour)
	expired := discountRule(scope, "70", 1, nil)
	expired.EffectiveDate = &effective
	expired.ExpiryDate = &expiry
	engine := newEngine(map[pricing.Scope][]pricing.Rule{scope: {expired}})

	quote, err := engine.Resolve(context.Background(), productID, 1, pricing.Requester{UserID: userID}, asOf)
	require.NoError(t, err)
	require.Equal(t, pricing.SourceBase, quote.Source)

	// Boundary instants are inclusive on both ends.
	quote, err = engine.Resolve(context.Background(), productID, 1, pricing.Requester{UserID: userID}, expiry)
	require.NoError(t, err)
	require.Equal(t, pricing.SourceIndividual, quote.Source)
}

func TestResolveSkipsRulesWithoutPrice(t *testing.T) {
	userID := uuid.New()
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: userID}
	broken := pricing.Rule{ID: uuid.New(), Scope: scope, ProductID: productID, MinQuantity: 1, CreatedAt: asOf}
	engine := newEngine(map[pricing.Scope][]pricing.Rule{scope: {broken}})

	quote, err := engine.Resolve(context.Background(), productID, 1, pricing.Requester{UserID: userID}, asOf)
	require.NoError(t, err)
	require.Equal(t, pricing.SourceBase, quote.Source)
}

func TestResolveOverlapTieBreak(t *testing.T) {
	userID := uuid.New()
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: userID}

	wide := discountRule(scope, "85", 1, intPtr(100))
	wide.CreatedAt = asOf.Add(-48 * time.Hour)
	tight := discountRule(scope, "75", 5, intPtr(10))
	tight.CreatedAt = asOf.Add(-24 * time.Hour)
	newest := discountRule(scope, "70", 5, intPtr(10))
	newest.CreatedAt = asOf.Add(-time.Hour)

	engine := newEngine(map[pricing.Scope][]pricing.Rule{scope: {tight, newest, wide}})

	// Smallest minimum quantity wins first.
	quote, err := engine.Resolve(context.Background(), productID, 7, pricing.Requester{UserID: userID}, asOf)
	require.NoError(t, err)
	require.True(t, quote.UnitPrice.Equal(dec("85")))

	// Among equal bands the most recently created rule wins.
	engine = newEngine(map[pricing.Scope][]pricing.Rule{scope: {tight, newest}})
	quote, err = engine.Resolve(context.Background(), productID, 7, pricing.Requester{UserID: userID}, asOf)
	require.NoError(t, err)
	require.True(t, quote.UnitPrice.Equal(dec("70")))
}

func TestResolveUnknownProduct(t *testing.T) {
	engine := newEngine(nil)
	_, err := engine.Resolve(context.Background(), 999, 1, pricing.Requester{UserID: uuid.New()}, asOf)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestResolveRuleSourceFailure(t *testing.T) {
	engine := pricing.Engine{
		Rules: fakeRules{err: errors.New("boom")},
		Catalog: fakeCatalog{products: map[int64]catalog.Product{
			productID: {ID: productID, Price: dec("100")},
		}},
	}
	_, err := engine.Resolve(context.Background(), productID, 1, pricing.Requester{UserID: uuid.New()}, asOf)
	require.Error(t, err)
}
