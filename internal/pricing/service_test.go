package pricing_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/TexasJeff75/hs360-backend/internal/common"
	"github.com/TexasJeff75/hs360-backend/internal/pricing"
)

type memoryRuleStore struct {
	rules map[uuid.UUID]pricing.Rule
}

func newMemoryRuleStore(rules ...pricing.Rule) *memoryRuleStore {
	store := &memoryRuleStore{rules: make(map[uuid.UUID]pricing.Rule)}
	for _, rule := range rules {
		store.rules[rule.ID] = rule
	}
	return store
}

func (m *memoryRuleStore) RulesForScope(_ context.Context, scope pricing.Scope, productID int64) ([]pricing.Rule, error) {
	var out []pricing.Rule
	for _, rule := range m.rules {
		if rule.Scope == scope && rule.ProductID == productID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *memoryRuleStore) GetRule(_ context.Context, id uuid.UUID) (pricing.Rule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return pricing.Rule{}, pricing.ErrRuleNotFound
	}
	return rule, nil
}

func (m *memoryRuleStore) CreateRule(_ context.Context, rule pricing.Rule) (pricing.Rule, error) {
	rule.ID = uuid.New()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memoryRuleStore) UpdateRule(_ context.Context, rule pricing.Rule) (pricing.Rule, error) {
	existing, ok := m.rules[rule.ID]
	if !ok {
		return pricing.Rule{}, pricing.ErrRuleNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memoryRuleStore) DeleteRule(_ context.Context, id uuid.UUID) error {
	if _, ok := m.rules[id]; !ok {
		return pricing.ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memoryRuleStore) ListRules(_ context.Context, _ pricing.ListFilter) ([]pricing.Rule, int64, error) {
	var out []pricing.Rule
	for _, rule := range m.rules {
		out = append(out, rule)
	}
	return out, int64(len(out)), nil
}

func newService(store pricing.RuleStore) *pricing.Service {
	return &pricing.Service{Rules: store, Logger: zerolog.Nop()}
}

func validInput(scope pricing.Scope) pricing.RuleInput {
	return pricing.RuleInput{
		Scope:         scope,
		ProductID:     productID,
		ContractPrice: decPtr("70"),
		MinQuantity:   5,
		MaxQuantity:   intPtr(10),
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: uuid.New()}
	existing := discountRule(scope, "80", 8, intPtr(20))
	svc := newService(newMemoryRuleStore(existing))

	_, err := svc.Create(context.Background(), validInput(scope))
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "RANGE_OVERLAP", appErr.Code)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestCreateAllowsDisjointRanges(t *testing.T) {
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: uuid.New()}
	existing := discountRule(scope, "80", 11, intPtr(20))
	svc := newService(newMemoryRuleStore(existing))

	created, err := svc.Create(context.Background(), validInput(scope))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
}

func TestCreateAllowsOverlapInDisjointWindows(t *testing.T) {
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: uuid.New()}
	past := discountRule(scope, "80", 5, intPtr(10))
	effective := asOf.Add(-72 * time.Hour)
	expiry := asOf.Add(-48 * time.Hour)
	past.EffectiveDate = &effective
	past.ExpiryDate = &expiry
	svc := newService(newMemoryRuleStore(past))

	input := validInput(scope)
	start := asOf.Add(-time.Hour)
	input.EffectiveDate = &start

	_, err := svc.Create(context.Background(), input)
	require.NoError(t, err, "same quantity band in a non-overlapping window is allowed")
}

func TestCreateValidation(t *testing.T) {
	scope := pricing.Scope{Kind: pricing.ScopeIndividual, ID: uuid.New()}
	svc := newService(newMemoryRuleStore())

	t.Run("requires a price", func(t *testing.T) {
		input := validInput(scope)
		input.ContractPrice = nil
		_, err := svc.Create(context.Background(), input)
		appErr, ok := common.AsAppError(err)
		require.True(t, ok)
		require.Equal(t, "VALIDATION", appErr.Code)
	})

	t.Run("rejects inverted quantity band", func(t *testing.T) {
		input := validInput(scope)
		input.MaxQuantity = intPtr(2)
		_, err := svc.Create(context.Background(), input)
		require.Error(t, err)
	})

	t.Run("rejects inverted validity window", func(t *testing.T) {
		input := validInput(scope)
		start := asOf
		end := asOf.Add(-time.Hour)
		input.EffectiveDate = &start
		input.ExpiryDate = &end
		_, err := svc.Create(context.Background(), input)
		require.Error(t, err)
	})

	t.Run("rejects unknown scope kind", func(t *testing.T) {
		input := validInput(pricing.Scope{Kind: "galaxy", ID: uuid.New()})
		_, err := svc.Create(context.Background(), input)
		require.Error(t, err)
	})
}

func TestUpdateExcludesSelfFromOverlapCheck(t *testing.T) {
	scope := pricing.Scope{Kind: pricing.ScopeLocation, ID: uuid.New()}
	store := newMemoryRuleStore()
	svc := newService(store)

	created, err := svc.Create(context.Background(), validInput(scope))
	require.NoError(t, err)

	input := validInput(scope)
	input.ContractPrice = decPtr("65")
	updated, err := svc.Update(context.Background(), created.ID, input)
	require.NoError(t, err)
	require.True(t, updated.ContractPrice.Equal(dec("65")))
}

func TestUpdateKeepsScopeAndProduct(t *testing.T) {
	scope := pricing.Scope{Kind: pricing.ScopeOrganization, ID: uuid.New()}
	store := newMemoryRuleStore()
	svc := newService(store)

	created, err := svc.Create(context.Background(), validInput(scope))
	require.NoError(t, err)

	input := validInput(pricing.Scope{Kind: pricing.ScopeIndividual, ID: uuid.New()})
	input.ProductID = 777
	updated, err := svc.Update(context.Background(), created.ID, input)
	require.NoError(t, err)
	require.Equal(t, scope, updated.Scope)
	require.Equal(t, productID, updated.ProductID)
}
