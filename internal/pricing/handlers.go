package pricing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
	"github.com/TexasJeff75/hs360-backend/internal/common"
)

// Handler exposes price resolution and contract rule management endpoints.
type Handler struct {
	Engine   Engine
	Svc      *Service
	Validate *validator.Validate
	MaxLimit int
}

type quoteRequest struct {
	ProductID int64             `json:"productId" validate:"required,gt=0"`
	Quantity  int               `json:"quantity" validate:"required,gte=1"`
	Requester *requesterPayload `json:"requester"`
	AsOf      *time.Time        `json:"asOf"`
}

type requesterPayload struct {
	UserID         string  `json:"userId" validate:"required,uuid"`
	LocationID     *string `json:"locationId"`
	OrganizationID *string `json:"organizationId"`
}

type rulePayload struct {
	ScopeKind     string     `json:"scopeKind" validate:"required,oneof=individual location organization"`
	ScopeID       string     `json:"scopeId" validate:"required,uuid"`
	ProductID     int64      `json:"productId" validate:"required,gt=0"`
	ContractPrice *string    `json:"contractPrice"`
	MarkupPrice   *string    `json:"markupPrice"`
	MinQuantity   int        `json:"minQuantity" validate:"gte=0"`
	MaxQuantity   *int       `json:"maxQuantity"`
	EffectiveDate *time.Time `json:"effectiveDate"`
	ExpiryDate    *time.Time `json:"expiryDate"`
}

type ruleResponse struct {
	ID            uuid.UUID  `json:"id"`
	ScopeKind     string     `json:"scopeKind"`
	ScopeID       uuid.UUID  `json:"scopeId"`
	ProductID     int64      `json:"productId"`
	ContractPrice *string    `json:"contractPrice,omitempty"`
	MarkupPrice   *string    `json:"markupPrice,omitempty"`
	MinQuantity   int        `json:"minQuantity"`
	MaxQuantity   *int       `json:"maxQuantity,omitempty"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty"`
	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// RuleRoutes mounts the contract price management endpoints. The caller
// applies authentication and role guards; Quote is mounted separately so the
// storefront path can carry its own middleware.
func (h *Handler) RuleRoutes(r chi.Router) {
	r.Get("/", h.ListRules)
	r.Post("/", h.CreateRule)
	r.Get("/{id}", h.GetRule)
	r.Put("/{id}", h.UpdateRule)
	r.Delete("/{id}", h.DeleteRule)
}

// Quote resolves the effective price for a product and quantity. The
// requester defaults to the authenticated actor when omitted.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid quote request", validationDetails(err))
		return
	}
	requester, err := h.resolveRequester(r, req.Requester)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	asOf := time.Now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	quote, err := h.Engine.Resolve(r.Context(), req.ProductID, req.Quantity, requester, asOf)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

// CreateRule inserts a contract rule after overlap validation.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeRuleInput(w, r)
	if !ok {
		return
	}
	rule, err := h.Svc.Create(r.Context(), input)
	if err != nil {
		h.renderRuleError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toRuleResponse(rule)})
}

// UpdateRule overwrites a contract rule's prices, quantity band and window.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeRuleInput(w, r)
	if !ok {
		return
	}
	rule, err := h.Svc.Update(r.Context(), id, input)
	if err != nil {
		h.renderRuleError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toRuleResponse(rule)})
}

// GetRule fetches one contract rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	rule, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.renderRuleError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toRuleResponse(rule)})
}

// DeleteRule removes a contract rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		h.renderRuleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRules returns a filtered page of contract rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if v := strings.TrimSpace(r.URL.Query().Get("scopeKind")); v != "" {
		kind := ScopeKind(v)
		if !kind.Valid() {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid scope kind", nil)
			return
		}
		filter.ScopeKind = &kind
	}
	if v := strings.TrimSpace(r.URL.Query().Get("scopeId")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid scope id", nil)
			return
		}
		filter.ScopeID = &id
	}
	if v := strings.TrimSpace(r.URL.Query().Get("productId")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
			return
		}
		filter.ProductID = &id
	}
	page, perPage := common.ParsePagination(r, 20, h.MaxLimit)
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	rules, total, err := h.Svc.List(r.Context(), filter)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	items := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, toRuleResponse(rule))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

func (h *Handler) decodeRuleInput(w http.ResponseWriter, r *http.Request) (RuleInput, bool) {
	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return RuleInput{}, false
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid rule payload", validationDetails(err))
		return RuleInput{}, false
	}
	scopeID, err := uuid.Parse(payload.ScopeID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid scope id", nil)
		return RuleInput{}, false
	}
	contractPrice, err := parsePrice(payload.ContractPrice)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid contract price", nil)
		return RuleInput{}, false
	}
	markupPrice, err := parsePrice(payload.MarkupPrice)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid markup price", nil)
		return RuleInput{}, false
	}
	minQuantity := payload.MinQuantity
	if minQuantity == 0 {
		minQuantity = 1
	}
	return RuleInput{
		Scope:         Scope{Kind: ScopeKind(payload.ScopeKind), ID: scopeID},
		ProductID:     payload.ProductID,
		ContractPrice: contractPrice,
		MarkupPrice:   markupPrice,
		MinQuantity:   minQuantity,
		MaxQuantity:   payload.MaxQuantity,
		EffectiveDate: payload.EffectiveDate,
		ExpiryDate:    payload.ExpiryDate,
	}, true
}

// resolveRequester derives the quoted party. The default is the token's own
// claims; an explicit requester payload is an override reserved for admins
// and sales reps, since contract prices are negotiated per scope and must
// not leak across requesters.
func (h *Handler) resolveRequester(r *http.Request, payload *requesterPayload) (Requester, error) {
	actor, hasActor := common.ActorFromContext(r.Context())
	if payload == nil {
		if !hasActor {
			return Requester{}, common.NewAppError("BAD_REQUEST", "requester is required", http.StatusBadRequest, nil)
		}
		return Requester{
			UserID:         actor.UserID,
			LocationID:     actor.LocationID,
			OrganizationID: actor.OrganizationID,
		}, nil
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return Requester{}, common.NewAppError("BAD_REQUEST", "invalid requester user id", http.StatusBadRequest, err)
	}
	requester := Requester{UserID: userID}
	if payload.LocationID != nil && strings.TrimSpace(*payload.LocationID) != "" {
		id, err := uuid.Parse(*payload.LocationID)
		if err != nil {
			return Requester{}, common.NewAppError("BAD_REQUEST", "invalid requester location id", http.StatusBadRequest, err)
		}
		requester.LocationID = &id
	}
	if payload.OrganizationID != nil && strings.TrimSpace(*payload.OrganizationID) != "" {
		id, err := uuid.Parse(*payload.OrganizationID)
		if err != nil {
			return Requester{}, common.NewAppError("BAD_REQUEST", "invalid requester organization id", http.StatusBadRequest, err)
		}
		requester.OrganizationID = &id
	}
	if !hasActor {
		return Requester{}, common.NewAppError("UNAUTHORIZED", "authentication required to quote for a requester", http.StatusUnauthorized, nil)
	}
	if actor.HasRole("admin") || actor.HasRole("sales_rep") {
		return requester, nil
	}
	if requester.UserID != actor.UserID ||
		!claimMatches(requester.LocationID, actor.LocationID) ||
		!claimMatches(requester.OrganizationID, actor.OrganizationID) {
		return Requester{}, common.NewAppError("FORBIDDEN", "requester does not match token claims", http.StatusForbidden, nil)
	}
	return requester, nil
}

// claimMatches accepts an omitted scope and otherwise requires it to equal
// the actor's own claim.
func claimMatches(supplied, claim *uuid.UUID) bool {
	if supplied == nil {
		return true
	}
	return claim != nil && *supplied == *claim
}

func (h *Handler) renderRuleError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrRuleNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "rule not found", nil)
		return
	}
	common.RenderError(w, err)
}

func toRuleResponse(rule Rule) ruleResponse {
	resp := ruleResponse{
		ID:            rule.ID,
		ScopeKind:     string(rule.Scope.Kind),
		ScopeID:       rule.Scope.ID,
		ProductID:     rule.ProductID,
		MinQuantity:   rule.MinQuantity,
		MaxQuantity:   rule.MaxQuantity,
		EffectiveDate: rule.EffectiveDate,
		ExpiryDate:    rule.ExpiryDate,
		CreatedAt:     rule.CreatedAt,
		UpdatedAt:     rule.UpdatedAt,
	}
	if rule.ContractPrice != nil {
		s := rule.ContractPrice.StringFixed(2)
		resp.ContractPrice = &s
	}
	if rule.MarkupPrice != nil {
		s := rule.MarkupPrice.StringFixed(2)
		resp.MarkupPrice = &s
	}
	return resp
}

func parsePrice(raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid rule id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
