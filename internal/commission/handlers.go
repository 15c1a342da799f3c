package commission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TexasJeff75/hs360-backend/internal/common"
)

// AdminStore is the persistence surface the admin endpoints need.
type AdminStore interface {
	List(ctx context.Context, status *Status, limit, offset int) ([]Record, int64, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Record, error)
}

// RecalcTrigger schedules an asynchronous recalculation run.
type RecalcTrigger interface {
	TriggerRecalculation(ctx context.Context) (string, error)
}

// Handler exposes the commission back-office endpoints.
type Handler struct {
	Store    AdminStore
	Trigger  RecalcTrigger
	MaxLimit int
}

type statusPayload struct {
	Status string `json:"status"`
}

type recordResponse struct {
	ID                    uuid.UUID  `json:"id"`
	OrderID               int64      `json:"orderId"`
	SalesRepID            uuid.UUID  `json:"salesRepId"`
	DistributorID         *uuid.UUID `json:"distributorId,omitempty"`
	OrganizationID        *uuid.UUID `json:"organizationId,omitempty"`
	CommissionRate        string     `json:"commissionRate"`
	SplitRate             *string    `json:"splitRate,omitempty"`
	SplitType             string     `json:"splitType"`
	Status                string     `json:"status"`
	MarginDetails         []Line     `json:"marginDetails"`
	ProductMargin         string     `json:"productMargin"`
	CommissionAmount      string     `json:"commissionAmount"`
	SalesRepCommission    *string    `json:"salesRepCommission,omitempty"`
	DistributorCommission *string    `json:"distributorCommission,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Routes mounts the commission endpoints. The caller wraps the router with
// the admin role guard.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/recalculate", h.TriggerRecalculate)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// List returns a page of commission records, optionally filtered by status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var status *Status
	if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" {
		s := Status(v)
		if !s.Valid() {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid status filter", nil)
			return
		}
		status = &s
	}
	page, perPage := common.ParsePagination(r, 20, h.MaxLimit)
	records, total, err := h.Store.List(r.Context(), status, perPage, (page-1)*perPage)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	items := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toRecordResponse(rec))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get fetches one commission record.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	rec, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.renderStoreError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toRecordResponse(rec)})
}

// UpdateStatus moves a record through the payout workflow. Invalid
// transitions are rejected with a conflict.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	var payload statusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	next := Status(strings.TrimSpace(payload.Status))
	if !next.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid status", nil)
		return
	}
	current, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.renderStoreError(w, err)
		return
	}
	if !current.Status.CanTransitionTo(next) {
		common.JSONError(w, http.StatusConflict, "INVALID_TRANSITION",
			"status transition not permitted", map[string]any{
				"from": string(current.Status),
				"to":   string(next),
			})
		return
	}
	updated, err := h.Store.UpdateStatus(r.Context(), id, next)
	if err != nil {
		h.renderStoreError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toRecordResponse(updated)})
}

// TriggerRecalculate schedules a background recalculation run.
func (h *Handler) TriggerRecalculate(w http.ResponseWriter, r *http.Request) {
	if h.Trigger == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "recalculation trigger not configured", nil)
		return
	}
	taskID, err := h.Trigger.TriggerRecalculation(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]string{"taskId": taskID}})
}

func (h *Handler) renderStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrRecordNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "commission record not found", nil)
		return
	}
	common.RenderError(w, err)
}

func toRecordResponse(rec Record) recordResponse {
	resp := recordResponse{
		ID:               rec.ID,
		OrderID:          rec.OrderID,
		SalesRepID:       rec.SalesRepID,
		DistributorID:    rec.DistributorID,
		OrganizationID:   rec.OrganizationID,
		CommissionRate:   rec.CommissionRate.StringFixed(2),
		SplitType:        string(rec.SplitType),
		Status:           string(rec.Status),
		MarginDetails:    rec.MarginDetails,
		ProductMargin:    rec.ProductMargin.StringFixed(2),
		CommissionAmount: rec.CommissionAmount.StringFixed(2),
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if rec.MarginDetails == nil {
		resp.MarginDetails = []Line{}
	}
	if rec.SplitRate != nil {
		s := rec.SplitRate.StringFixed(2)
		resp.SplitRate = &s
	}
	if rec.SalesRepCommission != nil {
		s := rec.SalesRepCommission.StringFixed(2)
		resp.SalesRepCommission = &s
	}
	if rec.DistributorCommission != nil {
		s := rec.DistributorCommission.StringFixed(2)
		resp.DistributorCommission = &s
	}
	return resp
}

func parseRecordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid record id", nil)
		return uuid.Nil, false
	}
	return id, true
}
