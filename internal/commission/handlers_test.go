package commission_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/TexasJeff75/hs360-backend/internal/commission"
)

type fakeAdminStore struct {
	records map[uuid.UUID]commission.Record
}

func (f *fakeAdminStore) List(_ context.Context, status *commission.Status, _, _ int) ([]commission.Record, int64, error) {
	var out []commission.Record
	for _, rec := range f.records {
		if status == nil || rec.Status == *status {
			out = append(out, rec)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAdminStore) Get(_ context.Context, id uuid.UUID) (commission.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return commission.Record{}, commission.ErrRecordNotFound
	}
	return rec, nil
}

func (f *fakeAdminStore) UpdateStatus(_ context.Context, id uuid.UUID, status commission.Status) (commission.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return commission.Record{}, commission.ErrRecordNotFound
	}
	rec.Status = status
	f.records[id] = rec
	return rec, nil
}

type fakeTrigger struct {
	taskID string
	err    error
	calls  int
}

func (f *fakeTrigger) TriggerRecalculation(context.Context) (string, error) {
	f.calls++
	return f.taskID, f.err
}

func newTestRouter(store *fakeAdminStore, trigger commission.RecalcTrigger) http.Handler {
	handler := &commission.Handler{Store: store, Trigger: trigger, MaxLimit: 100}
	r := chi.NewRouter()
	r.Route("/commissions", handler.Routes)
	return r
}

func TestUpdateStatusEndpoint(t *testing.T) {
	rec := baseRecord(markupLine())
	store := &fakeAdminStore{records: map[uuid.UUID]commission.Record{rec.ID: rec}}
	router := newTestRouter(store, nil)

	t.Run("valid transition", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/commissions/"+rec.ID.String()+"/status",
			strings.NewReader(`{"status":"approved"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, commission.StatusApproved, store.records[rec.ID].Status)
	})

	t.Run("invalid transition", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/commissions/"+rec.ID.String()+"/status",
			strings.NewReader(`{"status":"pending"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusConflict, rr.Code)
		require.Contains(t, rr.Body.String(), "INVALID_TRANSITION")
	})

	t.Run("unknown status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/commissions/"+rec.ID.String()+"/status",
			strings.NewReader(`{"status":"archived"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("record not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/commissions/"+uuid.NewString()+"/status",
			strings.NewReader(`{"status":"approved"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestTriggerRecalculateEndpoint(t *testing.T) {
	store := &fakeAdminStore{records: map[uuid.UUID]commission.Record{}}
	trigger := &fakeTrigger{taskID: "commission:recalculate:2026-03-15"}
	router := newTestRouter(store, trigger)

	req := httptest.NewRequest(http.MethodPost, "/commissions/recalculate", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1, trigger.calls)
	require.Contains(t, rr.Body.String(), trigger.taskID)
}

func TestListEndpointRejectsBadStatus(t *testing.T) {
	router := newTestRouter(&fakeAdminStore{records: map[uuid.UUID]commission.Record{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/commissions/?status=bogus", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
