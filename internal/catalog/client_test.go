package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
)

func newTestClient(t *testing.T, handler http.Handler, cache *catalog.Cache) *catalog.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := catalog.NewClient(catalog.ClientConfig{
		BaseURL:    srv.URL,
		AuthToken:  "test-token",
		HTTPClient: srv.Client(),
		Cache:      cache,
	})
	require.NoError(t, err)
	return client
}

func TestGetProduct(t *testing.T) {
	var authHeader string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.Equal(t, "/products/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"name":"Glucose Panel","sku":"GP-1","price":"120.50","costPrice":"80.00","variants":[{"id":7,"sku":"GP-1-L","costPrice":"75.25"}]}`))
	}), nil)

	product, err := client.GetProduct(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "Bearer test-token", authHeader)
	require.Equal(t, int64(42), product.ID)
	require.True(t, product.Price.Equal(decimal.RequireFromString("120.50")))
	require.True(t, product.CostPrice.Equal(decimal.RequireFromString("80.00")))
	require.Len(t, product.Variants, 1)
}

func TestGetProductNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), nil)

	_, err := client.GetProduct(context.Background(), 99)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestGetProductCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := catalog.NewCache(rdb, time.Minute)

	var calls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":5,"name":"Lipid Panel","price":"60.00","costPrice":"34.00"}`))
	}), cache)

	ctx := context.Background()
	first, err := client.GetProduct(ctx, 5)
	require.NoError(t, err)
	second, err := client.GetProduct(ctx, 5)
	require.NoError(t, err)

	require.Equal(t, 1, calls, "second lookup should hit the cache")
	require.True(t, first.Price.Equal(second.Price))
}
