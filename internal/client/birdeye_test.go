package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_chat/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *BirdeyeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewBirdeyeClient(config.PriceConfig{
		APIURL:       srv.URL + "/",
		APIKey:       "key-1",
		FetchTimeout: 2 * time.Second,
		MaxRetries:   2,
	})
	c.retryDelay = time.Millisecond
	return c
}

func TestFetchPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price", r.URL.Path)
		assert.Equal(t, "TKN2", r.URL.Query().Get("address"))
		assert.Equal(t, "key-1", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "solana", r.Header.Get("x-chain"))
		assert.Equal(t, "application/json", r.Header.Get("accept"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"value":1.23,"updateUnixTime":1714521600,"symbol":"TK","name":"Token"}}`))
	})

	price, err := c.FetchPrice(context.Background(), "TKN2")
	require.NoError(t, err)
	assert.Equal(t, 1.23, price.Value)
	assert.Equal(t, int64(1714521600), price.UpdateUnixTime)
	assert.Equal(t, "TK", price.Symbol)
	assert.Equal(t, "Token", price.Name)
}

func TestFetchPriceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"value":2}}`))
	})

	price, err := c.FetchPrice(context.Background(), "TKN2")
	require.NoError(t, err)
	assert.Equal(t, 2.0, price.Value)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPriceGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchPrice(context.Background(), "TKN2")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPriceDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.FetchPrice(context.Background(), "TKN2")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPriceUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"data":null}`))
	})

	_, err := c.FetchPrice(context.Background(), "TKN2")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}
