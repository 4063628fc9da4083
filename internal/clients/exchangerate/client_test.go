package exchangerate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/valuator/internal/clientdata"
	testingpkg "github.com/aristath/valuator/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "client_data")
	t.Cleanup(cleanup)
	return clientdata.NewRepository(db.Conn())
}

func newServer(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if s := status.Load(); s != 0 {
			w.WriteHeader(int(s))
			return
		}
		assert.Equal(t, "/USD", r.URL.Path)
		_, _ = w.Write([]byte(`{"base": "USD", "date": "2024-01-15", "rates": {"USD": 1, "NZD": 1.6050, "EUR": 0.91}}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetRate(t *testing.T) {
	var status, calls atomic.Int32
	server := newServer(t, &status, &calls)
	client := NewClient(server.URL, newCache(t), zerolog.Nop())

	rate, err := client.GetRate(context.Background(), "USD", "NZD")
	require.NoError(t, err)
	assert.Equal(t, "1.605", rate.String())

	// The whole table is cached under its base
	rate, err = client.GetRate(context.Background(), "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "0.91", rate.String())
	assert.Equal(t, int32(1), calls.Load())

	rate, err = client.GetRate(context.Background(), "NZD", "NZD")
	require.NoError(t, err)
	assert.Equal(t, "1", rate.String())

	_, err = client.GetRate(context.Background(), "USD", "JPY")
	assert.Error(t, err)
}

func TestGetRate_StaleFallback(t *testing.T) {
	var status, calls atomic.Int32
	server := newServer(t, &status, &calls)
	cache := newCache(t)
	client := NewClient(server.URL, cache, zerolog.Nop())

	require.NoError(t, cache.Store(clientdata.TableExchangeRate, "USD", map[string]interface{}{
		"base": "USD", "date": "2024-01-01", "rates": map[string]string{"NZD": "1.55"},
	}, -time.Hour))
	status.Store(http.StatusServiceUnavailable)

	rate, err := client.GetRate(context.Background(), "USD", "NZD")
	require.NoError(t, err)
	assert.Equal(t, "1.55", rate.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRate_FailureWithoutCache(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusInternalServerError)
	server := newServer(t, &status, &calls)
	client := NewClient(server.URL, nil, zerolog.Nop())

	_, err := client.GetRate(context.Background(), "USD", "NZD")
	assert.ErrorContains(t, err, "status 500")
}
