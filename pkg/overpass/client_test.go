package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/resilience"
)

const countBody = `{"version":0.6,"elements":[{"type":"count","id":0,"tags":{"nodes":"14","ways":"0","relations":"0","total":"14"}}]}`

func TestCountTransitStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("data")
		assert.Contains(t, q, "node(around:1609,42.3223,-83.1763)[highway=bus_stop]")
		assert.Contains(t, q, "[public_transport=stop_position]")
		assert.Contains(t, q, "out count;")
		_, _ = w.Write([]byte(countBody))
	}))
	defer srv.Close()

	c := NewClient(WithURL(srv.URL))
	n, err := c.CountTransitStops(context.Background(), 42.3223, -83.1763, 1609)
	require.NoError(t, err)
	assert.Equal(t, 14, n)
}

func TestCountWalkNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("data")
		assert.Contains(t, q, "way(around:500,42.3,-83.1)[highway]")
		assert.Contains(t, q, "node(w)(around:500,42.3,-83.1)")
		_, _ = w.Write([]byte(`{"elements":[{"type":"count","tags":{"total":"230"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(WithURL(srv.URL), WithTimeout(25))
	n, err := c.CountWalkNodes(context.Background(), 42.3, -83.1, 500)
	require.NoError(t, err)
	assert.Equal(t, 230, n)
}

func TestCount_RetriesTooManyRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(countBody))
	}))
	defer srv.Close()

	g := resilience.NewGuard("overpass", 0, nil, resilience.RetryConfig{
		MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1,
	})
	c := NewClient(WithURL(srv.URL), WithGuard(g))
	n, err := c.CountTransitStops(context.Background(), 42, -83, 100)
	require.NoError(t, err)
	assert.Equal(t, 14, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCount_BadRequestIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("parse error"))
	}))
	defer srv.Close()

	_, err := NewClient(WithURL(srv.URL)).CountTransitStops(context.Background(), 42, -83, 100)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "400")
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr string
	}{
		{"count element", countBody, 14, ""},
		{"zero", `{"elements":[{"type":"count","tags":{"total":"0"}}]}`, 0, ""},
		{"not json", `<html>`, 0, "not JSON"},
		{"no elements", `{"elements":[]}`, 0, "no count element"},
		{"no total", `{"elements":[{"type":"count","tags":{}}]}`, 0, "no total"},
		{"bad total", `{"elements":[{"type":"count","tags":{"total":"many"}}]}`, 0, "invalid total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCount([]byte(tt.body))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
