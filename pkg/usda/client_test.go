package usda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/resilience"
)

func TestRentByCounty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("api_key"))
		assert.Equal(t, "RENT", q.Get("variable"))
		assert.Equal(t, "2023", q.Get("year"))
		assert.Equal(t, "MI", q.Get("state"))
		_, _ = w.Write([]byte(`{"data":[
			{"county_code":"163","value":21.5},
			{"county_code":93,"value":"18.25"},
			{"county_code":"163","value":99},
			{"county_code":"5","value":"n/a"}]}`))
	}))
	defer srv.Close()

	got, err := NewClient("k", WithBaseURL(srv.URL)).RentByCounty(context.Background(), "MI", 2023)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"163": 21.5, "093": 18.25}, got)
}

func TestRentByCounty_RequiresKey(t *testing.T) {
	_, err := NewClient("").RentByCounty(context.Background(), "MI", 2023)
	assert.ErrorContains(t, err, "api key is required")
}

func TestRentByCounty_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).RentByCounty(context.Background(), "MI", 2023)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestParseRent_Errors(t *testing.T) {
	_, err := ParseRent([]byte(`{"error":"bad"}`))
	assert.ErrorContains(t, err, "no data array")

	_, err = ParseRent([]byte(`{"data":[{"county_code":"163"}]}`))
	assert.ErrorContains(t, err, "missing county_code or value")

	_, err = ParseRent([]byte(`nope`))
	assert.ErrorContains(t, err, "not JSON")
}

func TestPadCounty(t *testing.T) {
	assert.Equal(t, "005", PadCounty("5"))
	assert.Equal(t, "093", PadCounty(" 93 "))
	assert.Equal(t, "163", PadCounty("163"))
	assert.Equal(t, "093", PadCounty("93.0"))
}
