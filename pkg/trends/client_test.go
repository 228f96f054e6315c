package trends

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exploreBody = `)]}'
{"widgets":[{"id":"GEO_MAP","token":"x"},{"id":"TIMESERIES","token":"tok-1","request":{"time":"2018-01-01 2023-12-31","comparisonItem":[]}}]}`

const multilineBody = `)]}',
{"default":{"timelineData":[
 {"time":"1514764800","formattedTime":"Jan 2018","value":[10,0],"hasData":[true,false]},
 {"time":"1517443200","formattedTime":"Feb 2018","value":[21,3],"hasData":[true,true]},
 {"time":"1519862400","formattedTime":"Mar 2018","value":[99,99],"hasData":[true,true],"isPartial":true}
]}}`

func newTrendsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en-US", r.URL.Query().Get("hl"))
		assert.Equal(t, "360", r.URL.Query().Get("tz"))
		switch r.URL.Path {
		case "/trends/api/explore":
			var req exploreRequest
			assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("req")), &req))
			if !assert.Len(t, req.ComparisonItem, 2) {
				return
			}
			assert.Equal(t, "US", req.ComparisonItem[0].Geo)
			assert.Equal(t, DefaultTimeframe, req.ComparisonItem[0].Time)
			_, _ = w.Write([]byte(exploreBody))
		case "/trends/api/widgetdata/multiline":
			assert.Equal(t, "tok-1", r.URL.Query().Get("token"))
			assert.JSONEq(t, `{"time":"2018-01-01 2023-12-31","comparisonItem":[]}`, r.URL.Query().Get("req"))
			_, _ = w.Write([]byte(multilineBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInterestOverTime(t *testing.T) {
	srv := newTrendsServer(t)
	c := NewClient(WithBaseURL(srv.URL))

	s, err := c.InterestOverTime(context.Background(), []string{"yemeni coffee Dearborn", "study cafe Dearborn"}, "", "")
	require.NoError(t, err)
	require.Len(t, s.Points, 3)
	assert.Equal(t, 2018, s.Points[0].Time.Year())
	assert.True(t, s.Points[2].IsPartial)

	avgs := s.Averages()
	assert.InDelta(t, 15.5, avgs["yemeni coffee Dearborn"], 1e-9)
	assert.InDelta(t, 1.5, avgs["study cafe Dearborn"], 1e-9)

	mean, ok := MeanInterest(avgs)
	require.True(t, ok)
	assert.InDelta(t, 8.5, mean, 1e-9)
}

func TestInterestOverTime_KeywordLimits(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:0"))
	_, err := c.InterestOverTime(context.Background(), nil, "US", "")
	assert.ErrorContains(t, err, "need 1 to 5 keywords")

	_, err = c.InterestOverTime(context.Background(), make([]string, 6), "US", "")
	assert.Error(t, err)
}

func TestInterestOverTime_NoWidget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`)]}'` + "\n" + `{"widgets":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).InterestOverTime(context.Background(), []string{"a"}, "US", "")
	assert.ErrorContains(t, err, "no TIMESERIES widget")
}

func TestInterestOverTime_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).InterestOverTime(context.Background(), []string{"a"}, "US", "")
	assert.ErrorContains(t, err, "429")
}

func TestCityKeywords(t *testing.T) {
	assert.Equal(t, []string{
		"yemeni coffee West Dearborn",
		"study cafe West Dearborn",
		"chill cafe West Dearborn",
		"coffee shop West Dearborn",
		"best cafe West Dearborn",
	}, CityKeywords(" West Dearborn "))
}

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(StripPrefix([]byte(")]}'\n{\"a\":1}"))))
	assert.Equal(t, `{"a":1}`, string(StripPrefix([]byte(")]}',\n{\"a\":1}"))))
	assert.Equal(t, `[1]`, string(StripPrefix([]byte("[1]"))))
}

func TestAverages_SkipsEmptyKeyword(t *testing.T) {
	s := &Series{Keywords: []string{"a", "b"}, Points: []Point{{Values: []float64{1.005, 2}, IsPartial: false}}}
	s.Points = append(s.Points, Point{Values: []float64{3, 4}, IsPartial: true})
	avgs := s.Averages()
	assert.Len(t, avgs, 2)
	assert.InDelta(t, 2.0, avgs["b"], 1e-9)

	empty := &Series{Keywords: []string{"a"}}
	assert.Empty(t, empty.Averages())
	_, ok := MeanInterest(empty.Averages())
	assert.False(t, ok)
}

func TestRound2(t *testing.T) {
	assert.InDelta(t, 15.56, Round2(15.557), 1e-9)
	assert.InDelta(t, -1.23, Round2(-1.234), 1e-9)
}
