// Package usda fetches county rent figures from the USDA ERS ARMS survey
// data API.
package usda

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.ers.usda.gov/data/arms/surveydata"
	rentVariable   = "RENT"
)

// Client fetches rent by county.
type Client interface {
	RentByCounty(ctx context.Context, state string, year int) (map[string]float64, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithGuard routes every request through g.
func WithGuard(g *resilience.Guard) Option {
	return func(c *httpClient) {
		c.guard = g
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	guard   *resilience.Guard
}

// NewClient creates a USDA client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RentByCounty returns avg rent keyed by 3-digit county code. The first
// value seen for a county wins.
func (c *httpClient) RentByCounty(ctx context.Context, state string, year int) (map[string]float64, error) {
	if c.apiKey == "" {
		return nil, eris.New("usda: api key is required")
	}
	q := url.Values{
		"api_key":  {c.apiKey},
		"variable": {rentVariable},
		"year":     {strconv.Itoa(year)},
		"state":    {state},
	}
	u := c.baseURL + "?" + q.Encode()

	body, err := resilience.CallVal(ctx, c.guard, "rent", func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, eris.Wrap(err, "usda: create request")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "usda: send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "usda: read response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError("usda", resp.StatusCode, b)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return ParseRent(body)
}

// ParseRent reads data[].county_code / data[].value. A response without a
// data array, or rows without either field, is an error.
func ParseRent(body []byte) (map[string]float64, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.New("usda: response is not JSON")
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, eris.New("usda: unexpected response format, no data array")
	}

	out := make(map[string]float64)
	var bad error
	var skipped int
	data.ForEach(func(_, row gjson.Result) bool {
		code, val := row.Get("county_code"), row.Get("value")
		if !code.Exists() || !val.Exists() {
			bad = eris.New("usda: rent data missing county_code or value")
			return false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val.String()), 64)
		if err != nil {
			skipped++
			return true
		}
		county := PadCounty(code.String())
		if _, ok := out[county]; !ok {
			out[county] = v
		}
		return true
	})
	if bad != nil {
		return nil, bad
	}
	if skipped > 0 {
		zap.L().Warn("usda: skipped non-numeric rent values", zap.Int("skipped", skipped))
	}
	return out, nil
}

// PadCounty zero-pads a county code to 3 digits.
func PadCounty(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, '.'); i >= 0 {
		code = code[:i]
	}
	for len(code) < 3 {
		code = "0" + code
	}
	return code
}
