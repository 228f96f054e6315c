// Package trends reads Google Trends interest-over-time series through the
// explore and multiline widget endpoints.
package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/cafe-compass/compass-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://trends.google.com"

	// DefaultGeo and DefaultTimeframe match the study period.
	DefaultGeo       = "US"
	DefaultTimeframe = "2018-01-01 2023-12-31"

	// MaxKeywords is the most terms one explore request compares.
	MaxKeywords = 5
)

// Point is one interval of an interest series.
type Point struct {
	Time      time.Time `json:"time"`
	Values    []float64 `json:"values"`
	IsPartial bool      `json:"is_partial"`
}

// Series is interest over time for a keyword set; Values in each point line
// up with Keywords.
type Series struct {
	Keywords []string `json:"keywords"`
	Points   []Point  `json:"points"`
}

// Client fetches interest-over-time series.
type Client interface {
	InterestOverTime(ctx context.Context, keywords []string, geo, timeframe string) (*Series, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
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

// WithLocale sets the hl and tz query parameters.
func WithLocale(language string, tzOffset int) Option {
	return func(c *httpClient) {
		if language != "" {
			c.language = language
		}
		c.tz = tzOffset
	}
}

type httpClient struct {
	baseURL  string
	http     *http.Client
	guard    *resilience.Guard
	language string
	tz       int
}

// NewClient creates a Trends client. The default http.Client keeps cookies
// because the endpoints reject requests without the session cookie.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:  defaultBaseURL,
		language: "en-US",
		tz:       360,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		jar, _ := cookiejar.New(nil)
		c.http = &http.Client{Timeout: 30 * time.Second, Jar: jar}
	}
	return c
}

// CityKeywords returns the coffee intent keywords for a city.
func CityKeywords(city string) []string {
	city = strings.TrimSpace(city)
	return []string{
		"yemeni coffee " + city,
		"study cafe " + city,
		"chill cafe " + city,
		"coffee shop " + city,
		"best cafe " + city,
	}
}

type comparisonItem struct {
	Keyword string `json:"keyword"`
	Geo     string `json:"geo"`
	Time    string `json:"time"`
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

// InterestOverTime runs explore, then fetches the TIMESERIES widget.
func (c *httpClient) InterestOverTime(ctx context.Context, keywords []string, geo, timeframe string) (*Series, error) {
	if len(keywords) == 0 || len(keywords) > MaxKeywords {
		return nil, eris.Errorf("trends: need 1 to %d keywords, got %d", MaxKeywords, len(keywords))
	}
	if geo == "" {
		geo = DefaultGeo
	}
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}

	req := exploreRequest{}
	for _, k := range keywords {
		req.ComparisonItem = append(req.ComparisonItem, comparisonItem{Keyword: k, Geo: geo, Time: timeframe})
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "trends: marshal explore request")
	}

	explore, err := c.get(ctx, "explore", "/trends/api/explore", url.Values{"req": {string(reqJSON)}})
	if err != nil {
		return nil, err
	}
	widget := gjson.GetBytes(explore, `widgets.#(id=="TIMESERIES")`)
	if !widget.Exists() {
		return nil, eris.New("trends: explore response has no TIMESERIES widget")
	}

	data, err := c.get(ctx, "multiline", "/trends/api/widgetdata/multiline", url.Values{
		"req":   {widget.Get("request").Raw},
		"token": {widget.Get("token").String()},
	})
	if err != nil {
		return nil, err
	}
	return parseTimeline(data, keywords)
}

func (c *httpClient) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	params.Set("hl", c.language)
	params.Set("tz", strconv.Itoa(c.tz))
	u := c.baseURL + path + "?" + params.Encode()

	return resilience.CallVal(ctx, c.guard, op, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, eris.Wrap(err, "trends: create request")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "trends: %s", op)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "trends: read response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError("trends", resp.StatusCode, body)
		}
		return StripPrefix(body), nil
	})
}

// StripPrefix removes the )]}' anti-JSON-hijacking prefix and anything
// before the first JSON value.
func StripPrefix(body []byte) []byte {
	body = bytes.TrimPrefix(bytes.TrimSpace(body), []byte(")]}'"))
	if i := bytes.IndexAny(body, "{["); i >= 0 {
		return body[i:]
	}
	return body
}

func parseTimeline(data []byte, keywords []string) (*Series, error) {
	if !gjson.ValidBytes(data) {
		return nil, eris.New("trends: multiline response is not JSON")
	}
	timeline := gjson.GetBytes(data, "default.timelineData")
	if !timeline.Exists() {
		return nil, eris.New("trends: multiline response has no timelineData")
	}

	s := &Series{Keywords: keywords}
	var bad error
	timeline.ForEach(func(_, pt gjson.Result) bool {
		vals := pt.Get("value").Array()
		if len(vals) != len(keywords) {
			bad = eris.Errorf("trends: point has %d values for %d keywords", len(vals), len(keywords))
			return false
		}
		p := Point{
			Time:      time.Unix(pt.Get("time").Int(), 0).UTC(),
			IsPartial: pt.Get("isPartial").Bool(),
			Values:    make([]float64, len(vals)),
		}
		for i, v := range vals {
			p.Values[i] = v.Float()
		}
		s.Points = append(s.Points, p)
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return s, nil
}

// Averages returns each keyword's mean interest over complete points,
// rounded to two decimals. Keywords with no complete points are omitted.
func (s *Series) Averages() map[string]float64 {
	out := make(map[string]float64, len(s.Keywords))
	for i, k := range s.Keywords {
		var sum float64
		var n int
		for _, p := range s.Points {
			if p.IsPartial || i >= len(p.Values) {
				continue
			}
			sum += p.Values[i]
			n++
		}
		if n > 0 {
			out[k] = Round2(sum / float64(n))
		}
	}
	return out
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MeanInterest averages the keyword means of a series. ok is false when no
// keyword has data.
func MeanInterest(avgs map[string]float64) (float64, bool) {
	if len(avgs) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range avgs {
		sum += v
	}
	return Round2(sum / float64(len(avgs))), true
}
