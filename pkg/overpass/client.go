// Package overpass queries the OpenStreetMap Overpass API for transit stops
// and walkable street nodes around a point.
package overpass

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/cafe-compass/compass-cli/internal/resilience"
)

const defaultURL = "https://overpass-api.de/api/interpreter"

// Client counts OSM features near a point.
type Client interface {
	CountTransitStops(ctx context.Context, lat, lon float64, radiusM int) (int, error)
	CountWalkNodes(ctx context.Context, lat, lon float64, distM int) (int, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithURL overrides the interpreter endpoint.
func WithURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.url = u
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

// WithTimeout sets the server-side query timeout in seconds.
func WithTimeout(secs int) Option {
	return func(c *httpClient) {
		if secs > 0 {
			c.timeoutSecs = secs
		}
	}
}

type httpClient struct {
	url         string
	http        *http.Client
	guard       *resilience.Guard
	timeoutSecs int
}

// NewClient creates an Overpass client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		url:         defaultURL,
		timeoutSecs: 60,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: time.Duration(c.timeoutSecs+15) * time.Second}
	}
	return c
}

// TransitStopsQuery counts bus stops and transit stop positions.
func TransitStopsQuery(lat, lon float64, radiusM, timeoutSecs int) string {
	around := aroundFilter(radiusM, lat, lon)
	return fmt.Sprintf(`[out:json][timeout:%d];
(
  node%s[highway=bus_stop];
  node%s[public_transport=stop_position];
);
out count;`, timeoutSecs, around, around)
}

// WalkNodesQuery counts the nodes of walkable ways, the same highway set a
// pedestrian routing graph would keep.
func WalkNodesQuery(lat, lon float64, distM, timeoutSecs int) string {
	around := aroundFilter(distM, lat, lon)
	return fmt.Sprintf(`[out:json][timeout:%d];
way%s[highway][area!~"yes"][highway!~"abandoned|construction|motor|planned|platform|proposed|raceway|motorway|motorway_link|trunk|trunk_link"][foot!~"no"][access!~"private"];
node(w)%s;
out count;`, timeoutSecs, around, around)
}

func aroundFilter(radiusM int, lat, lon float64) string {
	return fmt.Sprintf("(around:%d,%s,%s)", radiusM,
		strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lon, 'f', -1, 64))
}

func (c *httpClient) CountTransitStops(ctx context.Context, lat, lon float64, radiusM int) (int, error) {
	return c.count(ctx, "transit_stops", TransitStopsQuery(lat, lon, radiusM, c.timeoutSecs))
}

func (c *httpClient) CountWalkNodes(ctx context.Context, lat, lon float64, distM int) (int, error) {
	return c.count(ctx, "walk_nodes", WalkNodesQuery(lat, lon, distM, c.timeoutSecs))
}

func (c *httpClient) count(ctx context.Context, op, query string) (int, error) {
	body, err := resilience.CallVal(ctx, c.guard, op, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, query)
	})
	if err != nil {
		return 0, err
	}
	return ParseCount(body)
}

func (c *httpClient) do(ctx context.Context, query string) ([]byte, error) {
	u := c.url + "?" + url.Values{"data": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("overpass", resp.StatusCode, respBody)
	}
	return respBody, nil
}

// ParseCount reads the total from an `out count` response. The result is a
// single element of type "count" whose tags hold string totals.
func ParseCount(body []byte) (int, error) {
	if !gjson.ValidBytes(body) {
		return 0, eris.New("overpass: response is not JSON")
	}
	el := gjson.GetBytes(body, `elements.#(type=="count")`)
	if !el.Exists() {
		return 0, eris.New("overpass: no count element in response")
	}
	total := el.Get("tags.total")
	if !total.Exists() {
		return 0, eris.New("overpass: count element has no total")
	}
	n, err := strconv.Atoi(total.String())
	if err != nil {
		return 0, eris.Wrapf(err, "overpass: invalid total %q", total.String())
	}
	return n, nil
}
