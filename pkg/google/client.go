// Package google wraps the Google Maps Platform APIs the pipeline uses:
// Places nearby search and details, and the Distance Matrix.
package google

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"googlemaps.github.io/maps"

	"github.com/cafe-compass/compass-cli/internal/resilience"
)

// Travel modes accepted by TravelTimes.
const (
	ModeWalking = "walking"
	ModeDriving = "driving"
)

// MaxDestinations is the Distance Matrix limit per request.
const MaxDestinations = 25

// Client performs Google Maps operations.
type Client interface {
	NearbySearch(ctx context.Context, req NearbyRequest) ([]Place, error)
	TravelTimes(ctx context.Context, origin LatLng, destinations []LatLng, mode string) ([]*time.Duration, error)
	PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error)
}

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NearbyRequest describes a Places nearby search.
type NearbyRequest struct {
	Location LatLng `json:"location"`
	RadiusM  uint   `json:"radius_m"`
	Type     string `json:"type,omitempty"`
	Keyword  string `json:"keyword,omitempty"`
}

// Place is one nearby search result.
type Place struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Location         LatLng   `json:"location"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
	BusinessStatus   string   `json:"business_status"`
	Types            []string `json:"types,omitempty"`
}

// PlaceDetails holds the detail fields used by the shop survey.
type PlaceDetails struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Location         LatLng   `json:"location"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
	BusinessStatus   string   `json:"business_status"`
	WeekdayText      []string `json:"weekday_text,omitempty"`
	Reviews          []string `json:"reviews,omitempty"`
}

var detailFields = []string{
	"place_id", "name", "formatted_address", "geometry", "rating",
	"user_ratings_total", "price_level", "business_status",
	"opening_hours", "reviews",
}

// Option configures the client.
type Option func(*mapsClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *mapsClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *mapsClient) {
		c.http = hc
	}
}

// WithGuard routes every request through g.
func WithGuard(g *resilience.Guard) Option {
	return func(c *mapsClient) {
		c.guard = g
	}
}

// WithMaxPages caps how many result pages NearbySearch follows.
func WithMaxPages(n int) Option {
	return func(c *mapsClient) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithPageDelay sets the wait before requesting a next_page_token. Google
// rejects the token for a short while after issuing it.
func WithPageDelay(d time.Duration) Option {
	return func(c *mapsClient) {
		c.pageDelay = d
	}
}

type mapsClient struct {
	maps      *maps.Client
	baseURL   string
	http      *http.Client
	guard     *resilience.Guard
	maxPages  int
	pageDelay time.Duration
	fields    []maps.PlaceDetailsFieldMask
}

// NewClient creates a Google Maps client.
func NewClient(apiKey string, opts ...Option) (Client, error) {
	c := &mapsClient{
		http:      &http.Client{Timeout: 30 * time.Second},
		maxPages:  1,
		pageDelay: 2 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}

	mapsOpts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(c.http),
	}
	if c.baseURL != "" {
		mapsOpts = append(mapsOpts, maps.WithBaseURL(c.baseURL))
	}
	mc, err := maps.NewClient(mapsOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "google: create client")
	}
	c.maps = mc

	for _, f := range detailFields {
		mask, err := maps.ParsePlaceDetailsFieldMask(f)
		if err != nil {
			return nil, eris.Wrapf(err, "google: field mask %s", f)
		}
		c.fields = append(c.fields, mask)
	}
	return c, nil
}

// NearbySearch runs a nearby search and follows next_page_token up to the
// configured page limit.
func (c *mapsClient) NearbySearch(ctx context.Context, req NearbyRequest) ([]Place, error) {
	mreq := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: req.Location.Lat, Lng: req.Location.Lng},
		Radius:   req.RadiusM,
		Keyword:  req.Keyword,
		Type:     maps.PlaceType(req.Type),
	}

	var places []Place
	for page := 0; page < c.maxPages; page++ {
		resp, err := resilience.CallVal(ctx, c.guard, "nearby_search", func(ctx context.Context) (maps.PlacesSearchResponse, error) {
			r, err := c.maps.NearbySearch(ctx, mreq)
			return r, classify(err, "nearby search")
		})
		if err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			places = append(places, Place{
				PlaceID:          r.PlaceID,
				Name:             r.Name,
				Address:          firstNonEmpty(r.Vicinity, r.FormattedAddress),
				Location:         LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
				Rating:           float64(r.Rating),
				UserRatingsTotal: r.UserRatingsTotal,
				PriceLevel:       r.PriceLevel,
				BusinessStatus:   r.BusinessStatus,
				Types:            r.Types,
			})
		}
		if resp.NextPageToken == "" {
			break
		}
		if page+1 < c.maxPages && c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "google: nearby search")
			case <-time.After(c.pageDelay):
			}
		}
		mreq = &maps.NearbySearchRequest{PageToken: resp.NextPageToken}
	}
	return places, nil
}

// TravelTimes returns one duration per destination; nil marks an element
// the Distance Matrix could not route.
func (c *mapsClient) TravelTimes(ctx context.Context, origin LatLng, destinations []LatLng, mode string) ([]*time.Duration, error) {
	if len(destinations) == 0 {
		return nil, nil
	}
	if len(destinations) > MaxDestinations {
		return nil, eris.Errorf("google: %d destinations exceeds limit of %d", len(destinations), MaxDestinations)
	}

	var travelMode maps.Mode
	switch mode {
	case ModeWalking:
		travelMode = maps.TravelModeWalking
	case ModeDriving:
		travelMode = maps.TravelModeDriving
	default:
		return nil, eris.Errorf("google: unsupported travel mode %q", mode)
	}

	dests := make([]string, len(destinations))
	for i, d := range destinations {
		dests[i] = d.String()
	}
	mreq := &maps.DistanceMatrixRequest{
		Origins:      []string{origin.String()},
		Destinations: dests,
		Mode:         travelMode,
	}

	resp, err := resilience.CallVal(ctx, c.guard, "distance_matrix", func(ctx context.Context) (*maps.DistanceMatrixResponse, error) {
		r, err := c.maps.DistanceMatrix(ctx, mreq)
		return r, classify(err, "distance matrix")
	})
	if err != nil {
		return nil, err
	}

	out := make([]*time.Duration, len(destinations))
	if resp == nil || len(resp.Rows) == 0 {
		return out, nil
	}
	for i, el := range resp.Rows[0].Elements {
		if i >= len(out) {
			break
		}
		if el != nil && el.Status == "OK" {
			d := el.Duration
			out[i] = &d
		}
	}
	return out, nil
}

// PlaceDetails fetches the fields needed to judge a shop.
func (c *mapsClient) PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error) {
	mreq := &maps.PlaceDetailsRequest{PlaceID: placeID, Fields: c.fields}

	r, err := resilience.CallVal(ctx, c.guard, "place_details", func(ctx context.Context) (maps.PlaceDetailsResult, error) {
		r, err := c.maps.PlaceDetails(ctx, mreq)
		return r, classify(err, "place details")
	})
	if err != nil {
		return nil, err
	}

	d := &PlaceDetails{
		PlaceID:          firstNonEmpty(r.PlaceID, placeID),
		Name:             r.Name,
		Address:          r.FormattedAddress,
		Location:         LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		Rating:           float64(r.Rating),
		UserRatingsTotal: r.UserRatingsTotal,
		PriceLevel:       r.PriceLevel,
		BusinessStatus:   r.BusinessStatus,
	}
	if r.OpeningHours != nil {
		d.WeekdayText = r.OpeningHours.WeekdayText
	}
	for _, rv := range r.Reviews {
		d.Reviews = append(d.Reviews, rv.Text)
	}
	return d, nil
}

// classify wraps err and marks quota and 5xx failures transient.
func classify(err error, action string) error {
	if err == nil {
		return nil
	}
	wrapped := eris.Wrapf(err, "google: %s", action)
	if resilience.IsTransient(err) {
		return resilience.NewTransientError(wrapped, 0)
	}
	return wrapped
}

// String formats the coordinate as "lat,lng".
func (l LatLng) String() string {
	return (&maps.LatLng{Lat: l.Lat, Lng: l.Lng}).String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
