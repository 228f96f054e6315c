package google

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cache is the response cache a CachedClient reads through. GetCached
// returns nil, nil on a miss.
type Cache interface {
	GetCached(ctx context.Context, key string) ([]byte, error)
	SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// CachedClient serves repeated requests from a response cache so reruns do
// not bill the same lookup twice. Cache failures fall through to the API.
type CachedClient struct {
	next  Client
	cache Cache
	ttl   time.Duration
}

var _ Client = (*CachedClient)(nil)

// NewCachedClient wraps next with cache.
func NewCachedClient(next Client, cache Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{next: next, cache: cache, ttl: ttl}
}

// NearbySearch implements Client.
func (c *CachedClient) NearbySearch(ctx context.Context, req NearbyRequest) ([]Place, error) {
	key := cacheKey("nearby", req.Location.String(), fmt.Sprint(req.RadiusM), req.Type, req.Keyword)
	return cached(ctx, c, key, func(ctx context.Context) ([]Place, error) {
		return c.next.NearbySearch(ctx, req)
	})
}

// TravelTimes implements Client.
func (c *CachedClient) TravelTimes(ctx context.Context, origin LatLng, destinations []LatLng, mode string) ([]*time.Duration, error) {
	parts := []string{"matrix", mode, origin.String()}
	for _, d := range destinations {
		parts = append(parts, d.String())
	}
	return cached(ctx, c, cacheKey(parts...), func(ctx context.Context) ([]*time.Duration, error) {
		return c.next.TravelTimes(ctx, origin, destinations, mode)
	})
}

// PlaceDetails implements Client.
func (c *CachedClient) PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error) {
	return cached(ctx, c, cacheKey("details", placeID), func(ctx context.Context) (*PlaceDetails, error) {
		return c.next.PlaceDetails(ctx, placeID)
	})
}

func cached[T any](ctx context.Context, c *CachedClient, key string, fetch func(context.Context) (T, error)) (T, error) {
	log := zap.L().With(zap.String("component", "google.cache"), zap.String("key", key[:12]))

	if data, err := c.cache.GetCached(ctx, key); err != nil {
		log.Warn("cache read failed", zap.Error(err))
	} else if data != nil {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			log.Debug("cache hit")
			return v, nil
		}
		log.Warn("cache entry unreadable, refetching")
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := c.cache.SetCached(ctx, key, data, c.ttl); err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
	}
	return v, nil
}

// cacheKey returns the SHA-256 hex of the normalized request parts.
func cacheKey(parts ...string) string {
	normalized := strings.ToLower(strings.Join(parts, "|"))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("google:%x", h)
}
