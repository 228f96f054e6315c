package google

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) GetCached(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("db locked")
	}
	return m.data[key], nil
}

func (m *memCache) SetCached(_ context.Context, key string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

// stubClient counts calls; the mocks package cannot be imported here
// without a cycle.
type stubClient struct {
	mock.Mock
}

func (s *stubClient) NearbySearch(ctx context.Context, req NearbyRequest) ([]Place, error) {
	args := s.Called(ctx, req)
	places, _ := args.Get(0).([]Place)
	return places, args.Error(1)
}

func (s *stubClient) TravelTimes(ctx context.Context, origin LatLng, dests []LatLng, mode string) ([]*time.Duration, error) {
	args := s.Called(ctx, origin, dests, mode)
	out, _ := args.Get(0).([]*time.Duration)
	return out, args.Error(1)
}

func (s *stubClient) PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error) {
	args := s.Called(ctx, placeID)
	d, _ := args.Get(0).(*PlaceDetails)
	return d, args.Error(1)
}

func TestCachedClient_NearbySearchHit(t *testing.T) {
	next := &stubClient{}
	req := NearbyRequest{Location: LatLng{42.3, -83.1}, RadiusM: 5000, Type: "cafe"}
	next.On("NearbySearch", mock.Anything, req).Return([]Place{{PlaceID: "a", Name: "Haraz"}}, nil).Once()

	c := NewCachedClient(next, newMemCache(), time.Hour)
	for i := 0; i < 2; i++ {
		got, err := c.NearbySearch(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Haraz", got[0].Name)
	}
	next.AssertExpectations(t)
}

func TestCachedClient_TravelTimesPreservesNil(t *testing.T) {
	next := &stubClient{}
	d := 7 * time.Minute
	dests := []LatLng{{1, 1}, {2, 2}}
	next.On("TravelTimes", mock.Anything, LatLng{0, 0}, dests, ModeDriving).
		Return([]*time.Duration{&d, nil}, nil).Once()

	c := NewCachedClient(next, newMemCache(), time.Hour)
	_, err := c.TravelTimes(context.Background(), LatLng{0, 0}, dests, ModeDriving)
	require.NoError(t, err)

	got, err := c.TravelTimes(context.Background(), LatLng{0, 0}, dests, ModeDriving)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0])
	assert.Equal(t, d, *got[0])
	assert.Nil(t, got[1])
	next.AssertExpectations(t)
}

func TestCachedClient_ErrorsNotCached(t *testing.T) {
	next := &stubClient{}
	next.On("PlaceDetails", mock.Anything, "x").Return(nil, errors.New("boom")).Once()
	next.On("PlaceDetails", mock.Anything, "x").Return(&PlaceDetails{Name: "X"}, nil).Once()

	c := NewCachedClient(next, newMemCache(), time.Hour)
	_, err := c.PlaceDetails(context.Background(), "x")
	require.Error(t, err)

	d, err := c.PlaceDetails(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "X", d.Name)
	next.AssertExpectations(t)
}

func TestCachedClient_CacheFailureFallsThrough(t *testing.T) {
	next := &stubClient{}
	next.On("PlaceDetails", mock.Anything, "x").Return(&PlaceDetails{Name: "X"}, nil).Twice()

	cache := newMemCache()
	cache.failGet = true
	c := NewCachedClient(next, cache, time.Hour)
	for i := 0; i < 2; i++ {
		_, err := c.PlaceDetails(context.Background(), "x")
		require.NoError(t, err)
	}
	next.AssertExpectations(t)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey("Nearby", "A"), cacheKey("nearby", "a"))
	assert.NotEqual(t, cacheKey("nearby", "a"), cacheKey("nearby", "b"))
}
