// Package mocks provides test doubles for the google client.
package mocks

import (
	"context"
	"time"

	mock "github.com/stretchr/testify/mock"

	google "github.com/cafe-compass/compass-cli/pkg/google"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// NearbySearch provides a mock function with given fields: ctx, req
func (_m *MockClient) NearbySearch(ctx context.Context, req google.NearbyRequest) ([]google.Place, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for NearbySearch")
	}

	var r0 []google.Place
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, google.NearbyRequest) ([]google.Place, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, google.NearbyRequest) []google.Place); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]google.Place)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, google.NearbyRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// TravelTimes provides a mock function with given fields: ctx, origin, destinations, mode
func (_m *MockClient) TravelTimes(ctx context.Context, origin google.LatLng, destinations []google.LatLng, mode string) ([]*time.Duration, error) {
	ret := _m.Called(ctx, origin, destinations, mode)

	if len(ret) == 0 {
		panic("no return value specified for TravelTimes")
	}

	var r0 []*time.Duration
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, google.LatLng, []google.LatLng, string) ([]*time.Duration, error)); ok {
		return rf(ctx, origin, destinations, mode)
	}
	if rf, ok := ret.Get(0).(func(context.Context, google.LatLng, []google.LatLng, string) []*time.Duration); ok {
		r0 = rf(ctx, origin, destinations, mode)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]*time.Duration)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, google.LatLng, []google.LatLng, string) error); ok {
		r1 = rf(ctx, origin, destinations, mode)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// PlaceDetails provides a mock function with given fields: ctx, placeID
func (_m *MockClient) PlaceDetails(ctx context.Context, placeID string) (*google.PlaceDetails, error) {
	ret := _m.Called(ctx, placeID)

	if len(ret) == 0 {
		panic("no return value specified for PlaceDetails")
	}

	var r0 *google.PlaceDetails
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*google.PlaceDetails, error)); ok {
		return rf(ctx, placeID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *google.PlaceDetails); ok {
		r0 = rf(ctx, placeID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*google.PlaceDetails)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, placeID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
