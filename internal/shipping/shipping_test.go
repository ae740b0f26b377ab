package shipping

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/backend"
	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	obelisco  = models.Coordinate{Lat: -34.6037, Lng: -58.3816}
	palermo   = models.Coordinate{Lat: -34.5889, Lng: -58.4306}
	laPlata   = models.Coordinate{Lat: -34.9205, Lng: -57.9536}
)

func expressZones() []models.ShippingZone {
	return []models.ShippingZone{
		{ID: 1, Name: "Centro", Method: "express", MinDistanceKm: 0, MaxDistanceKm: 10, BaseCost: 500, CostPerKm: 50, IsActive: true, ZoneOrder: 1},
		{ID: 2, Name: "Periferia", Method: "express", MinDistanceKm: 10, MaxDistanceKm: 20, BaseCost: 800, CostPerKm: 40, IsActive: true, ZoneOrder: 2},
	}
}

func TestHaversineZeroForSamePoint(t *testing.T) {
	assert.Equal(t, 0.0, HaversineKm(obelisco, obelisco))
}

func TestHaversinePositiveFiniteForDistinctPoints(t *testing.T) {
	d := HaversineKm(obelisco, palermo)
	assert.Greater(t, d, 0.0)
	assert.Less(t, d, 10.0)

	// Buenos Aires to La Plata is roughly 50 km in a straight line
	far := HaversineKm(obelisco, laPlata)
	assert.InDelta(t, 50, far, 10)
}

func TestHaversineSymmetric(t *testing.T) {
	assert.InDelta(t, HaversineKm(obelisco, palermo), HaversineKm(palermo, obelisco), 1e-9)
}

func TestCalculateCostPicksCoveringZone(t *testing.T) {
	quote := CalculateCost(expressZones(), 12, "express", 5000)

	assert.True(t, quote.Available)
	assert.Equal(t, "Periferia", quote.ZoneName)
	assert.Equal(t, 12.0, quote.DistanceKm)
	assert.Equal(t, 800.0+40.0*12.0, quote.ShippingCost)
	assert.Equal(t, 1280.0, quote.ShippingCost)
	assert.False(t, quote.IsFreeShipping)
}

func TestCalculateCostBoundaryResolvesToLowerZoneOrder(t *testing.T) {
	// 10 km sits on the boundary shared by both zones
	quote := CalculateCost(expressZones(), 10, "express", 5000)

	assert.True(t, quote.Available)
	assert.Equal(t, "Centro", quote.ZoneName)
	assert.Equal(t, 500.0+50.0*10.0, quote.ShippingCost)
}

func TestCalculateCostIgnoresInactiveAndOtherMethods(t *testing.T) {
	zones := expressZones()
	zones[0].IsActive = false
	zones = append(zones, models.ShippingZone{
		ID: 3, Name: "Programado", Method: "programado",
		MinDistanceKm: 0, MaxDistanceKm: 50, BaseCost: 100, CostPerKm: 10,
		IsActive: true, ZoneOrder: 0,
	})

	quote := CalculateCost(zones, 5, "express", 5000)
	assert.False(t, quote.Available)
	assert.NotEmpty(t, quote.Message)
}

func TestCalculateCostNoCoverage(t *testing.T) {
	quote := CalculateCost(expressZones(), 35, "express", 5000)

	assert.False(t, quote.Available)
	assert.Equal(t, 0.0, quote.ShippingCost)
	assert.NotEmpty(t, quote.Message)
}

func TestCalculateCostFreeShippingThreshold(t *testing.T) {
	zones := expressZones()
	zones[0].FreeFrom = 10000

	quote := CalculateCost(zones, 5, "express", 12000)
	assert.True(t, quote.Available)
	assert.True(t, quote.IsFreeShipping)
	assert.Equal(t, 0.0, quote.ShippingCost)

	quote = CalculateCost(zones, 5, "express", 9000)
	assert.False(t, quote.IsFreeShipping)
	assert.Equal(t, 500.0+50.0*5.0, quote.ShippingCost)
}

// failingProvider always reports the provider as unavailable
type failingProvider struct{}

func (failingProvider) RouteDistanceKm(context.Context, models.Coordinate, models.Coordinate) (float64, error) {
	return 0, ErrProviderUnavailable
}

// fixedProvider returns a constant route distance
type fixedProvider struct{ km float64 }

func (p fixedProvider) RouteDistanceKm(context.Context, models.Coordinate, models.Coordinate) (float64, error) {
	return p.km, nil
}

func TestDistanceServicePrefersProvider(t *testing.T) {
	svc := NewDistanceService(fixedProvider{km: 7.5})

	res := svc.DistanceKm(context.Background(), obelisco, palermo)
	assert.Equal(t, 7.5, res.Km)
	assert.Equal(t, DistanceSourceRoute, res.Source)
}

func TestDistanceServiceFallsBackToStraightLine(t *testing.T) {
	svc := NewDistanceService(failingProvider{})

	res := svc.DistanceKm(context.Background(), obelisco, palermo)
	assert.Equal(t, DistanceSourceStraightLine, res.Source)
	assert.Greater(t, res.Km, 0.0)

	same := svc.DistanceKm(context.Background(), obelisco, obelisco)
	assert.Equal(t, 0.0, same.Km)
}

// fakeShippingAPI serves config and zones, with a switchable calculate
// endpoint
type fakeShippingAPI struct {
	calculateErr error
	configCalls  int
	zoneCalls    int
}

func (f *fakeShippingAPI) GetShippingConfig(context.Context) (*models.ShippingConfig, error) {
	f.configCalls++
	return &models.ShippingConfig{
		StoreLat:             obelisco.Lat,
		StoreLng:             obelisco.Lng,
		MaxDistanceExpressKm: 20,
	}, nil
}

func (f *fakeShippingAPI) GetShippingZones(_ context.Context, method string) ([]models.ShippingZone, error) {
	f.zoneCalls++
	if method != "express" {
		return nil, nil
	}
	return expressZones(), nil
}

func (f *fakeShippingAPI) CalculateShipping(_ context.Context, distanceKm float64, _ string, _ float64) (*models.ShippingQuote, error) {
	if f.calculateErr != nil {
		return nil, f.calculateErr
	}
	return &models.ShippingQuote{
		Available:    true,
		ZoneName:     "Servidor",
		DistanceKm:   distanceKm,
		ShippingCost: 999,
	}, nil
}

func TestQuoterPrefersBackendCalculate(t *testing.T) {
	api := &fakeShippingAPI{}
	quoter := NewQuoter(api, NewDistanceService(fixedProvider{km: 12}), time.Minute)

	quote, err := quoter.Quote(context.Background(), palermo, "express", 5000)
	require.NoError(t, err)
	assert.Equal(t, "Servidor", quote.ZoneName)
	assert.Equal(t, 999.0, quote.ShippingCost)
}

func TestQuoterFallsBackToLocalZones(t *testing.T) {
	api := &fakeShippingAPI{calculateErr: backend.ErrUnavailable}
	quoter := NewQuoter(api, NewDistanceService(fixedProvider{km: 12}), time.Minute)

	quote, err := quoter.Quote(context.Background(), palermo, "express", 5000)
	require.NoError(t, err)
	assert.True(t, quote.Available)
	assert.Equal(t, "Periferia", quote.ZoneName)
	assert.Equal(t, 1280.0, quote.ShippingCost)
}

func TestQuoterRespectsMethodDistanceLimit(t *testing.T) {
	api := &fakeShippingAPI{calculateErr: backend.ErrUnavailable}
	// provider reports 18 km, inside zone coverage but over nothing;
	// bump it beyond the 20 km express limit to hit the cap
	quoter := NewQuoter(api, NewDistanceService(fixedProvider{km: 25}), time.Minute)

	quote, err := quoter.Quote(context.Background(), laPlata, "express", 5000)
	require.NoError(t, err)
	assert.False(t, quote.Available)
}

func TestQuoterSurfacesRejections(t *testing.T) {
	api := &fakeShippingAPI{calculateErr: &backend.APIError{Status: 400, Message: "método inválido"}}
	quoter := NewQuoter(api, NewDistanceService(fixedProvider{km: 5}), time.Minute)

	_, err := quoter.Quote(context.Background(), palermo, "nope", 5000)
	require.Error(t, err)
	var apiErr *backend.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestQuoterCachesZonesAndConfig(t *testing.T) {
	api := &fakeShippingAPI{calculateErr: backend.ErrUnavailable}
	quoter := NewQuoter(api, NewDistanceService(fixedProvider{km: 12}), time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := quoter.Quote(ctx, palermo, "express", 5000)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, api.configCalls)
	assert.Equal(t, 1, api.zoneCalls)
}
