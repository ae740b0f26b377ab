package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ErrProviderUnavailable means the routing provider could not answer;
// callers fall through to the next distance strategy
var ErrProviderUnavailable = errors.New("route provider unavailable")

// Distance sources
const (
	DistanceSourceRoute        = "route"
	DistanceSourceStraightLine = "straight_line"
)

// RouteProvider computes a driving distance between two points
type RouteProvider interface {
	RouteDistanceKm(ctx context.Context, origin, dest models.Coordinate) (float64, error)
}

// OSRMProvider queries an OSRM-compatible routing endpoint. A short
// timeout keeps a slow provider from hanging quote requests.
type OSRMProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOSRMProvider creates a routing provider client
func NewOSRMProvider(baseURL string, timeout time.Duration) *OSRMProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &OSRMProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RouteDistanceKm asks the provider for the driving distance
func (p *OSRMProvider) RouteDistanceKm(ctx context.Context, origin, dest models.Coordinate) (float64, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		p.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create route request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var payload struct {
		Code   string `json:"code"`
		Routes []struct {
			Distance float64 `json:"distance"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: bad response", ErrProviderUnavailable)
	}
	if payload.Code != "Ok" || len(payload.Routes) == 0 {
		return 0, fmt.Errorf("%w: no route found", ErrProviderUnavailable)
	}

	return payload.Routes[0].Distance / 1000.0, nil
}

// DistanceResult carries the distance and which strategy produced it
type DistanceResult struct {
	Km     float64
	Source string
}

// DistanceService resolves a distance through an ordered strategy
// list: each configured route provider in order, then the great-circle
// fallback, which always succeeds for well-formed coordinates
type DistanceService struct {
	providers []RouteProvider
	logger    *zap.Logger
}

// NewDistanceService builds the strategy list in priority order
func NewDistanceService(providers ...RouteProvider) *DistanceService {
	return &DistanceService{providers: providers, logger: util.GetLogger()}
}

// DistanceKm computes the distance between origin and dest
func (s *DistanceService) DistanceKm(ctx context.Context, origin, dest models.Coordinate) DistanceResult {
	for _, p := range s.providers {
		km, err := p.RouteDistanceKm(ctx, origin, dest)
		if err == nil {
			return DistanceResult{Km: km, Source: DistanceSourceRoute}
		}
		s.logger.Warn("Route provider failed, trying next strategy", zap.Error(err))
	}

	util.DistanceFallbacksTotal.Inc()
	return DistanceResult{Km: HaversineKm(origin, dest), Source: DistanceSourceStraightLine}
}

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between two coordinates.
// Returns 0 only when origin equals dest.
func HaversineKm(origin, dest models.Coordinate) float64 {
	lat1 := origin.Lat * math.Pi / 180
	lat2 := dest.Lat * math.Pi / 180
	dLat := (dest.Lat - origin.Lat) * math.Pi / 180
	dLng := (dest.Lng - origin.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
