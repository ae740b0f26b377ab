package shipping

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-service/internal/backend"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Quote sources
const (
	QuoteSourceBackend = "backend"
	QuoteSourceLocal   = "local"
)

// ShippingAPI is the slice of the shop backend the quoter depends on
type ShippingAPI interface {
	GetShippingConfig(ctx context.Context) (*models.ShippingConfig, error)
	GetShippingZones(ctx context.Context, method string) ([]models.ShippingZone, error)
	CalculateShipping(ctx context.Context, distanceKm float64, method string, orderAmount float64) (*models.ShippingQuote, error)
}

// Quoter prices a delivery. The backend calculate endpoint is the
// primary path; when it is unreachable the quoter recomputes the cost
// from its cached zone tables so the checkout keeps working offline.
type Quoter struct {
	api      ShippingAPI
	distance *DistanceService
	cacheTTL time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	config    *models.ShippingConfig
	configAt  time.Time
	zones     map[string][]models.ShippingZone
	zonesAt   map[string]time.Time
}

// NewQuoter creates a quoter with a zone/config cache TTL
func NewQuoter(api ShippingAPI, distance *DistanceService, cacheTTL time.Duration) *Quoter {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Quoter{
		api:      api,
		distance: distance,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
		zones:    map[string][]models.ShippingZone{},
		zonesAt:  map[string]time.Time{},
	}
}

// Quote estimates the shipping cost to dest for the given method
func (q *Quoter) Quote(ctx context.Context, dest models.Coordinate, method string, orderAmount float64) (*models.ShippingQuote, error) {
	ctx, span := util.StartSpan(ctx, "Quoter.Quote")
	defer span.End()

	config, err := q.getConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("shipping config: %w", err)
	}

	origin := models.Coordinate{Lat: config.StoreLat, Lng: config.StoreLng}
	dist := q.distance.DistanceKm(ctx, origin, dest)

	if quote, calcErr := q.api.CalculateShipping(ctx, dist.Km, method, orderAmount); calcErr == nil {
		util.ShippingQuotesTotal.WithLabelValues(QuoteSourceBackend).Inc()
		return quote, nil
	} else if !backend.IsUnavailable(calcErr) {
		return nil, fmt.Errorf("calculate shipping: %w", calcErr)
	}

	q.logger.Warn("Backend calculate unreachable, pricing from cached zones",
		zap.String("method", method),
		zap.Float64("distance_km", dist.Km))

	zones, err := q.getZones(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("shipping zones: %w", err)
	}

	quote := CalculateCost(zones, dist.Km, method, orderAmount)
	if quote.Available && exceedsMethodLimit(config, method, dist.Km) {
		quote = models.ShippingQuote{
			Available:  false,
			DistanceKm: dist.Km,
			Message:    "La dirección está fuera del área de entrega",
		}
	}
	util.ShippingQuotesTotal.WithLabelValues(QuoteSourceLocal).Inc()
	return &quote, nil
}

// CalculateCost picks the zone covering distanceKm for the method and
// prices it. Tie-break is deterministic: zones are considered in
// ascending zone_order and the first active zone whose inclusive
// [min, max] range contains the distance wins, so a distance sitting
// exactly on a shared boundary resolves to the lower-ordered zone.
func CalculateCost(zones []models.ShippingZone, distanceKm float64, method string, orderAmount float64) models.ShippingQuote {
	sorted := make([]models.ShippingZone, len(zones))
	copy(sorted, zones)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ZoneOrder < sorted[j].ZoneOrder
	})

	for _, zone := range sorted {
		if !zone.IsActive || zone.Method != method {
			continue
		}
		if distanceKm < zone.MinDistanceKm || distanceKm > zone.MaxDistanceKm {
			continue
		}

		cost := zone.BaseCost + zone.CostPerKm*distanceKm
		free := zone.FreeFrom > 0 && orderAmount >= zone.FreeFrom
		if free {
			cost = 0
		}
		return models.ShippingQuote{
			Available:      true,
			ZoneName:       zone.Name,
			DistanceKm:     distanceKm,
			ShippingCost:   cost,
			IsFreeShipping: free,
		}
	}

	return models.ShippingQuote{
		Available:  false,
		DistanceKm: distanceKm,
		Message:    "Sin cobertura para esa distancia",
	}
}

func exceedsMethodLimit(config *models.ShippingConfig, method string, distanceKm float64) bool {
	switch method {
	case models.ShippingMethodExpress:
		return config.MaxDistanceExpressKm > 0 && distanceKm > config.MaxDistanceExpressKm
	case models.ShippingMethodScheduled:
		return config.MaxDistanceProgramKm > 0 && distanceKm > config.MaxDistanceProgramKm
	}
	return false
}

// getConfig returns the shipping config, cached for cacheTTL. A stale
// cached copy is better than no quote when the backend is down.
func (q *Quoter) getConfig(ctx context.Context) (*models.ShippingConfig, error) {
	q.mu.Lock()
	if q.config != nil && time.Since(q.configAt) < q.cacheTTL {
		cached := *q.config
		q.mu.Unlock()
		return &cached, nil
	}
	q.mu.Unlock()

	config, err := q.api.GetShippingConfig(ctx)
	if err != nil {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.config != nil {
			stale := *q.config
			return &stale, nil
		}
		return nil, err
	}

	q.mu.Lock()
	q.config = config
	q.configAt = time.Now()
	q.mu.Unlock()
	return config, nil
}

// getZones returns the zone table for a method, cached for cacheTTL,
// falling back to a stale copy when the backend is unreachable
func (q *Quoter) getZones(ctx context.Context, method string) ([]models.ShippingZone, error) {
	q.mu.Lock()
	if zones, ok := q.zones[method]; ok && time.Since(q.zonesAt[method]) < q.cacheTTL {
		q.mu.Unlock()
		return zones, nil
	}
	q.mu.Unlock()

	zones, err := q.api.GetShippingZones(ctx, method)
	if err != nil {
		q.mu.Lock()
		defer q.mu.Unlock()
		if stale, ok := q.zones[method]; ok {
			return stale, nil
		}
		return nil, err
	}

	q.mu.Lock()
	q.zones[method] = zones
	q.zonesAt[method] = time.Now()
	q.mu.Unlock()
	return zones, nil
}
