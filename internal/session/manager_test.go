package session

import (
	"context"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend confirms every mutation against an in-memory cart
type stubBackend struct {
	carts map[string]*models.Cart
}

func newStubBackend() *stubBackend {
	return &stubBackend{carts: map[string]*models.Cart{}}
}

func (s *stubBackend) cartFor(sessionID string) *models.Cart {
	if c, ok := s.carts[sessionID]; ok {
		return c
	}
	c := models.NewCart()
	s.carts[sessionID] = &c
	return &c
}

func (s *stubBackend) GetCart(_ context.Context, sessionID string) (*models.Cart, error) {
	out := s.cartFor(sessionID).Clone()
	return &out, nil
}

func (s *stubBackend) AddItem(_ context.Context, sessionID string, productID int64, quantity int) (*models.Cart, error) {
	c := s.cartFor(sessionID)
	c.AddLine(models.ProductSnapshot{ID: productID, Name: "Flor", UnitPrice: 100}, quantity)
	out := c.Clone()
	return &out, nil
}

func (s *stubBackend) UpdateQuantity(_ context.Context, sessionID string, productID int64, quantity int) (*models.Cart, error) {
	c := s.cartFor(sessionID)
	c.SetQuantity(productID, quantity)
	out := c.Clone()
	return &out, nil
}

func (s *stubBackend) RemoveItem(_ context.Context, sessionID string, productID int64) (*models.Cart, error) {
	c := s.cartFor(sessionID)
	c.RemoveLine(productID)
	out := c.Clone()
	return &out, nil
}

func (s *stubBackend) ClearCart(_ context.Context, sessionID string) (*models.Cart, error) {
	c := s.cartFor(sessionID)
	c.Clear()
	out := c.Clone()
	return &out, nil
}

type stubSnapshots struct{}

func (stubSnapshots) Save(context.Context, string, models.Cart) error    { return nil }
func (stubSnapshots) Load(context.Context, string) (*models.Cart, error) { return nil, nil }
func (stubSnapshots) Clear(context.Context, string) error                { return nil }

type stubReporter struct{}

func (stubReporter) ReportAbandonedCart(context.Context, *models.AbandonedCartRecord) (int64, error) {
	return 1, nil
}

type stubMarkers struct{}

func (stubMarkers) AcquireAbandonMarker(context.Context, models.AbandonMarker, time.Duration) (bool, error) {
	return true, nil
}
func (stubMarkers) ClearAbandonMarker(context.Context, string) error { return nil }

func newTestManager() *Manager {
	return NewManager(Deps{
		Backend:          newStubBackend(),
		Reporter:         stubReporter{},
		Snapshots:        stubSnapshots{},
		Markers:          stubMarkers{},
		AbandonIdleDelay: time.Hour,
		AbandonCooldown:  time.Hour,
	}, time.Hour)
}

func TestGetReturnsSameSession(t *testing.T) {
	m := newTestManager()

	a := m.Get("sess-1")
	b := m.Get("sess-1")
	other := m.Get("sess-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, m.Len())
}

func TestControllerFeedsWatcher(t *testing.T) {
	m := newTestManager()
	s := m.Get("sess-1")
	ctx := context.Background()

	s.Watcher.SetContact(models.Contact{Phone: "1122334455"})
	assert.False(t, s.Watcher.Armed())

	_, err := s.Controller.AddItem(ctx, models.ProductSnapshot{ID: 7, Name: "Rosas", UnitPrice: 1000}, 1)
	require.NoError(t, err)

	// the mutation flowed through the subscription and armed the watcher
	assert.True(t, s.Watcher.Armed())
}

func TestEvictStopsWatcher(t *testing.T) {
	m := newTestManager()
	s := m.Get("sess-1")
	ctx := context.Background()

	s.Watcher.SetContact(models.Contact{Phone: "1122334455"})
	_, err := s.Controller.AddItem(ctx, models.ProductSnapshot{ID: 7, UnitPrice: 1000}, 1)
	require.NoError(t, err)
	require.True(t, s.Watcher.Armed())

	m.Evict("sess-1")

	assert.Equal(t, 0, m.Len())
	assert.False(t, s.Watcher.Armed())
}
