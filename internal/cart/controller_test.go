package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"storefront-service/internal/backend"
	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend keeps a server-side cart in memory and can be switched
// into failure modes
type fakeBackend struct {
	products map[int64]models.ProductSnapshot
	cart     models.Cart
	failWith error
	calls    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: map[int64]models.ProductSnapshot{
			7: {ID: 7, Name: "Ramo de rosas", UnitPrice: 1000, Stock: 10},
			9: {ID: 9, Name: "Tulipanes", UnitPrice: 500, Stock: 5},
		},
		cart: models.NewCart(),
	}
}

func (f *fakeBackend) GetCart(_ context.Context, _ string) (*models.Cart, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := f.cart.Clone()
	return &out, nil
}

func (f *fakeBackend) AddItem(_ context.Context, _ string, productID int64, quantity int) (*models.Cart, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.cart.AddLine(f.products[productID], quantity)
	out := f.cart.Clone()
	return &out, nil
}

func (f *fakeBackend) UpdateQuantity(_ context.Context, _ string, productID int64, quantity int) (*models.Cart, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.cart.SetQuantity(productID, quantity)
	out := f.cart.Clone()
	return &out, nil
}

func (f *fakeBackend) RemoveItem(_ context.Context, _ string, productID int64) (*models.Cart, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.cart.Find(productID) < 0 {
		return nil, &backend.APIError{Status: http.StatusNotFound, Message: "producto no encontrado"}
	}
	f.cart.RemoveLine(productID)
	out := f.cart.Clone()
	return &out, nil
}

func (f *fakeBackend) ClearCart(_ context.Context, _ string) (*models.Cart, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.cart.Clear()
	out := f.cart.Clone()
	return &out, nil
}

// memSnapshots is an in-memory cartcache.SnapshotStore
type memSnapshots struct {
	data map[string][]byte
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: map[string][]byte{}}
}

func (m *memSnapshots) Save(_ context.Context, sessionID string, cart models.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	m.data[sessionID] = raw
	return nil
}

func (m *memSnapshots) Load(_ context.Context, sessionID string) (*models.Cart, error) {
	raw, ok := m.data[sessionID]
	if !ok {
		return nil, nil
	}
	var cart models.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, nil
	}
	cart.Recalculate()
	return &cart, nil
}

func (m *memSnapshots) Clear(_ context.Context, sessionID string) error {
	delete(m.data, sessionID)
	return nil
}

type recordedEvents struct {
	types []string
}

func (r *recordedEvents) PublishCartItemAdded(_ context.Context, e *models.CartItemAddedEvent) error {
	r.types = append(r.types, e.EventType)
	return nil
}

func (r *recordedEvents) PublishCartItemUpdated(_ context.Context, e *models.CartItemUpdatedEvent) error {
	r.types = append(r.types, e.EventType)
	return nil
}

func (r *recordedEvents) PublishCartItemRemoved(_ context.Context, e *models.CartItemRemovedEvent) error {
	r.types = append(r.types, e.EventType)
	return nil
}

func (r *recordedEvents) PublishCartCleared(_ context.Context, e *models.CartClearedEvent) error {
	r.types = append(r.types, e.EventType)
	return nil
}

func newTestController() (*Controller, *fakeBackend, *memSnapshots, *recordedEvents) {
	be := newFakeBackend()
	snaps := newMemSnapshots()
	events := &recordedEvents{}
	return NewController("sess-1", be, snaps, events), be, snaps, events
}

func TestAddItemAdoptsServerCart(t *testing.T) {
	ctrl, be, snaps, events := newTestController()
	ctx := context.Background()

	res, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)

	assert.True(t, res.Confirmed)
	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, int64(7), res.Cart.Items[0].Product.ID)
	assert.Equal(t, 2, res.Cart.Items[0].Quantity)
	assert.Equal(t, 1000.0, res.Cart.Items[0].UnitPrice)
	assert.Equal(t, 2000.0, res.Cart.Items[0].LineTotal)
	assert.Equal(t, 2, res.Cart.TotalItems)
	assert.Equal(t, 2000.0, res.Cart.TotalPrice)
	assert.False(t, res.Cart.IsEmpty)

	// successful mutation persisted a snapshot
	snap, err := snaps.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.TotalItems)

	assert.Equal(t, []string{models.EventTypeCartItemAdded}, events.types)
}

func TestAddItemRejectsInvalidQuantity(t *testing.T) {
	ctrl, be, _, _ := newTestController()

	_, err := ctrl.AddItem(context.Background(), be.products[7], 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = ctrl.AddItem(context.Background(), be.products[7], -3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Equal(t, 0, be.calls)
}

func TestAddItemStockHint(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	_, err := ctrl.AddItem(ctx, be.products[9], 4)
	require.NoError(t, err)

	// 4 in cart + 2 requested > known stock of 5
	_, err = ctrl.AddItem(ctx, be.products[9], 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAddItemOfflineFallsBackToLocalState(t *testing.T) {
	ctrl, be, snaps, _ := newTestController()
	ctx := context.Background()

	be.failWith = backend.ErrUnavailable

	res, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)

	assert.False(t, res.Confirmed)
	assert.True(t, ctrl.Degraded())
	assert.Equal(t, 2, res.Cart.TotalItems)
	assert.Equal(t, 2000.0, res.Cart.TotalPrice)

	// the degraded cart survives a reload via the snapshot cache
	snap, err := snaps.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.TotalItems)

	// server truth never saw the mutation
	assert.True(t, be.cart.IsEmpty)
}

func TestLoadReconcilesAfterRecovery(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	be.failWith = backend.ErrUnavailable
	_, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)
	require.True(t, ctrl.Degraded())

	// backend comes back holding a different cart
	be.failWith = nil
	be.cart.AddLine(be.products[9], 1)

	res, err := ctrl.Load(ctx)
	require.NoError(t, err)

	assert.True(t, res.Confirmed)
	assert.False(t, ctrl.Degraded())
	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, int64(9), res.Cart.Items[0].Product.ID)
}

func TestAddItemRejectionLeavesStateUntouched(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	_, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)
	before := ctrl.Current()

	be.failWith = &backend.APIError{Status: http.StatusBadRequest, Message: "stock insuficiente"}
	_, err = ctrl.AddItem(ctx, be.products[9], 1)
	require.Error(t, err)

	assert.Equal(t, before, ctrl.Current())
	assert.False(t, ctrl.Degraded())
}

func TestContractViolationKeepsPreviousCart(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	_, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)

	be.failWith = backend.ErrBadResponse
	_, err = ctrl.UpdateQuantity(ctx, 7, 5)
	assert.ErrorIs(t, err, backend.ErrBadResponse)

	res := ctrl.Current()
	assert.True(t, res.Confirmed)
	assert.Equal(t, 2, res.Cart.TotalItems)
}

func TestUpdateQuantity(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	_, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)

	res, err := ctrl.UpdateQuantity(ctx, 7, 5)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Cart.Items[0].Quantity)
	assert.Equal(t, 5000.0, res.Cart.Items[0].LineTotal)
	assert.Equal(t, 5000.0, res.Cart.TotalPrice)
}

func TestUpdateQuantityZeroEqualsRemove(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	_, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)

	res, err := ctrl.UpdateQuantity(ctx, 7, 0)
	require.NoError(t, err)

	assert.True(t, res.Cart.IsEmpty)
	assert.Equal(t, 0, res.Cart.TotalItems)
}

func TestUpdateQuantityRejectsNegative(t *testing.T) {
	ctrl, _, _, _ := newTestController()

	_, err := ctrl.UpdateQuantity(context.Background(), 7, -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRemoveAbsentItemIsNoop(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	_, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)
	before := ctrl.Current()

	res, err := ctrl.RemoveItem(ctx, 999)
	require.NoError(t, err)

	assert.Equal(t, before.Cart, res.Cart)
}

func TestClearEmptiesRemoteAndSnapshot(t *testing.T) {
	ctrl, be, snaps, _ := newTestController()
	ctx := context.Background()

	_, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)

	res, err := ctrl.Clear(ctx)
	require.NoError(t, err)

	assert.True(t, res.Cart.IsEmpty)
	assert.True(t, be.cart.IsEmpty)

	snap, err := snaps.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestLoadOfflineUsesSnapshot(t *testing.T) {
	ctrl, be, snaps, _ := newTestController()
	ctx := context.Background()

	stored := models.NewCart()
	stored.AddLine(be.products[7], 3)
	require.NoError(t, snaps.Save(ctx, "sess-1", stored))

	be.failWith = backend.ErrUnavailable

	res, err := ctrl.Load(ctx)
	require.NoError(t, err)

	assert.False(t, res.Confirmed)
	assert.Equal(t, 3, res.Cart.TotalItems)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	var got []Update
	unsubscribe := ctrl.Subscribe(func(u Update) {
		got = append(got, u)
	})

	_, err := ctrl.AddItem(ctx, be.products[7], 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Cart.TotalItems)
	assert.True(t, got[0].Confirmed)

	unsubscribe()

	_, err = ctrl.AddItem(ctx, be.products[9], 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInvariantHoldsAcrossMutationSequences(t *testing.T) {
	ctrl, be, _, _ := newTestController()
	ctx := context.Background()

	steps := []func() (*Result, error){
		func() (*Result, error) { return ctrl.AddItem(ctx, be.products[7], 2) },
		func() (*Result, error) { return ctrl.AddItem(ctx, be.products[9], 3) },
		func() (*Result, error) { return ctrl.UpdateQuantity(ctx, 7, 4) },
		func() (*Result, error) { return ctrl.RemoveItem(ctx, 9) },
		func() (*Result, error) { return ctrl.UpdateQuantity(ctx, 7, 0) },
	}

	for _, step := range steps {
		res, err := step()
		require.NoError(t, err)

		wantItems := 0
		wantPrice := 0.0
		for _, it := range res.Cart.Items {
			wantItems += it.Quantity
			wantPrice += it.LineTotal
		}
		assert.Equal(t, wantItems, res.Cart.TotalItems)
		assert.Equal(t, wantPrice, res.Cart.TotalPrice)
		assert.Equal(t, len(res.Cart.Items) == 0, res.Cart.IsEmpty)
	}
}
