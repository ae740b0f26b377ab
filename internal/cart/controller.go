package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"storefront-service/internal/backend"
	"storefront-service/internal/cartcache"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Validation errors, surfaced to the caller before any backend call
var (
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInsufficientStock = errors.New("requested quantity exceeds known stock")
)

// Backend is the slice of the shop API the controller depends on
type Backend interface {
	GetCart(ctx context.Context, sessionID string) (*models.Cart, error)
	AddItem(ctx context.Context, sessionID string, productID int64, quantity int) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, sessionID string, productID int64) (*models.Cart, error)
	ClearCart(ctx context.Context, sessionID string) (*models.Cart, error)
}

// EventPublisher publishes cart domain events. Publishing is fire and
// forget: failures are logged and never fail a user-facing operation.
type EventPublisher interface {
	PublishCartItemAdded(ctx context.Context, event *models.CartItemAddedEvent) error
	PublishCartItemUpdated(ctx context.Context, event *models.CartItemUpdatedEvent) error
	PublishCartItemRemoved(ctx context.Context, event *models.CartItemRemovedEvent) error
	PublishCartCleared(ctx context.Context, event *models.CartClearedEvent) error
}

// Result is what every cart operation hands back to the caller.
// Confirmed is false when the backend could not be reached and the
// cart shown is the local best-effort state.
type Result struct {
	Cart      models.Cart `json:"cart"`
	Confirmed bool        `json:"confirmed"`
}

// Update is delivered to subscribers after every state change
type Update struct {
	Cart      models.Cart
	Confirmed bool
	Degraded  bool
}

// Controller is the single source of truth for one session's cart. It
// keeps an explicit two-state value: confirmed is the last cart the
// backend acknowledged, pending holds the optimistic local override
// while the backend is unreachable. Mutations are serialized per cart
// by the controller mutex; overlapping requests queue rather than race.
type Controller struct {
	sessionID string
	backend   Backend
	snapshots cartcache.SnapshotStore
	events    EventPublisher
	logger    *zap.Logger

	mu        sync.Mutex
	confirmed models.Cart
	pending   *models.Cart
	degraded  bool
	inFlight  atomic.Bool

	subMu   sync.Mutex
	subs    map[int64]func(Update)
	nextSub int64
}

// NewController creates a controller for one storefront session
func NewController(sessionID string, be Backend, snapshots cartcache.SnapshotStore, events EventPublisher) *Controller {
	return &Controller{
		sessionID: sessionID,
		backend:   be,
		snapshots: snapshots,
		events:    events,
		logger:    util.GetLogger().With(zap.String("session_id", sessionID)),
		confirmed: models.NewCart(),
		subs:      map[int64]func(Update){},
	}
}

// SessionID returns the session this controller owns
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Subscribe registers an observer for cart updates and returns an
// unsubscribe function. Observers receive a deep copy of the cart.
func (c *Controller) Subscribe(fn func(Update)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

// Current returns the cart as the session currently sees it
func (c *Controller) Current() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Result{Cart: c.effective().Clone(), Confirmed: !c.degraded}
}

// Degraded reports whether the controller is operating offline
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// InFlight reports whether a mutation is currently talking to the
// backend, so presentation layers can disable controls
func (c *Controller) InFlight() bool {
	return c.inFlight.Load()
}

// effective is the cart the session sees: the optimistic override when
// present, the confirmed cart otherwise. Callers hold c.mu.
func (c *Controller) effective() *models.Cart {
	if c.pending != nil {
		return c.pending
	}
	return &c.confirmed
}

// Load fetches the cart from the backend, falling back to the last
// snapshot when the backend is unreachable
func (c *Controller) Load(ctx context.Context) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "CartController.Load")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	serverCart, err := c.backend.GetCart(ctx, c.sessionID)
	if err == nil {
		c.adopt(ctx, *serverCart)
		return c.result(), nil
	}

	if backend.IsUnavailable(err) {
		c.logger.Warn("Backend unreachable, loading cart from snapshot cache", zap.Error(err))
		util.CartDegradedFallbacksTotal.Inc()

		if snap, snapErr := c.snapshots.Load(ctx, c.sessionID); snapErr == nil && snap != nil {
			c.confirmed = *snap
		}
		c.degraded = true
		c.notify()
		return c.result(), nil
	}

	if errors.Is(err, backend.ErrBadResponse) {
		util.CartContractViolationsTotal.Inc()
		c.logger.Error("Backend contract violation on load, keeping previous cart", zap.Error(err))
	}
	return nil, fmt.Errorf("load cart: %w", err)
}

// AddItem adds a product to the cart. The stock figure on the snapshot
// is a UI hint only; the backend remains the stock authority.
func (c *Controller) AddItem(ctx context.Context, product models.ProductSnapshot, quantity int) (*Result, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	ctx, span := util.StartSpan(ctx, "CartController.AddItem")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if product.Stock > 0 {
		inCart := 0
		if idx := c.effective().Find(product.ID); idx >= 0 {
			inCart = c.effective().Items[idx].Quantity
		}
		if inCart+quantity > product.Stock {
			return nil, ErrInsufficientStock
		}
	}

	res, err := c.mutate(ctx, "add_item",
		func() (*models.Cart, error) {
			return c.backend.AddItem(ctx, c.sessionID, product.ID, quantity)
		},
		func(local *models.Cart) {
			local.AddLine(product, quantity)
		})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, func() error {
		return c.events.PublishCartItemAdded(ctx, &models.CartItemAddedEvent{
			BaseEvent:  newBaseEvent(models.EventTypeCartItemAdded),
			SessionID:  c.sessionID,
			ProductID:  product.ID,
			Quantity:   quantity,
			UnitPrice:  product.UnitPrice,
			TotalPrice: res.Cart.TotalPrice,
			Confirmed:  res.Confirmed,
		})
	})
	return res, nil
}

// UpdateQuantity replaces a line's quantity. Zero is equivalent to
// RemoveItem; negative quantities are rejected, not clamped.
func (c *Controller) UpdateQuantity(ctx context.Context, productID int64, quantity int) (*Result, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		return c.RemoveItem(ctx, productID)
	}

	ctx, span := util.StartSpan(ctx, "CartController.UpdateQuantity")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.mutate(ctx, "update_quantity",
		func() (*models.Cart, error) {
			return c.backend.UpdateQuantity(ctx, c.sessionID, productID, quantity)
		},
		func(local *models.Cart) {
			local.SetQuantity(productID, quantity)
		})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, func() error {
		return c.events.PublishCartItemUpdated(ctx, &models.CartItemUpdatedEvent{
			BaseEvent:  newBaseEvent(models.EventTypeCartItemUpdated),
			SessionID:  c.sessionID,
			ProductID:  productID,
			Quantity:   quantity,
			TotalPrice: res.Cart.TotalPrice,
			Confirmed:  res.Confirmed,
		})
	})
	return res, nil
}

// RemoveItem removes a product line. Removing an absent product is a
// no-op, including when the backend answers 404.
func (c *Controller) RemoveItem(ctx context.Context, productID int64) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "CartController.RemoveItem")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.mutate(ctx, "remove_item",
		func() (*models.Cart, error) {
			return c.backend.RemoveItem(ctx, c.sessionID, productID)
		},
		func(local *models.Cart) {
			local.RemoveLine(productID)
		})
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return c.result(), nil
		}
		return nil, err
	}

	c.publish(ctx, func() error {
		return c.events.PublishCartItemRemoved(ctx, &models.CartItemRemovedEvent{
			BaseEvent:  newBaseEvent(models.EventTypeCartItemRemoved),
			SessionID:  c.sessionID,
			ProductID:  productID,
			TotalPrice: res.Cart.TotalPrice,
			Confirmed:  res.Confirmed,
		})
	})
	return res, nil
}

// Clear empties the remote cart and the local snapshot. Used after a
// successful checkout and by the explicit empty-cart action.
func (c *Controller) Clear(ctx context.Context) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "CartController.Clear")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.mutate(ctx, "clear",
		func() (*models.Cart, error) {
			return c.backend.ClearCart(ctx, c.sessionID)
		},
		func(local *models.Cart) {
			local.Clear()
		})
	if err != nil {
		return nil, err
	}

	if clearErr := c.snapshots.Clear(ctx, c.sessionID); clearErr != nil {
		c.logger.Warn("Failed to clear cart snapshot", zap.Error(clearErr))
	}

	c.publish(ctx, func() error {
		return c.events.PublishCartCleared(ctx, &models.CartClearedEvent{
			BaseEvent: newBaseEvent(models.EventTypeCartCleared),
			SessionID: c.sessionID,
		})
	})
	return res, nil
}

// mutate runs one mutation against the backend, with the optimistic
// local apply as the degraded path. Callers hold c.mu.
//
// Outcomes:
//   - backend success: adopt the server cart wholesale, confirmed.
//   - backend unreachable: apply the local mutation to a copy of the
//     effective cart and keep it as the pending override, unconfirmed.
//   - application rejection or contract violation: state untouched,
//     error returned.
func (c *Controller) mutate(ctx context.Context, operation string, remote func() (*models.Cart, error), local func(*models.Cart)) (*Result, error) {
	start := time.Now()
	c.inFlight.Store(true)
	defer func() {
		c.inFlight.Store(false)
		util.CartMutationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	serverCart, err := remote()
	if err == nil {
		util.CartMutationsTotal.WithLabelValues(operation, "confirmed").Inc()
		c.adopt(ctx, *serverCart)
		return c.result(), nil
	}

	if backend.IsUnavailable(err) {
		util.CartMutationsTotal.WithLabelValues(operation, "degraded").Inc()
		util.CartDegradedFallbacksTotal.Inc()
		c.logger.Warn("Backend unreachable, applying mutation locally",
			zap.String("operation", operation),
			zap.Error(err))

		localCart := c.effective().Clone()
		local(&localCart)
		c.pending = &localCart
		c.degraded = true
		c.persist(ctx)
		c.notify()
		return c.result(), nil
	}

	if errors.Is(err, backend.ErrBadResponse) {
		util.CartMutationsTotal.WithLabelValues(operation, "contract_error").Inc()
		util.CartContractViolationsTotal.Inc()
		c.logger.Error("Backend contract violation, keeping previous cart",
			zap.String("operation", operation),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	util.CartMutationsTotal.WithLabelValues(operation, "rejected").Inc()
	return nil, fmt.Errorf("%s: %w", operation, err)
}

// adopt replaces local state with a server-acknowledged cart and
// leaves degraded mode. Callers hold c.mu.
func (c *Controller) adopt(ctx context.Context, serverCart models.Cart) {
	serverCart.Recalculate()
	c.confirmed = serverCart
	c.pending = nil
	c.degraded = false
	c.persist(ctx)
	c.notify()
}

// persist writes the effective cart to the snapshot cache so a reload
// during a backend outage does not lose the cart. Callers hold c.mu.
func (c *Controller) persist(ctx context.Context) {
	if err := c.snapshots.Save(ctx, c.sessionID, c.effective().Clone()); err != nil {
		c.logger.Warn("Failed to persist cart snapshot", zap.Error(err))
	}
}

// result builds the caller-facing view. Callers hold c.mu.
func (c *Controller) result() *Result {
	return &Result{Cart: c.effective().Clone(), Confirmed: !c.degraded}
}

// notify delivers the current state to subscribers. Callers hold c.mu;
// observer callbacks must not call back into the controller mutations.
func (c *Controller) notify() {
	update := Update{Cart: c.effective().Clone(), Confirmed: !c.degraded, Degraded: c.degraded}

	c.subMu.Lock()
	fns := make([]func(Update), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(update)
	}
}

// publish sends a cart event, logging failures
func (c *Controller) publish(ctx context.Context, send func() error) {
	if c.events == nil {
		return
	}
	if err := send(); err != nil {
		c.logger.Error("Failed to publish cart event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
