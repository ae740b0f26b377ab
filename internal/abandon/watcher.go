package abandon

import (
	"context"
	"sync"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reporter sends the abandoned-cart record to the marketing endpoint
type Reporter interface {
	ReportAbandonedCart(ctx context.Context, record *models.AbandonedCartRecord) (int64, error)
}

// MarkerStore holds the per-phone dedup marker that suppresses repeat
// reports within the cooldown window
type MarkerStore interface {
	AcquireAbandonMarker(ctx context.Context, marker models.AbandonMarker, cooldown time.Duration) (bool, error)
	ClearAbandonMarker(ctx context.Context, phone string) error
}

// EventPublisher publishes the CartAbandoned event for downstream
// marketing consumers
type EventPublisher interface {
	PublishCartAbandoned(ctx context.Context, event *models.CartAbandonedEvent) error
}

// Watcher detects customer disengagement for one session. It observes
// the cart controller's update stream and the checkout contact fields;
// once a phone number and at least one item are present it arms a
// single delayed report. Any change rearms with a fresh delay, so only
// the latest state is ever reported.
type Watcher struct {
	sessionID string
	reporter  Reporter
	markers   MarkerStore
	events    EventPublisher
	timer     *Timer
	idleDelay time.Duration
	cooldown  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	contact   models.Contact
	cart      models.Cart
	completed bool
}

// NewWatcher creates a watcher for one storefront session
func NewWatcher(sessionID string, reporter Reporter, markers MarkerStore, events EventPublisher, idleDelay, cooldown time.Duration) *Watcher {
	return &Watcher{
		sessionID: sessionID,
		reporter:  reporter,
		markers:   markers,
		events:    events,
		timer:     NewTimer(),
		idleDelay: idleDelay,
		cooldown:  cooldown,
		logger:    util.GetLogger().With(zap.String("session_id", sessionID)),
		cart:      models.NewCart(),
	}
}

// ObserveCart feeds the watcher the latest cart state. Wire it to the
// controller's Subscribe.
func (w *Watcher) ObserveCart(cart models.Cart) {
	w.mu.Lock()
	w.cart = cart.Clone()
	if cart.IsEmpty {
		// the cart is gone; a future cart is a fresh attempt
		w.completed = false
	}
	w.mu.Unlock()
	w.rearm()
}

// SetContact records the checkout contact fields. Editing any field
// while armed cancels and rearms the pending report.
func (w *Watcher) SetContact(contact models.Contact) {
	w.mu.Lock()
	w.contact = contact
	w.mu.Unlock()
	w.rearm()
}

// CheckoutCompleted cancels the pending report unconditionally and
// clears the dedup marker so the same customer is eligible again for a
// future cart
func (w *Watcher) CheckoutCompleted(ctx context.Context) {
	w.mu.Lock()
	w.completed = true
	phone := w.contact.Phone
	w.mu.Unlock()

	w.timer.Cancel()

	if phone == "" {
		return
	}
	if err := w.markers.ClearAbandonMarker(ctx, phone); err != nil {
		w.logger.Warn("Failed to clear abandon marker", zap.Error(err))
	}
}

// Stop cancels any pending report. Used on session eviction.
func (w *Watcher) Stop() {
	w.timer.Cancel()
}

// Armed reports whether a delayed report is currently scheduled
func (w *Watcher) Armed() bool {
	return w.timer.Pending()
}

// rearm moves the state machine: cancel any pending action, then arm a
// fresh one only when phone + items are present and checkout has not
// completed
func (w *Watcher) rearm() {
	w.mu.Lock()
	eligible := !w.completed && w.contact.Phone != "" && !w.cart.IsEmpty
	w.mu.Unlock()

	if !eligible {
		w.timer.Cancel()
		return
	}
	w.timer.Arm(w.idleDelay, w.fire)
}

// fire runs when the idle delay elapses without cancellation. The
// report is fire and forget: failures are logged, never retried, and
// cannot affect any user-facing operation.
func (w *Watcher) fire() {
	w.mu.Lock()
	if w.completed || w.contact.Phone == "" || w.cart.IsEmpty {
		w.mu.Unlock()
		return
	}
	record := w.buildRecord()
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	marker := models.AbandonMarker{
		Phone:      record.Phone,
		ReportedAt: time.Now(),
		CartID:     w.sessionID,
	}
	acquired, err := w.markers.AcquireAbandonMarker(ctx, marker, w.cooldown)
	if err != nil {
		// without the marker we cannot guarantee once-per-cooldown,
		// so skip rather than risk spamming the customer
		w.logger.Warn("Abandon marker check failed, skipping report", zap.Error(err))
		return
	}
	if !acquired {
		util.AbandonedCartsSuppressedTotal.Inc()
		w.logger.Info("Abandoned-cart report suppressed by cooldown",
			zap.String("telefono", record.Phone))
		return
	}

	if _, err := w.reporter.ReportAbandonedCart(ctx, record); err != nil {
		util.AbandonedReportFailuresTotal.Inc()
		w.logger.Error("Failed to report abandoned cart", zap.Error(err))
		return
	}

	util.AbandonedCartsReportedTotal.Inc()
	w.logger.Info("Abandoned cart reported",
		zap.String("telefono", record.Phone),
		zap.Float64("total", record.Total))

	if w.events != nil {
		event := &models.CartAbandonedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeCartAbandoned,
				Timestamp: time.Now(),
			},
			SessionID: w.sessionID,
			Phone:     record.Phone,
			Items:     record.Items,
			Total:     record.Total,
		}
		if err := w.events.PublishCartAbandoned(ctx, event); err != nil {
			w.logger.Error("Failed to publish CartAbandoned event", zap.Error(err))
		}
	}
}

// buildRecord snapshots the contact and cart into a report. Callers
// hold w.mu.
func (w *Watcher) buildRecord() *models.AbandonedCartRecord {
	items := make([]models.AbandonedCartItem, 0, len(w.cart.Items))
	for _, it := range w.cart.Items {
		items = append(items, models.AbandonedCartItem{
			Name:     it.Product.Name,
			Quantity: it.Quantity,
			Price:    it.UnitPrice,
		})
	}
	return &models.AbandonedCartRecord{
		Phone: w.contact.Phone,
		Name:  w.contact.Name,
		Email: w.contact.Email,
		Items: items,
		Total: w.cart.TotalPrice,
	}
}
