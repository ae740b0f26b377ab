package worker

import (
	"context"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/session"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// CartEventWorker consumes the cart event stream. Its job is keeping
// abandon state coherent across instances: a checkout completed on any
// instance clears the phone's dedup marker everywhere.
type CartEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewCartEventWorker creates a worker bound to the session registry
func NewCartEventWorker(consumer *broker.Consumer, sessions *session.Manager) *CartEventWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()

	eventHandler.OnCheckoutCompleted(func(ctx context.Context, event *models.CheckoutCompletedEvent) error {
		if event.Phone == "" {
			return nil
		}
		logger.Info("Checkout completed, clearing abandon marker",
			zap.String("session_id", event.SessionID))
		return sessions.ClearMarkerByPhone(ctx, event.Phone)
	})

	eventHandler.OnCartAbandoned(func(_ context.Context, event *models.CartAbandonedEvent) error {
		logger.Info("Cart abandoned",
			zap.String("session_id", event.SessionID),
			zap.Float64("total", event.Total),
			zap.Int("items", len(event.Items)))
		return nil
	})

	return &CartEventWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the worker
func (w *CartEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cart event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CartEventWorker) Stop() error {
	w.logger.Info("Stopping cart event worker")
	return w.consumer.Close()
}
