package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes cart domain events, keyed by session so all
// events for one cart land on the same partition
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCartItemAdded publishes a CartItemAdded event
func (ep *EventPublisher) PublishCartItemAdded(ctx context.Context, event *models.CartItemAddedEvent) error {
	return ep.producer.PublishEvent(ctx, cartKey(event.SessionID), event)
}

// PublishCartItemUpdated publishes a CartItemUpdated event
func (ep *EventPublisher) PublishCartItemUpdated(ctx context.Context, event *models.CartItemUpdatedEvent) error {
	return ep.producer.PublishEvent(ctx, cartKey(event.SessionID), event)
}

// PublishCartItemRemoved publishes a CartItemRemoved event
func (ep *EventPublisher) PublishCartItemRemoved(ctx context.Context, event *models.CartItemRemovedEvent) error {
	return ep.producer.PublishEvent(ctx, cartKey(event.SessionID), event)
}

// PublishCartCleared publishes a CartCleared event
func (ep *EventPublisher) PublishCartCleared(ctx context.Context, event *models.CartClearedEvent) error {
	return ep.producer.PublishEvent(ctx, cartKey(event.SessionID), event)
}

// PublishCartAbandoned publishes a CartAbandoned event
func (ep *EventPublisher) PublishCartAbandoned(ctx context.Context, event *models.CartAbandonedEvent) error {
	return ep.producer.PublishEvent(ctx, cartKey(event.SessionID), event)
}

// PublishCheckoutCompleted publishes a CheckoutCompleted event
func (ep *EventPublisher) PublishCheckoutCompleted(ctx context.Context, event *models.CheckoutCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, cartKey(event.SessionID), event)
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart-%s", sessionID)
}

// EventHandler routes consumed cart events to registered callbacks
type EventHandler struct {
	logger              *zap.Logger
	onCheckoutCompleted func(context.Context, *models.CheckoutCompletedEvent) error
	onCartAbandoned     func(context.Context, *models.CartAbandonedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnCheckoutCompleted registers a handler for CheckoutCompleted events
func (eh *EventHandler) OnCheckoutCompleted(handler func(context.Context, *models.CheckoutCompletedEvent) error) {
	eh.onCheckoutCompleted = handler
}

// OnCartAbandoned registers a handler for CartAbandoned events
func (eh *EventHandler) OnCartAbandoned(handler func(context.Context, *models.CartAbandonedEvent) error) {
	eh.onCartAbandoned = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeCheckoutCompleted:
		if eh.onCheckoutCompleted != nil {
			var event models.CheckoutCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CheckoutCompleted event: %w", err)
			}
			return eh.onCheckoutCompleted(ctx, &event)
		}

	case models.EventTypeCartAbandoned:
		if eh.onCartAbandoned != nil {
			var event models.CartAbandonedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CartAbandoned event: %w", err)
			}
			return eh.onCartAbandoned(ctx, &event)
		}

	default:
		// cart item events are consumed by downstream analytics only
	}

	return nil
}
