package models

import "time"

// Event types
const (
	EventTypeCartItemAdded     = "CART_ITEM_ADDED"
	EventTypeCartItemUpdated   = "CART_ITEM_UPDATED"
	EventTypeCartItemRemoved   = "CART_ITEM_REMOVED"
	EventTypeCartCleared       = "CART_CLEARED"
	EventTypeCartAbandoned     = "CART_ABANDONED"
	EventTypeCheckoutCompleted = "CHECKOUT_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CartItemAddedEvent published when a line is added to a cart
type CartItemAddedEvent struct {
	BaseEvent
	SessionID  string  `json:"session_id"`
	ProductID  int64   `json:"product_id"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
	Confirmed  bool    `json:"confirmed"`
}

// CartItemUpdatedEvent published when a line quantity changes
type CartItemUpdatedEvent struct {
	BaseEvent
	SessionID  string  `json:"session_id"`
	ProductID  int64   `json:"product_id"`
	Quantity   int     `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
	Confirmed  bool    `json:"confirmed"`
}

// CartItemRemovedEvent published when a line is removed
type CartItemRemovedEvent struct {
	BaseEvent
	SessionID  string  `json:"session_id"`
	ProductID  int64   `json:"product_id"`
	TotalPrice float64 `json:"total_price"`
	Confirmed  bool    `json:"confirmed"`
}

// CartClearedEvent published when a cart is emptied
type CartClearedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
}

// CartAbandonedEvent published when an idle cart with contact info is
// reported to the marketing endpoint
type CartAbandonedEvent struct {
	BaseEvent
	SessionID string              `json:"session_id"`
	Phone     string              `json:"telefono"`
	Items     []AbandonedCartItem `json:"items"`
	Total     float64             `json:"total"`
}

// CheckoutCompletedEvent published when the customer finishes checkout
type CheckoutCompletedEvent struct {
	BaseEvent
	SessionID  string  `json:"session_id"`
	Phone      string  `json:"telefono"`
	TotalPrice float64 `json:"total_price"`
}
