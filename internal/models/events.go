package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	TenantID  string    `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderChangedEvent is published whenever an order is written. Inventory
// managers treat any of these as a signal to recompute.
type OrderChangedEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	FromStatus string `json:"from_status,omitempty"`
	Status     string `json:"status"`
}
