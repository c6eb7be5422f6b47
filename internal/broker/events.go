package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderChanged publishes an order change keyed by tenant, so one
// tenant's events are consumed in the order they were written.
func (ep *EventPublisher) PublishOrderChanged(ctx context.Context, event *models.OrderChangedEvent) error {
	key := fmt.Sprintf("tenant-%s", event.TenantID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderChanged func(context.Context, *models.OrderChangedEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderChanged registers a handler for order created/status changed events
func (eh *EventHandler) OnOrderChanged(handler func(context.Context, *models.OrderChangedEvent) error) {
	eh.onOrderChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID),
		zap.String("tenant_id", baseEvent.TenantID),
	)

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated, models.EventTypeOrderStatusChanged:
		if eh.onOrderChanged != nil {
			var event models.OrderChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onOrderChanged(ctx, &event)
		}

	default:
		eh.logger.Warn("unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
