package worker

import (
	"context"
	"errors"

	"pos-service/internal/broker"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// OrderFeedWorker relays order change events from the Kafka topic into the
// in-process order feed that inventory managers subscribe to.
type OrderFeedWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderFeedWorker creates a new order feed worker
func NewOrderFeedWorker(consumer *broker.Consumer, feed *broker.OrderFeed) *OrderFeedWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderChanged(feed.HandleOrderChanged)

	return &OrderFeedWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *OrderFeedWorker) Start(ctx context.Context) error {
	w.logger.Info("starting order feed worker")
	err := w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop stops the worker
func (w *OrderFeedWorker) Stop() error {
	w.logger.Info("stopping order feed worker")
	return w.consumer.Close()
}
