package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pos-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderEvent(tenantID, orderID, status string) models.OrderChangedEvent {
	return models.OrderChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-" + orderID,
			EventType: models.EventTypeOrderCreated,
			TenantID:  tenantID,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		Status:  status,
	}
}

func TestOrderFeed_DeliversToTenantOnly(t *testing.T) {
	feed := NewOrderFeed()
	a := feed.Subscribe("tenant-a")
	b := feed.Subscribe("tenant-b")
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	feed.Publish(orderEvent("tenant-a", "o1", models.OrderStatusCompleted))

	select {
	case ev := <-a.C:
		assert.Equal(t, "o1", ev.OrderID)
	case <-time.After(time.Second):
		t.Fatal("tenant-a subscriber did not receive event")
	}

	select {
	case ev := <-b.C:
		t.Fatalf("tenant-b received foreign event %v", ev)
	default:
	}
}

func TestOrderFeed_UnsubscribeClosesChannel(t *testing.T) {
	feed := NewOrderFeed()
	sub := feed.Subscribe("tenant-a")
	assert.Equal(t, 1, feed.Subscribers("tenant-a"))

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, feed.Subscribers("tenant-a"))

	feed.Publish(orderEvent("tenant-a", "o1", models.OrderStatusCompleted))
}

func TestOrderFeed_PublishNeverBlocks(t *testing.T) {
	feed := NewOrderFeed()
	sub := feed.Subscribe("tenant-a")
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*4; i++ {
			feed.Publish(orderEvent("tenant-a", "o", models.OrderStatusPending))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, sub.C, subscriptionBuffer)
}

func TestOrderFeed_Close(t *testing.T) {
	feed := NewOrderFeed()
	sub := feed.Subscribe("tenant-a")
	feed.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Unsubscribe()

	late := feed.Subscribe("tenant-a")
	_, ok = <-late.C
	assert.False(t, ok, "subscribing to a closed feed yields a closed channel")
}

func TestEventHandler_RoutesOrderEvents(t *testing.T) {
	feed := NewOrderFeed()
	sub := feed.Subscribe("tenant-a")
	defer sub.Unsubscribe()

	h := NewEventHandler()
	h.OnOrderChanged(feed.HandleOrderChanged)

	ev := orderEvent("tenant-a", "o1", models.OrderStatusCompleted)
	ev.EventType = models.EventTypeOrderStatusChanged
	ev.FromStatus = models.OrderStatusPending
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: payload}))

	got := <-sub.C
	assert.Equal(t, models.OrderStatusPending, got.FromStatus)
	assert.Equal(t, models.OrderStatusCompleted, got.Status)

	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"OTHER"}`)}))
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestEventPublisher_KeysByTenant(t *testing.T) {
	w := &recordingWriter{}
	pub := NewEventPublisher(NewProducerWithWriter(w))

	ev := orderEvent("tenant-a", "o1", models.OrderStatusCompleted)
	require.NoError(t, pub.PublishOrderChanged(context.Background(), &ev))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "tenant-tenant-a", string(w.msgs[0].Key))

	var decoded models.OrderChangedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "o1", decoded.OrderID)

	w.err = errors.New("broker down")
	assert.Error(t, pub.PublishOrderChanged(context.Background(), &ev))
}

type scriptedReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func TestConsumer_CommitsEvenWhenHandlerFails(t *testing.T) {
	reader := &scriptedReader{msgs: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	c := NewConsumerWithReader(reader, "pos-order-events")

	ctx, cancel := context.WithCancel(context.Background())
	handled := make(chan int64, 2)
	errc := make(chan error, 1)
	go func() {
		errc <- c.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
			handled <- msg.Offset
			if msg.Offset == 1 {
				return errors.New("bad payload")
			}
			return nil
		})
	}()

	assert.Equal(t, int64(1), <-handled)
	assert.Equal(t, int64(2), <-handled)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, []int64{1, 2}, reader.committed)
}
