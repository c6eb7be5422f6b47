package broker

import (
	"context"
	"sync"

	"pos-service/internal/models"
)

const subscriptionBuffer = 16

// OrderFeed fans order change events out to in-process subscribers,
// partitioned by tenant. Publish never blocks: a subscriber whose buffer is
// full misses the event, which is harmless because every event only means
// "something changed, recompute".
type OrderFeed struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// Subscription is one subscriber's view of a tenant's order changes
type Subscription struct {
	C <-chan models.OrderChangedEvent

	ch       chan models.OrderChangedEvent
	tenantID string
	feed     *OrderFeed
	once     sync.Once
}

func NewOrderFeed() *OrderFeed {
	return &OrderFeed{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers interest in tenantID's order changes. The caller must
// call Unsubscribe when done.
func (f *OrderFeed) Subscribe(tenantID string) *Subscription {
	ch := make(chan models.OrderChangedEvent, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, tenantID: tenantID, feed: f}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return sub
	}
	if f.subs[tenantID] == nil {
		f.subs[tenantID] = make(map[*Subscription]struct{})
	}
	f.subs[tenantID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		f := s.feed
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[s.tenantID][s]; !ok {
			return
		}
		delete(f.subs[s.tenantID], s)
		if len(f.subs[s.tenantID]) == 0 {
			delete(f.subs, s.tenantID)
		}
		close(s.ch)
	})
}

// Publish delivers event to every subscriber of its tenant
func (f *OrderFeed) Publish(event models.OrderChangedEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs[event.TenantID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// HandleOrderChanged adapts Publish to the broker's EventHandler callback
func (f *OrderFeed) HandleOrderChanged(_ context.Context, event *models.OrderChangedEvent) error {
	f.Publish(*event)
	return nil
}

// Subscribers returns the number of live subscriptions for tenantID
func (f *OrderFeed) Subscribers(tenantID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[tenantID])
}

// Close ends every subscription
func (f *OrderFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for tenantID, subs := range f.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(f.subs, tenantID)
	}
}
