package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

const (
	mainStockKey     = "main"
	recomputeTimeout = 30 * time.Second
)

// StockKey identifies a stock entry: "{productID}-{variantID}" or
// "{productID}-main" for stock declared on the product itself.
func StockKey(productID, variantID string) string {
	if variantID == "" {
		variantID = mainStockKey
	}
	return productID + "-" + variantID
}

// StockEntry is the derived availability of one product or variant
type StockEntry struct {
	Key             string `json:"key"`
	ProductID       string `json:"product_id"`
	VariantID       string `json:"variant_id,omitempty"`
	Name            string `json:"name"`
	TotalStock      int    `json:"total_stock"`
	OrderedQuantity int    `json:"ordered_quantity"`
	AvailableStock  int    `json:"available_stock"`
}

func (e *StockEntry) settle() {
	e.AvailableStock = e.TotalStock - e.OrderedQuantity
	if e.AvailableStock < 0 {
		e.AvailableStock = 0
	}
}

// ReserveItem is one line of a reservation request
type ReserveItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// StockListener is called with a fresh snapshot after every recompute
type StockListener func([]StockEntry)

// InventoryManager keeps one tenant's live availability view. Demand is never
// counted incrementally: every order change triggers a full recompute from
// the pending and completed orders.
type InventoryManager struct {
	tenantID string
	stock    StockStore
	orders   OrderLister
	feed     OrderSubscriber
	strict   bool
	logger   *zap.Logger

	mu        sync.RWMutex
	entries   map[string]*StockEntry
	listeners map[int]StockListener
	nextID    int

	recomputeMu sync.Mutex

	sub        *broker.Subscription
	done       chan struct{}
	followOnce sync.Once
	closeOnce  sync.Once
}

// InventoryOption customizes an InventoryManager
type InventoryOption func(*InventoryManager)

// WithStrictReservation makes every decrement a conditional transaction that
// refuses to drive declared stock below zero.
func WithStrictReservation(strict bool) InventoryOption {
	return func(m *InventoryManager) {
		m.strict = strict
	}
}

// NewInventoryManager creates an unloaded manager; call Initialize before use.
// feed may be nil, in which case availability only changes through Recompute
// and the stock writers.
func NewInventoryManager(tenantID string, stock StockStore, orders OrderLister, feed OrderSubscriber, opts ...InventoryOption) *InventoryManager {
	m := &InventoryManager{
		tenantID:  tenantID,
		stock:     stock,
		orders:    orders,
		feed:      feed,
		logger:    util.GetLogger().With(zap.String("tenant_id", tenantID)),
		entries:   make(map[string]*StockEntry),
		listeners: make(map[int]StockListener),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TenantID returns the tenant this manager serves
func (m *InventoryManager) TenantID() string {
	return m.tenantID
}

// Initialize loads declared stock, computes demand and starts following the
// tenant's order changes.
func (m *InventoryManager) Initialize(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "InventoryManager.Initialize", m.tenantID)
	var err error
	defer func() { util.EndSpan(span, err) }()

	// subscribe before the first load so an order written in between still
	// triggers a recompute
	m.followOnce.Do(m.follow)

	products, err := m.stock.ListProducts(ctx, m.tenantID, false)
	if err != nil {
		return fmt.Errorf("failed to load stock: %w", err)
	}

	entries := make(map[string]*StockEntry)
	for _, p := range products {
		if p.Quantity != nil {
			key := StockKey(p.ID, "")
			entries[key] = &StockEntry{Key: key, ProductID: p.ID, Name: p.Name, TotalStock: *p.Quantity}
		}
		for _, v := range p.Variants {
			key := StockKey(p.ID, v.ID)
			entries[key] = &StockEntry{
				Key:        key,
				ProductID:  p.ID,
				VariantID:  v.ID,
				Name:       variantDisplayName(p.Name, v.Name),
				TotalStock: v.Stock,
			}
		}
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()

	if err = m.Recompute(ctx); err != nil {
		return err
	}

	m.logger.Info("inventory initialized", zap.Int("entries", len(entries)))
	return nil
}

func (m *InventoryManager) follow() {
	if m.feed == nil {
		close(m.done)
		return
	}

	m.sub = m.feed.Subscribe(m.tenantID)
	go func() {
		defer close(m.done)
		for range m.sub.C {
			// a burst of events needs one recompute, not one each
			m.drain()
			ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
			if err := m.Recompute(ctx); err != nil {
				m.logger.Error("recompute after order change failed, availability is stale", zap.Error(err))
			}
			cancel()
		}
	}()
}

func (m *InventoryManager) drain() {
	for {
		select {
		case _, ok := <-m.sub.C:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Recompute rebuilds ordered quantities from the live order set and notifies
// listeners.
func (m *InventoryManager) Recompute(ctx context.Context) error {
	m.recomputeMu.Lock()
	defer m.recomputeMu.Unlock()

	start := time.Now()
	defer func() {
		util.InventoryRecomputeLatency.Observe(time.Since(start).Seconds())
	}()

	orders, err := m.orders.ListOrders(ctx, m.tenantID, store.OrderFilter{
		Statuses: []string{models.OrderStatusPending, models.OrderStatusCompleted},
	})
	if err != nil {
		util.InventoryRecomputeFailed.Inc()
		return fmt.Errorf("failed to load orders: %w", err)
	}

	m.mu.Lock()
	for _, e := range m.entries {
		e.OrderedQuantity = 0
	}
	for _, o := range orders {
		if o.Status != models.OrderStatusPending && o.Status != models.OrderStatusCompleted {
			continue
		}
		for _, item := range o.Items {
			variantID := ""
			if item.VariantID != nil {
				variantID = *item.VariantID
			}
			if e, ok := m.entries[StockKey(item.ProductID, variantID)]; ok {
				e.OrderedQuantity += item.Quantity
			}
		}
	}
	for _, e := range m.entries {
		e.settle()
	}
	snapshot := m.snapshotLocked()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return nil
}

// IsAvailable reports whether quantity units can be sold. An unknown entry is
// never available. quantity below 1 is treated as 1.
func (m *InventoryManager) IsAvailable(productID, variantID string, quantity int) bool {
	if quantity < 1 {
		quantity = 1
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[StockKey(productID, variantID)]
	return ok && e.AvailableStock >= quantity
}

// Entry returns a copy of one stock entry
func (m *InventoryManager) Entry(productID, variantID string) (StockEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[StockKey(productID, variantID)]
	if !ok {
		return StockEntry{}, false
	}
	return *e, true
}

// ReserveForOrder checks every item against the cached view and, only if all
// pass, decrements declared stock item by item. The check is advisory: two
// concurrent reservations can both pass it. Once decrements start there is no
// cross-item atomicity.
func (m *InventoryManager) ReserveForOrder(ctx context.Context, items []ReserveItem) error {
	ctx, span := util.StartSpan(ctx, "InventoryManager.ReserveForOrder", m.tenantID)
	var err error
	defer func() { util.EndSpan(span, err) }()

	if len(items) == 0 {
		err = invalid("no items to reserve")
		return err
	}

	// lines for the same key are checked as one demand
	demand := make(map[string]int)
	order := make([]ReserveItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			err = invalid("each item needs a product and a quantity of at least 1")
			return err
		}
		key := StockKey(item.ProductID, item.VariantID)
		if _, seen := demand[key]; !seen {
			order = append(order, ReserveItem{ProductID: item.ProductID, VariantID: item.VariantID})
		}
		demand[key] += item.Quantity
	}
	for i := range order {
		order[i].Quantity = demand[StockKey(order[i].ProductID, order[i].VariantID)]
	}

	for _, item := range order {
		if !m.IsAvailable(item.ProductID, item.VariantID, item.Quantity) {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			err = fmt.Errorf("%w: %s", ErrInsufficientStock, m.describe(item))
			return err
		}
	}

	for _, item := range order {
		if err = m.decrement(ctx, item); err != nil {
			reason := "error"
			if errors.Is(err, store.ErrInsufficientStock) {
				reason = "insufficient_stock"
			}
			util.InventoryReservationsFailed.WithLabelValues(reason).Inc()
			m.logger.Warn("stock decrement failed",
				zap.String("product_id", item.ProductID),
				zap.String("variant_id", item.VariantID),
				zap.Error(err))
			err = translate(err)
			return err
		}
		m.adjustTotal(StockKey(item.ProductID, item.VariantID), -item.Quantity)
	}
	return nil
}

func (m *InventoryManager) decrement(ctx context.Context, item ReserveItem) error {
	switch {
	case item.VariantID != "" && m.strict:
		return m.stock.DecrementVariantStockTx(ctx, m.tenantID, item.VariantID, item.Quantity)
	case item.VariantID != "":
		return m.stock.DecrementVariantStock(ctx, m.tenantID, item.VariantID, item.Quantity)
	case m.strict:
		return m.stock.DecrementProductQuantityTx(ctx, m.tenantID, item.ProductID, item.Quantity)
	default:
		return m.stock.DecrementProductQuantity(ctx, m.tenantID, item.ProductID, item.Quantity)
	}
}

func (m *InventoryManager) describe(item ReserveItem) string {
	if e, ok := m.Entry(item.ProductID, item.VariantID); ok {
		return fmt.Sprintf("%s has %d available, %d requested", e.Name, e.AvailableStock, item.Quantity)
	}
	return fmt.Sprintf("%s is not stocked", StockKey(item.ProductID, item.VariantID))
}

// adjustTotal shifts declared stock of a cached entry by delta
func (m *InventoryManager) adjustTotal(key string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.TotalStock += delta
		e.settle()
	}
}

// SetProductQuantity writes a product's declared stock and patches the cache
func (m *InventoryManager) SetProductQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return invalid("quantity must not be negative")
	}
	if err := m.stock.SetProductQuantity(ctx, m.tenantID, productID, quantity); err != nil {
		return translate(err)
	}

	if m.setTotal(StockKey(productID, ""), quantity) {
		return nil
	}

	// product did not track stock before; its demand is unknown until recomputed
	p, err := m.stock.GetProduct(ctx, m.tenantID, productID)
	if err != nil {
		return translate(err)
	}
	m.addEntry(StockEntry{ProductID: productID, Name: p.Name, TotalStock: quantity})
	return m.Recompute(ctx)
}

// SetVariantStock writes a variant's declared stock and patches the cache
func (m *InventoryManager) SetVariantStock(ctx context.Context, variantID string, stock int) error {
	if stock < 0 {
		return invalid("stock must not be negative")
	}
	if err := m.stock.SetVariantStock(ctx, m.tenantID, variantID, stock); err != nil {
		return translate(err)
	}

	if key, ok := m.keyOfVariant(variantID); ok && m.setTotal(key, stock) {
		return nil
	}

	v, err := m.stock.GetVariant(ctx, m.tenantID, variantID)
	if err != nil {
		return translate(err)
	}
	p, err := m.stock.GetProduct(ctx, m.tenantID, v.ProductID)
	if err != nil {
		return translate(err)
	}
	m.addEntry(StockEntry{ProductID: p.ID, VariantID: v.ID, Name: variantDisplayName(p.Name, v.Name), TotalStock: stock})
	return m.Recompute(ctx)
}

func (m *InventoryManager) setTotal(key string, total int) bool {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return false
	}
	e.TotalStock = total
	e.settle()
	snapshot := m.snapshotLocked()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return true
}

func (m *InventoryManager) addEntry(e StockEntry) {
	e.Key = StockKey(e.ProductID, e.VariantID)
	e.settle()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = &e
}

// Forget drops the entries of a deleted product or variant. An empty
// variantID drops the product's main entry and every variant entry.
func (m *InventoryManager) Forget(productID, variantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.ProductID != productID {
			continue
		}
		if variantID == "" || e.VariantID == variantID {
			delete(m.entries, key)
		}
	}
}

func (m *InventoryManager) keyOfVariant(variantID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, e := range m.entries {
		if e.VariantID == variantID {
			return key, true
		}
	}
	return "", false
}

// AddListener registers l and returns a func that removes it
func (m *InventoryManager) AddListener(l StockListener) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Snapshot returns every entry ordered by key
func (m *InventoryManager) Snapshot() []StockEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *InventoryManager) snapshotLocked() []StockEntry {
	out := make([]StockEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (m *InventoryManager) listenersLocked() []StockListener {
	out := make([]StockListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l)
	}
	return out
}

// Close ends the order subscription and waits for the follower to exit
func (m *InventoryManager) Close() {
	m.closeOnce.Do(func() {
		if m.sub != nil {
			m.sub.Unsubscribe()
			<-m.done
		}
		m.mu.Lock()
		m.listeners = make(map[int]StockListener)
		m.mu.Unlock()
	})
}

func variantDisplayName(productName, variantName string) string {
	if variantName == "" {
		return productName
	}
	return productName + " - " + variantName
}
