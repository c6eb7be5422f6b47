package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"pos-service/internal/auth"
	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for store.Store
type memStore struct {
	mu          sync.Mutex
	tenants     map[string]models.Tenant
	admins      map[string]models.Admin
	categories  map[string]models.Category
	subs        map[string]models.Subcategory
	products    map[string]models.Product
	variants    map[string]models.Variant
	orders      map[string]models.Order
	decrements  []string
	listErr      error
	createOrder  error
	updateTenant error
}

func newMemStore() *memStore {
	return &memStore{
		tenants:    make(map[string]models.Tenant),
		admins:     make(map[string]models.Admin),
		categories: make(map[string]models.Category),
		subs:       make(map[string]models.Subcategory),
		products:   make(map[string]models.Product),
		variants:   make(map[string]models.Variant),
		orders:     make(map[string]models.Order),
	}
}

func (m *memStore) CreateTenant(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; ok {
		return store.ErrConflict
	}
	m.tenants[t.ID] = *t
	return nil
}

func (m *memStore) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) ListTenants(_ context.Context) ([]models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) UpdateTenant(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateTenant != nil {
		return m.updateTenant
	}
	if _, ok := m.tenants[t.ID]; !ok {
		return store.ErrNotFound
	}
	m.tenants[t.ID] = *t
	return nil
}

func (m *memStore) DeleteTenant(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tenants, id)
	for pid, p := range m.products {
		if p.TenantID == id {
			delete(m.products, pid)
		}
	}
	return nil
}

func (m *memStore) CreateAdmin(_ context.Context, a *models.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[a.ID] = *a
	return nil
}

func (m *memStore) GetAdmin(_ context.Context, id string) (*models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) ListAdmins(_ context.Context) ([]models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Admin, 0, len(m.admins))
	for _, a := range m.admins {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) CountAdmins(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.admins), nil
}

func (m *memStore) UpdateAdmin(_ context.Context, a *models.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[a.ID]; !ok {
		return store.ErrNotFound
	}
	m.admins[a.ID] = *a
	return nil
}

func (m *memStore) DeleteAdmin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.admins, id)
	return nil
}

func (m *memStore) CreateCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = *c
	return nil
}

func (m *memStore) GetCategory(_ context.Context, tenantID, id string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok || c.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) ListCategories(_ context.Context, tenantID string) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Category
	for _, c := range m.categories {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) UpdateCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = *c
	return nil
}

func (m *memStore) DeleteCategory(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.categories[id]; !ok || c.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *memStore) CountSubcategories(_ context.Context, tenantID, categoryID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sc := range m.subs {
		if sc.TenantID == tenantID && sc.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateSubcategory(_ context.Context, sc *models.Subcategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sc.ID] = *sc
	return nil
}

func (m *memStore) GetSubcategory(_ context.Context, tenantID, id string) (*models.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.subs[id]
	if !ok || sc.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &sc, nil
}

func (m *memStore) ListSubcategories(_ context.Context, tenantID, categoryID string) ([]models.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subcategory
	for _, sc := range m.subs {
		if sc.TenantID == tenantID && (categoryID == "" || sc.CategoryID == categoryID) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (m *memStore) UpdateSubcategory(_ context.Context, sc *models.Subcategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sc.ID] = *sc
	return nil
}

func (m *memStore) DeleteSubcategory(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sc, ok := m.subs[id]; !ok || sc.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *memStore) CountProductsInSubcategory(_ context.Context, tenantID, category, subcategory string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.products {
		if p.TenantID == tenantID && p.Category == category && p.Subcategory == subcategory {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.Variants = nil
	m.products[p.ID] = cp
	for _, v := range p.Variants {
		m.variants[v.ID] = v
	}
	return nil
}

func (m *memStore) withVariantsLocked(p models.Product) models.Product {
	p.Variants = nil
	for _, v := range m.variants {
		if v.ProductID == p.ID {
			p.Variants = append(p.Variants, v)
		}
	}
	sort.Slice(p.Variants, func(i, j int) bool { return p.Variants[i].Name < p.Variants[j].Name })
	return p
}

func (m *memStore) GetProduct(_ context.Context, tenantID, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	p = m.withVariantsLocked(p)
	return &p, nil
}

func (m *memStore) ListProducts(_ context.Context, tenantID string, activeOnly bool) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Product
	for _, p := range m.products {
		if p.TenantID != tenantID || (activeOnly && p.Status != models.ProductStatusActive) {
			continue
		}
		out = append(out, m.withVariantsLocked(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpdateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.products[p.ID]
	if !ok || existing.TenantID != p.TenantID {
		return store.ErrNotFound
	}
	cp := *p
	cp.Variants = nil
	cp.Quantity = existing.Quantity
	m.products[p.ID] = cp
	return nil
}

func (m *memStore) DeleteProduct(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; !ok || p.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(m.products, id)
	for vid, v := range m.variants {
		if v.ProductID == id {
			delete(m.variants, vid)
		}
	}
	return nil
}

func (m *memStore) CreateVariant(_ context.Context, v *models.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variants[v.ID] = *v
	return nil
}

func (m *memStore) GetVariant(_ context.Context, tenantID, id string) (*models.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[id]
	if !ok || v.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (m *memStore) UpdateVariant(_ context.Context, v *models.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.variants[v.ID]
	if !ok || existing.TenantID != v.TenantID {
		return store.ErrNotFound
	}
	cp := *v
	cp.Stock = existing.Stock
	m.variants[v.ID] = cp
	return nil
}

func (m *memStore) DeleteVariant(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.variants[id]; !ok || v.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(m.variants, id)
	return nil
}

func (m *memStore) SetProductQuantity(_ context.Context, tenantID, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.TenantID != tenantID {
		return store.ErrNotFound
	}
	q := quantity
	p.Quantity = &q
	m.products[productID] = p
	return nil
}

func (m *memStore) SetVariantStock(_ context.Context, tenantID, variantID string, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[variantID]
	if !ok || v.TenantID != tenantID {
		return store.ErrNotFound
	}
	v.Stock = stock
	m.variants[variantID] = v
	return nil
}

func (m *memStore) DecrementProductQuantity(ctx context.Context, tenantID, productID string, quantity int) error {
	return m.decrementProduct(tenantID, productID, quantity, false)
}

func (m *memStore) DecrementProductQuantityTx(ctx context.Context, tenantID, productID string, quantity int) error {
	return m.decrementProduct(tenantID, productID, quantity, true)
}

func (m *memStore) decrementProduct(tenantID, productID string, quantity int, strict bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.TenantID != tenantID || p.Quantity == nil {
		return store.ErrNotFound
	}
	if strict && *p.Quantity < quantity {
		return store.ErrInsufficientStock
	}
	q := *p.Quantity - quantity
	p.Quantity = &q
	m.products[productID] = p
	m.decrements = append(m.decrements, StockKey(productID, ""))
	return nil
}

func (m *memStore) DecrementVariantStock(ctx context.Context, tenantID, variantID string, quantity int) error {
	return m.decrementVariant(tenantID, variantID, quantity, false)
}

func (m *memStore) DecrementVariantStockTx(ctx context.Context, tenantID, variantID string, quantity int) error {
	return m.decrementVariant(tenantID, variantID, quantity, true)
}

func (m *memStore) decrementVariant(tenantID, variantID string, quantity int, strict bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[variantID]
	if !ok || v.TenantID != tenantID {
		return store.ErrNotFound
	}
	if strict && v.Stock < quantity {
		return store.ErrInsufficientStock
	}
	v.Stock -= quantity
	m.variants[variantID] = v
	m.decrements = append(m.decrements, StockKey(v.ProductID, variantID))
	return nil
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createOrder != nil {
		return m.createOrder
	}
	if order.IdempotencyKey != nil {
		for _, o := range m.orders {
			if o.TenantID == order.TenantID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return store.ErrConflict
			}
		}
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	m.orders[order.ID] = *order
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, tenantID, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (m *memStore) GetOrderByIdempotencyKey(_ context.Context, tenantID, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.TenantID == tenantID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, tenantID, orderID, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID || o.Status != from {
		return store.ErrNotFound
	}
	o.Status = to
	m.orders[orderID] = o
	return nil
}

func (m *memStore) ListOrders(_ context.Context, tenantID string, filter store.OrderFilter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.TenantID != tenantID {
			continue
		}
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, o.Status) {
			continue
		}
		if !filter.From.IsZero() && o.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && o.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// seedTenant stores a tenant that can log in around now
func (m *memStore) seedTenant(id string, active bool) models.Tenant {
	t := models.Tenant{
		ID:             id,
		Name:           "Restaurant " + id,
		Email:          id + "@example.com",
		IsActive:       active,
		ActivationDate: time.Now().Add(-24 * time.Hour),
		ExpiryDate:     time.Now().Add(30 * 24 * time.Hour),
	}
	m.tenants[id] = t
	return t
}

func (m *memStore) seedProduct(tenantID, id, name string, quantity *int) {
	m.products[id] = models.Product{
		ID:        id,
		TenantID:  tenantID,
		Name:      name,
		Status:    models.ProductStatusActive,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
}

func (m *memStore) seedVariant(tenantID, productID, id, name string, stock int) {
	m.variants[id] = models.Variant{
		ID:        id,
		TenantID:  tenantID,
		ProductID: productID,
		Name:      name,
		Stock:     stock,
	}
}

func (m *memStore) seedOrder(tenantID, status string, lines ...models.OrderItem) models.Order {
	o := models.Order{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Status:        status,
		PaymentMethod: models.PaymentMethodCash,
		CreatedAt:     time.Now(),
		Items:         lines,
	}
	o.Subtotal, o.Tax, o.Total = models.OrderTotals(lines)
	m.orders[o.ID] = o
	return o
}

func (m *memStore) productQuantity(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.products[id].Quantity
}

func (m *memStore) variantStock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.variants[id].Stock
}

func line(productID, variantID string, qty int) models.OrderItem {
	item := models.OrderItem{ID: uuid.New().String(), ProductID: productID, Name: productID, Quantity: qty}
	if variantID != "" {
		item.VariantID = &variantID
	}
	return item
}

func intPtr(n int) *int { return &n }

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]models.Session)}
}

func (m *memSessions) PutSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.PrincipalID] = *s
	return nil
}

func (m *memSessions) GetSession(_ context.Context, principalID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[principalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *memSessions) DeleteSession(_ context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, principalID)
	return nil
}

type memIdempotency struct {
	mu     sync.Mutex
	claims map[string]bool
}

func (m *memIdempotency) ClaimIdempotencyKey(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims == nil {
		m.claims = make(map[string]bool)
	}
	if m.claims[key] {
		return false, nil
	}
	m.claims[key] = true
	return true, nil
}

func (m *memIdempotency) ReleaseIdempotencyKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}

// feedPublisher records events and relays them into an OrderFeed the way the
// Kafka worker would.
type feedPublisher struct {
	mu     sync.Mutex
	events []models.OrderChangedEvent
	feed   *broker.OrderFeed
	err    error
}

func (p *feedPublisher) PublishOrderChanged(_ context.Context, event *models.OrderChangedEvent) error {
	p.mu.Lock()
	p.events = append(p.events, *event)
	p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.feed != nil {
		p.feed.Publish(*event)
	}
	return nil
}

func (p *feedPublisher) recorded() []models.OrderChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderChangedEvent(nil), p.events...)
}

type fakeIdentity struct {
	id       string
	email    string
	password string
}

// fakeIdentityApp is an IdentityProvider with opaque tokens and a sign-out
// generation per principal instead of signed credentials.
type fakeIdentityApp struct {
	app string

	mu       sync.Mutex
	byID     map[string]*fakeIdentity
	tokens   map[string]*auth.Claims
	tokenGen map[string]int
	gen      map[string]int
	signOuts map[string]int
}

func newFakeIdentityApp(app string) *fakeIdentityApp {
	return &fakeIdentityApp{
		app:      app,
		byID:     make(map[string]*fakeIdentity),
		tokens:   make(map[string]*auth.Claims),
		tokenGen: make(map[string]int),
		gen:      make(map[string]int),
		signOuts: make(map[string]int),
	}
}

func (f *fakeIdentityApp) App() string { return f.app }

func (f *fakeIdentityApp) VerifyCredential(_ context.Context, token string) (*auth.Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.tokens[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	if f.tokenGen[token] < f.gen[claims.Subject] {
		return nil, auth.ErrTokenRevoked
	}
	cp := *claims
	return &cp, nil
}

func (f *fakeIdentityApp) SignInWithPassword(_ context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, ident := range f.byID {
		if ident.email == email && ident.password == password {
			return ident.id, nil
		}
	}
	return "", auth.ErrInvalidCredentials
}

func (f *fakeIdentityApp) SignOut(_ context.Context, principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen[principalID]++
	f.signOuts[principalID]++
	return nil
}

func (f *fakeIdentityApp) signOutCount(principalID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts[principalID]
}

func (f *fakeIdentityApp) issue(principalID, impersonatedBy string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := fmt.Sprintf("%s-%s", f.app, uuid.New().String())
	f.tokens[token] = &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: principalID},
		App:              f.app,
		ImpersonatedBy:   impersonatedBy,
	}
	f.tokenGen[token] = f.gen[principalID]
	return token
}

func (f *fakeIdentityApp) IssueCredential(principalID string, ttl time.Duration) (string, time.Time, error) {
	return f.issue(principalID, ""), time.Now().Add(ttl), nil
}

func (f *fakeIdentityApp) IssueImpersonationCredential(tenantID, adminID string, ttl time.Duration) (string, time.Time, error) {
	if adminID == "" {
		return "", time.Time{}, fmt.Errorf("impersonating admin id is required")
	}
	return f.issue(tenantID, adminID), time.Now().Add(ttl), nil
}

func (f *fakeIdentityApp) CreateIdentity(_ context.Context, email, password string) (string, error) {
	if len(password) < auth.MinPasswordLength {
		return "", auth.ErrWeakPassword
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, ident := range f.byID {
		if ident.email == email {
			return "", auth.ErrEmailTaken
		}
	}
	id := uuid.New().String()
	f.byID[id] = &fakeIdentity{id: id, email: email, password: password}
	return id, nil
}

// addIdentity registers an identity under a fixed id
func (f *fakeIdentityApp) addIdentity(id, email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id] = &fakeIdentity{id: id, email: email, password: password}
}

func (f *fakeIdentityApp) UpdateIdentity(_ context.Context, principalID, email, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.byID[principalID]
	if !ok {
		return auth.ErrIdentityNotFound
	}
	if password != "" && len(password) < auth.MinPasswordLength {
		return auth.ErrWeakPassword
	}
	if email != "" {
		ident.email = strings.ToLower(strings.TrimSpace(email))
	}
	if password != "" {
		ident.password = password
	}
	return nil
}

func (f *fakeIdentityApp) DeleteIdentity(_ context.Context, principalID string) error {
	f.mu.Lock()
	delete(f.byID, principalID)
	f.gen[principalID]++
	f.mu.Unlock()
	return nil
}

func (f *fakeIdentityApp) hasIdentity(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byID[id]
	return ok
}

// memImages records saved and deleted blobs
type memImages struct {
	mu      sync.Mutex
	saved   map[string]string
	deleted []string
}

func newMemImages() *memImages {
	return &memImages{saved: make(map[string]string)}
}

func (m *memImages) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "https://cdn.example.com/" + key
	m.saved[url] = string(body)
	return url, nil
}

func (m *memImages) DeleteURL(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, url)
	m.deleted = append(m.deleted, url)
	return nil
}

type releaseRecorder struct {
	mu       sync.Mutex
	released []string
}

func (r *releaseRecorder) Release(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, tenantID)
}
