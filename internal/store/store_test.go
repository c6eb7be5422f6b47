package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"pos-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewWithDB(sqlx.NewDb(mockDB, "postgres")), mock
}

func TestGetCategory_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM categories WHERE tenant_id = $1 AND id = $2")).
		WithArgs("tenant-a", "cat-1").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetCategory(context.Background(), "tenant-a", "cat-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProducts_ScopedToTenantAndActive(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM products WHERE tenant_id = $1 AND status = $2 ORDER BY name")).
		WithArgs("tenant-a", models.ProductStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "sku", "base_price", "status", "created_at", "updated_at"}).
			AddRow("p1", "tenant-a", "Latte", "LAT-1", "4.50", "active", now, now))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM variants WHERE tenant_id = $1 ORDER BY product_id, name")).
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "product_id", "name", "price", "stock"}))

	products, err := s.ListProducts(context.Background(), "tenant-a", true)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "tenant-a", products[0].TenantID)
	assert.True(t, products[0].BasePrice.Equal(decimal.RequireFromString("4.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrders_FiltersByTenantAndStatus(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM orders WHERE tenant_id = $1 AND status IN ($2, $3) ORDER BY created_at DESC")).
		WithArgs("tenant-a", models.OrderStatusPending, models.OrderStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "subtotal", "tax", "total", "payment_method", "status", "created_at", "updated_at"}).
			AddRow("o1", "tenant-a", "25.00", "2.50", "27.50", "cash", "pending", now, now))

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM order_items WHERE order_id IN ($1) ORDER BY order_id, position")).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "position", "product_id", "variant_id", "name", "unit_price", "quantity"}).
			AddRow("i1", "o1", 0, "p1", nil, "Latte", "10.00", 2).
			AddRow("i2", "o1", 1, "p2", "v1", "Bagel", "5.00", 1))

	orders, err := s.ListOrders(context.Background(), "tenant-a", OrderFilter{
		Statuses: []string{models.OrderStatusPending, models.OrderStatusCompleted},
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 2)
	assert.Nil(t, orders[0].Items[0].VariantID)
	require.NotNil(t, orders[0].Items[1].VariantID)
	assert.Equal(t, "v1", *orders[0].Items[1].VariantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatus_ConditionalOnCurrentStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3 AND status = $4")).
		WithArgs(models.OrderStatusRefunded, "tenant-a", "o1", models.OrderStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateOrderStatus(context.Background(), "tenant-a", "o1", models.OrderStatusCompleted, models.OrderStatusRefunded)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementProductQuantity_IsUnconditional(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE products SET quantity = quantity - $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3")).
		WithArgs(3, "tenant-a", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.DecrementProductQuantity(context.Background(), "tenant-a", "p1", 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementVariantStockTx_Insufficient(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT stock FROM variants WHERE tenant_id = $1 AND id = $2 FOR UPDATE")).
		WithArgs("tenant-a", "v1").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(2))
	mock.ExpectRollback()

	err := s.DecrementVariantStockTx(context.Background(), "tenant-a", "v1", 3)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_WritesItemsInTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	order := &models.Order{
		ID:            "o1",
		TenantID:      "tenant-a",
		Subtotal:      decimal.NewFromInt(25),
		Tax:           decimal.RequireFromString("2.5"),
		Total:         decimal.RequireFromString("27.5"),
		PaymentMethod: models.PaymentMethodCash,
		Status:        models.OrderStatusCompleted,
		Items: []models.OrderItem{
			{ID: "i1", Position: 0, ProductID: "p1", Name: "Latte", UnitPrice: decimal.NewFromInt(10), Quantity: 2},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs("i1", "o1", 0, "p1", nil, "Latte", sqlmock.AnyArg(), 2, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CreateOrder(context.Background(), order))
	assert.Equal(t, now, order.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountSubcategories(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM subcategories WHERE tenant_id = $1 AND category_id = $2")).
		WithArgs("tenant-b", "cat-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.CountSubcategories(context.Background(), "tenant-b", "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
