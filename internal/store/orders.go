package store

import (
	"context"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// OrderFilter narrows ListOrders. Zero values mean "no constraint".
type OrderFilter struct {
	Statuses []string
	From     time.Time
	To       time.Time
	Limit    int
}

// CreateOrder inserts an order and all of its line items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO orders (id, tenant_id, subtotal, tax, total, payment_method, status,
				customer_name, customer_phone, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at`

		err := tx.QueryRowxContext(ctx, query,
			order.ID, order.TenantID, order.Subtotal, order.Tax, order.Total,
			order.PaymentMethod, order.Status, order.CustomerName, order.CustomerPhone,
			order.IdempotencyKey).Scan(&order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return mapWriteErr(err)
		}

		for _, item := range order.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, position, product_id, variant_id, name,
					unit_price, quantity, image)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				item.ID, order.ID, item.Position, item.ProductID, item.VariantID, item.Name,
				item.UnitPrice, item.Quantity, item.Image)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOrderByID retrieves an order owned by tenantID
func (s *Store) GetOrderByID(ctx context.Context, tenantID, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return nil, notFound(err)
	}

	items, err := s.GetOrderItemsByOrderID(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key, nil if absent
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Order, error) {
	order, err := s.getOrderBy(ctx,
		"SELECT * FROM orders WHERE tenant_id = $1 AND idempotency_key = $2", tenantID, key)
	if err == ErrNotFound {
		return nil, nil
	}
	return order, err
}

func (s *Store) getOrderBy(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	if err := s.db.GetContext(ctx, &order, query, args...); err != nil {
		return nil, notFound(err)
	}
	items, err := s.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

// UpdateOrderStatus moves an order from one status to another. The write only
// applies while the stored status still equals from; otherwise ErrNotFound.
func (s *Store) UpdateOrderStatus(ctx context.Context, tenantID, orderID, from, to string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3 AND status = $4",
		to, tenantID, orderID, from)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// ListOrders retrieves the tenant's orders, newest first, with items attached
func (s *Store) ListOrders(ctx context.Context, tenantID string, filter OrderFilter) ([]models.Order, error) {
	query := "SELECT * FROM orders WHERE tenant_id = ?"
	args := []interface{}{tenantID}

	if len(filter.Statuses) > 0 {
		query += " AND status IN (?)"
		args = append(args, filter.Statuses)
	}
	if !filter.From.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.To)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY order_id, position", ids)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return err
	}

	byOrder := make(map[string][]models.OrderItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY position", orderID)
	return items, err
}
