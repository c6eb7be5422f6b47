package store

import (
	"context"
	"errors"
	"fmt"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrInsufficientStock is returned by the conditional decrements.
var ErrInsufficientStock = errors.New("insufficient stock")

// CreateCategory inserts a category
func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (id, tenant_id, name, description)
		VALUES (:id, :tenant_id, :name, :description)
		RETURNING created_at, updated_at`

	rows, err := s.db.NamedQueryContext(ctx, query, c)
	if err != nil {
		return mapWriteErr(err)
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&c.CreatedAt, &c.UpdatedAt)
	}
	return rows.Err()
}

// GetCategory retrieves a category owned by tenantID
func (s *Store) GetCategory(ctx context.Context, tenantID, id string) (*models.Category, error) {
	var c models.Category
	err := s.db.GetContext(ctx, &c,
		"SELECT * FROM categories WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListCategories retrieves the tenant's categories
func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.SelectContext(ctx, &categories,
		"SELECT * FROM categories WHERE tenant_id = $1 ORDER BY name", tenantID)
	return categories, err
}

// UpdateCategory updates name and description
func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE categories SET name = $1, description = $2, updated_at = NOW() WHERE tenant_id = $3 AND id = $4",
		c.Name, c.Description, c.TenantID, c.ID)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectAffected(res)
}

// DeleteCategory removes a category
func (s *Store) DeleteCategory(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM categories WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// CountSubcategories counts subcategories referencing a category
func (s *Store) CountSubcategories(ctx context.Context, tenantID, categoryID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM subcategories WHERE tenant_id = $1 AND category_id = $2", tenantID, categoryID)
	return n, err
}

// CreateSubcategory inserts a subcategory
func (s *Store) CreateSubcategory(ctx context.Context, sc *models.Subcategory) error {
	query := `
		INSERT INTO subcategories (id, tenant_id, category_id, name, description)
		VALUES (:id, :tenant_id, :category_id, :name, :description)`

	_, err := s.db.NamedExecContext(ctx, query, sc)
	return mapWriteErr(err)
}

// GetSubcategory retrieves a subcategory owned by tenantID
func (s *Store) GetSubcategory(ctx context.Context, tenantID, id string) (*models.Subcategory, error) {
	var sc models.Subcategory
	err := s.db.GetContext(ctx, &sc,
		"SELECT * FROM subcategories WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &sc, nil
}

// ListSubcategories retrieves subcategories, optionally narrowed to one category
func (s *Store) ListSubcategories(ctx context.Context, tenantID, categoryID string) ([]models.Subcategory, error) {
	var subs []models.Subcategory
	var err error
	if categoryID == "" {
		err = s.db.SelectContext(ctx, &subs,
			"SELECT * FROM subcategories WHERE tenant_id = $1 ORDER BY name", tenantID)
	} else {
		err = s.db.SelectContext(ctx, &subs,
			"SELECT * FROM subcategories WHERE tenant_id = $1 AND category_id = $2 ORDER BY name",
			tenantID, categoryID)
	}
	return subs, err
}

// UpdateSubcategory updates name, description and parent category
func (s *Store) UpdateSubcategory(ctx context.Context, sc *models.Subcategory) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subcategories SET category_id = $1, name = $2, description = $3, updated_at = NOW()
		 WHERE tenant_id = $4 AND id = $5`,
		sc.CategoryID, sc.Name, sc.Description, sc.TenantID, sc.ID)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectAffected(res)
}

// DeleteSubcategory removes a subcategory
func (s *Store) DeleteSubcategory(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM subcategories WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// CountProductsInSubcategory counts products filed under category/subcategory names
func (s *Store) CountProductsInSubcategory(ctx context.Context, tenantID, category, subcategory string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM products WHERE tenant_id = $1 AND category = $2 AND subcategory = $3",
		tenantID, category, subcategory)
	return n, err
}

// CreateProduct inserts a product together with its variants and their attributes
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO products (id, tenant_id, name, sku, base_price, description, status,
				category, subcategory, main_image, gallery_images, quantity)
			VALUES (:id, :tenant_id, :name, :sku, :base_price, :description, :status,
				:category, :subcategory, :main_image, :gallery_images, :quantity)`

		if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
			return mapWriteErr(err)
		}

		for i := range p.Variants {
			if err := insertVariant(ctx, tx, &p.Variants[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProduct retrieves a product with its variants
func (s *Store) GetProduct(ctx context.Context, tenantID, id string) (*models.Product, error) {
	var p models.Product
	err := s.db.GetContext(ctx, &p,
		"SELECT * FROM products WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return nil, notFound(err)
	}

	variants, err := s.ListVariantsByProduct(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	p.Variants = variants
	return &p, nil
}

// ListProducts retrieves the tenant's products; activeOnly narrows to sale listings
func (s *Store) ListProducts(ctx context.Context, tenantID string, activeOnly bool) ([]models.Product, error) {
	var products []models.Product
	var err error
	if activeOnly {
		err = s.db.SelectContext(ctx, &products,
			"SELECT * FROM products WHERE tenant_id = $1 AND status = $2 ORDER BY name",
			tenantID, models.ProductStatusActive)
	} else {
		err = s.db.SelectContext(ctx, &products,
			"SELECT * FROM products WHERE tenant_id = $1 ORDER BY name", tenantID)
	}
	if err != nil {
		return nil, err
	}

	variants, err := s.ListVariants(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[string][]models.Variant)
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	for i := range products {
		products[i].Variants = byProduct[products[i].ID]
	}
	return products, nil
}

// UpdateProduct overwrites the product's descriptive fields. Declared stock is
// written through SetProductQuantity.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products SET name = :name, sku = :sku, base_price = :base_price,
			description = :description, status = :status, category = :category,
			subcategory = :subcategory, main_image = :main_image,
			gallery_images = :gallery_images, updated_at = NOW()
		WHERE tenant_id = :tenant_id AND id = :id`

	res, err := s.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectAffected(res)
}

// DeleteProduct removes a product, its variants and their attributes
func (s *Store) DeleteProduct(ctx context.Context, tenantID, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM variant_attributes WHERE variant_id IN
			 (SELECT id FROM variants WHERE tenant_id = $1 AND product_id = $2)`, tenantID, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM variants WHERE tenant_id = $1 AND product_id = $2", tenantID, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM products WHERE tenant_id = $1 AND id = $2", tenantID, id)
		if err != nil {
			return err
		}
		return expectAffected(res)
	})
}

// CreateVariant inserts a variant with its attributes
func (s *Store) CreateVariant(ctx context.Context, v *models.Variant) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return insertVariant(ctx, tx, v)
	})
}

func insertVariant(ctx context.Context, tx *sqlx.Tx, v *models.Variant) error {
	query := `
		INSERT INTO variants (id, tenant_id, product_id, name, price, stock, image)
		VALUES (:id, :tenant_id, :product_id, :name, :price, :stock, :image)`

	if _, err := tx.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("failed to insert variant: %w", mapWriteErr(err))
	}
	return insertAttributes(ctx, tx, v.Attributes)
}

func insertAttributes(ctx context.Context, tx *sqlx.Tx, attrs []models.VariantAttribute) error {
	for _, a := range attrs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO variant_attributes (id, variant_id, position, key, value) VALUES ($1, $2, $3, $4, $5)",
			a.ID, a.VariantID, a.Position, a.Key, a.Value); err != nil {
			return fmt.Errorf("failed to insert variant attribute: %w", err)
		}
	}
	return nil
}

// GetVariant retrieves a variant with its attributes
func (s *Store) GetVariant(ctx context.Context, tenantID, id string) (*models.Variant, error) {
	var v models.Variant
	err := s.db.GetContext(ctx, &v,
		"SELECT * FROM variants WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return nil, notFound(err)
	}

	attrs := []models.VariantAttribute{}
	if err := s.db.SelectContext(ctx, &attrs,
		"SELECT * FROM variant_attributes WHERE variant_id = $1 ORDER BY position", id); err != nil {
		return nil, err
	}
	v.Attributes = attrs
	return &v, nil
}

// ListVariants retrieves every variant of the tenant with attributes attached
func (s *Store) ListVariants(ctx context.Context, tenantID string) ([]models.Variant, error) {
	return s.selectVariants(ctx,
		"SELECT * FROM variants WHERE tenant_id = $1 ORDER BY product_id, name", tenantID)
}

// ListVariantsByProduct retrieves the variants of one product
func (s *Store) ListVariantsByProduct(ctx context.Context, tenantID, productID string) ([]models.Variant, error) {
	return s.selectVariants(ctx,
		"SELECT * FROM variants WHERE tenant_id = $1 AND product_id = $2 ORDER BY name", tenantID, productID)
}

func (s *Store) selectVariants(ctx context.Context, query string, args ...interface{}) ([]models.Variant, error) {
	var variants []models.Variant
	if err := s.db.SelectContext(ctx, &variants, query, args...); err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return variants, nil
	}

	ids := make([]string, len(variants))
	for i, v := range variants {
		ids[i] = v.ID
	}

	q, qargs, err := sqlx.In("SELECT * FROM variant_attributes WHERE variant_id IN (?) ORDER BY variant_id, position", ids)
	if err != nil {
		return nil, err
	}
	q = s.db.Rebind(q)

	var attrs []models.VariantAttribute
	if err := s.db.SelectContext(ctx, &attrs, q, qargs...); err != nil {
		return nil, err
	}

	byVariant := make(map[string][]models.VariantAttribute)
	for _, a := range attrs {
		byVariant[a.VariantID] = append(byVariant[a.VariantID], a)
	}
	for i := range variants {
		variants[i].Attributes = byVariant[variants[i].ID]
	}
	return variants, nil
}

// UpdateVariant updates a variant and replaces its attribute rows
func (s *Store) UpdateVariant(ctx context.Context, v *models.Variant) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE variants SET name = $1, price = $2, image = $3, updated_at = NOW() WHERE tenant_id = $4 AND id = $5",
			v.Name, v.Price, v.Image, v.TenantID, v.ID)
		if err != nil {
			return err
		}
		if err := expectAffected(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM variant_attributes WHERE variant_id = $1", v.ID); err != nil {
			return err
		}
		return insertAttributes(ctx, tx, v.Attributes)
	})
}

// DeleteVariant removes a variant and its attributes
func (s *Store) DeleteVariant(ctx context.Context, tenantID, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM variant_attributes WHERE variant_id = $1", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM variants WHERE tenant_id = $1 AND id = $2", tenantID, id)
		if err != nil {
			return err
		}
		return expectAffected(res)
	})
}

// SetProductQuantity overwrites a product's declared stock
func (s *Store) SetProductQuantity(ctx context.Context, tenantID, productID string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET quantity = $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3",
		quantity, tenantID, productID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// SetVariantStock overwrites a variant's declared stock
func (s *Store) SetVariantStock(ctx context.Context, tenantID, variantID string, stock int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE variants SET stock = $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3",
		stock, tenantID, variantID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DecrementProductQuantity is an unconditional atomic decrement; stock may go negative.
func (s *Store) DecrementProductQuantity(ctx context.Context, tenantID, productID string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET quantity = quantity - $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3",
		quantity, tenantID, productID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DecrementVariantStock is an unconditional atomic decrement; stock may go negative.
func (s *Store) DecrementVariantStock(ctx context.Context, tenantID, variantID string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE variants SET stock = stock - $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3",
		quantity, tenantID, variantID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DecrementProductQuantityTx decrements within a transaction (FOR UPDATE lock)
// and refuses to go below zero.
func (s *Store) DecrementProductQuantityTx(ctx context.Context, tenantID, productID string, quantity int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var available *int
		err := tx.GetContext(ctx, &available,
			"SELECT quantity FROM products WHERE tenant_id = $1 AND id = $2 FOR UPDATE", tenantID, productID)
		if err != nil {
			return fmt.Errorf("failed to lock product stock: %w", notFound(err))
		}
		if available == nil || *available < quantity {
			return ErrInsufficientStock
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE products SET quantity = quantity - $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3",
			quantity, tenantID, productID)
		return err
	})
}

// DecrementVariantStockTx decrements within a transaction (FOR UPDATE lock)
// and refuses to go below zero.
func (s *Store) DecrementVariantStockTx(ctx context.Context, tenantID, variantID string, quantity int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var available int
		err := tx.GetContext(ctx, &available,
			"SELECT stock FROM variants WHERE tenant_id = $1 AND id = $2 FOR UPDATE", tenantID, variantID)
		if err != nil {
			return fmt.Errorf("failed to lock variant stock: %w", notFound(err))
		}
		if available < quantity {
			return ErrInsufficientStock
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE variants SET stock = stock - $1, updated_at = NOW() WHERE tenant_id = $2 AND id = $3",
			quantity, tenantID, variantID)
		return err
	})
}
