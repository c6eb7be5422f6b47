package store

import (
	"context"

	"pos-service/internal/models"
)

// CreateTenant inserts a tenant record
func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, owner_name, address, phone, email, is_active,
			activation_date, expiry_date, activation_token)
		VALUES (:id, :name, :owner_name, :address, :phone, :email, :is_active,
			:activation_date, :expiry_date, :activation_token)`

	_, err := s.db.NamedExecContext(ctx, query, t)
	return mapWriteErr(err)
}

// GetTenant retrieves a tenant by ID
func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.GetContext(ctx, &t, "SELECT * FROM tenants WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ListTenants retrieves all tenants
func (s *Store) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := s.db.SelectContext(ctx, &tenants, "SELECT * FROM tenants ORDER BY created_at DESC")
	return tenants, err
}

// UpdateTenant overwrites every mutable tenant field
func (s *Store) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	query := `
		UPDATE tenants SET name = :name, owner_name = :owner_name, address = :address,
			phone = :phone, email = :email, is_active = :is_active,
			activation_date = :activation_date, expiry_date = :expiry_date,
			activation_token = :activation_token, updated_at = NOW()
		WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, query, t)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectAffected(res)
}

// DeleteTenant removes a tenant; catalog rows cascade, orders are kept.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tenants WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// CreateAdmin inserts an admin record
func (s *Store) CreateAdmin(ctx context.Context, a *models.Admin) error {
	_, err := s.db.NamedExecContext(ctx,
		"INSERT INTO admins (id, name, email, role) VALUES (:id, :name, :email, :role)", a)
	return mapWriteErr(err)
}

// GetAdmin retrieves an admin by ID
func (s *Store) GetAdmin(ctx context.Context, id string) (*models.Admin, error) {
	var a models.Admin
	err := s.db.GetContext(ctx, &a, "SELECT * FROM admins WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ListAdmins retrieves all admins
func (s *Store) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	var admins []models.Admin
	err := s.db.SelectContext(ctx, &admins, "SELECT * FROM admins ORDER BY created_at")
	return admins, err
}

// CountAdmins is used to decide whether the bootstrap superadmin is needed.
func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM admins")
	return n, err
}

// UpdateAdmin updates name, email and role
func (s *Store) UpdateAdmin(ctx context.Context, a *models.Admin) error {
	res, err := s.db.NamedExecContext(ctx,
		"UPDATE admins SET name = :name, email = :email, role = :role, updated_at = NOW() WHERE id = :id", a)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectAffected(res)
}

// DeleteAdmin removes an admin record
func (s *Store) DeleteAdmin(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM admins WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// CreateIdentity inserts a credential record
func (s *Store) CreateIdentity(ctx context.Context, id *models.Identity) error {
	_, err := s.db.NamedExecContext(ctx,
		"INSERT INTO identities (id, app, email, password_hash) VALUES (:id, :app, :email, :password_hash)", id)
	return mapWriteErr(err)
}

// GetIdentityByEmail looks up a credential record within one app
func (s *Store) GetIdentityByEmail(ctx context.Context, app, email string) (*models.Identity, error) {
	var id models.Identity
	err := s.db.GetContext(ctx, &id,
		"SELECT * FROM identities WHERE app = $1 AND email = $2", app, email)
	if err != nil {
		return nil, notFound(err)
	}
	return &id, nil
}

// GetIdentity looks up a credential record within one app by ID
func (s *Store) GetIdentity(ctx context.Context, app, id string) (*models.Identity, error) {
	var ident models.Identity
	err := s.db.GetContext(ctx, &ident,
		"SELECT * FROM identities WHERE app = $1 AND id = $2", app, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &ident, nil
}

// UpdateIdentity updates email and password hash
func (s *Store) UpdateIdentity(ctx context.Context, id *models.Identity) error {
	res, err := s.db.NamedExecContext(ctx,
		`UPDATE identities SET email = :email, password_hash = :password_hash, updated_at = NOW()
		 WHERE app = :app AND id = :id`, id)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectAffected(res)
}

// DeleteIdentity removes a credential record
func (s *Store) DeleteIdentity(ctx context.Context, app, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM identities WHERE app = $1 AND id = $2", app, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
