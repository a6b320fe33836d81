package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"authgate/api/internal/models"
)

var (
	ErrRoleNotFound = errors.New("role not found")
	ErrRoleExists   = errors.New("role already exists")
)

type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

func (r *RoleRepository) Create(ctx context.Context, role models.Role) error {
	const query = `
		INSERT INTO roles (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`
	cmd, err := r.pool.Exec(ctx, query, role.ID, role.Name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRoleExists
	}
	return nil
}

func (r *RoleRepository) FindByName(ctx context.Context, name string) (models.Role, error) {
	const query = `SELECT id, name FROM roles WHERE name = $1`

	var role models.Role
	if err := r.pool.QueryRow(ctx, query, name).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Role{}, ErrRoleNotFound
		}
		return models.Role{}, err
	}
	return role, nil
}

func (r *RoleRepository) Rename(ctx context.Context, oldName, newName string) error {
	const query = `UPDATE roles SET name = $2 WHERE name = $1`
	cmd, err := r.pool.Exec(ctx, query, oldName, newName)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *RoleRepository) Delete(ctx context.Context, name string) error {
	const query = `DELETE FROM roles WHERE name = $1`
	cmd, err := r.pool.Exec(ctx, query, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *RoleRepository) List(ctx context.Context) ([]models.Role, error) {
	const query = `SELECT id, name FROM roles ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *RoleRepository) Assign(ctx context.Context, userID, roleID string) error {
	const query = `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID, roleID)
	return err
}

func (r *RoleRepository) Unassign(ctx context.Context, userID, roleID string) error {
	const query = `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`
	cmd, err := r.pool.Exec(ctx, query, userID, roleID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *RoleRepository) RolesForUser(ctx context.Context, userID string) ([]models.Role, error) {
	const query = `
		SELECT r.id, r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
