package repository

import (
	"context"

	"github.com/roastmyui/backend/internal/models"
)

// UserRepo reads users. Balance changes go through the ledger package.
type UserRepo struct {
	db DB
}

func NewUserRepo(db DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, clerk_id, email, credits, created_at`

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.ClerkID, &u.Email, &u.Credits, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepo) GetByExternalID(ctx context.Context, clerkID string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE clerk_id = $1
	`, clerkID).Scan(&u.ID, &u.ClerkID, &u.Email, &u.Credits, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetByEmail matches case-insensitively and prefers the oldest user when
// several identities share an address.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)
		ORDER BY created_at ASC LIMIT 1
	`, email).Scan(&u.ID, &u.ClerkID, &u.Email, &u.Credits, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context, limit int) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.ClerkID, &u.Email, &u.Credits, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &u)
	}
	return list, rows.Err()
}
