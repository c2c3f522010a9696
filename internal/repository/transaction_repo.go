package repository

import (
	"context"

	"github.com/roastmyui/backend/internal/models"
)

// TransactionRepo reads the append-only ledger. Inserts happen in the ledger
// package, inside the same database transaction as the balance update.
type TransactionRepo struct {
	db DB
}

func NewTransactionRepo(db DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

func (r *TransactionRepo) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, amount, type, polar_event_id, order_id, created_at
		FROM transactions WHERE order_id = $1
	`, orderID).Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.PolarEventID, &t.OrderID, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ListByUserID returns the newest entries first.
func (r *TransactionRepo) ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, type, polar_event_id, order_id, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.PolarEventID, &t.OrderID, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// SumByUserID reconstructs a balance from the log.
func (r *TransactionRepo) SumByUserID(ctx context.Context, userID int64) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1
	`, userID).Scan(&total)
	return total, err
}
