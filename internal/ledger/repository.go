package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/roastmyui/backend/internal/models"
)

var errInsufficientBalance = errors.New("insufficient credits")

// DB is the subset of pgxpool.Pool used by the ledger. pgxmock pools satisfy it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// inTx runs fn inside a transaction, committing on success and rolling back otherwise.
func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Spend deducts amount from the user's balance. The decrement is a single
// conditional UPDATE so concurrent spends can never drive credits below zero.
// A user without a row is created with startingCredits minus amount, and the
// initial grant is recorded alongside the spend.
func (r *Repository) Spend(ctx context.Context, id models.Identity, amount, startingCredits int) (int64, int, error) {
	var (
		userID  int64
		balance int
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		// Second pass only happens when a concurrent first use created the row.
		for range 2 {
			err := tx.QueryRow(ctx, `
				UPDATE users SET credits = credits - $1
				WHERE clerk_id = $2 AND credits >= $1
				RETURNING id, credits
			`, amount, id.ExternalID).Scan(&userID, &balance)
			if err == nil {
				return insertTx(ctx, tx, userID, -amount, models.TxRoastSpend, spendOrderID(), nil)
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}

			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE clerk_id = $1)`, id.ExternalID).Scan(&exists); err != nil {
				return err
			}
			if exists || startingCredits < amount {
				return errInsufficientBalance
			}

			balance = startingCredits - amount
			err = tx.QueryRow(ctx, `
				INSERT INTO users (clerk_id, email, credits)
				VALUES ($1, $2, $3)
				ON CONFLICT (clerk_id) DO NOTHING
				RETURNING id
			`, id.ExternalID, id.Email, balance).Scan(&userID)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			if err := insertTx(ctx, tx, userID, startingCredits, models.TxInitialGrant, initialOrderID(id.ExternalID), nil); err != nil {
				return err
			}
			return insertTx(ctx, tx, userID, -amount, models.TxRoastSpend, spendOrderID(), nil)
		}
		return errInsufficientBalance
	})
	if err != nil {
		return 0, 0, err
	}
	return userID, balance, nil
}

// Grant credits amount to userID, keyed by orderID. The transaction row is
// inserted first with ON CONFLICT DO NOTHING; the balance only moves when
// that insert actually happened, so replays are no-ops.
func (r *Repository) Grant(ctx context.Context, userID int64, amount int, orderID, kind string, eventID *string) (bool, int, error) {
	var (
		granted bool
		balance int
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var txID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO transactions (user_id, amount, type, polar_event_id, order_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (order_id) DO NOTHING
			RETURNING id
		`, userID, amount, kind, eventID, orderID).Scan(&txID)
		if errors.Is(err, pgx.ErrNoRows) {
			return tx.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&balance)
		}
		if err != nil {
			return err
		}
		granted = true
		return tx.QueryRow(ctx, `
			UPDATE users SET credits = credits + $1 WHERE id = $2 RETURNING credits
		`, amount, userID).Scan(&balance)
	})
	if err != nil {
		return false, 0, err
	}
	return granted, balance, nil
}

// EnsureUser returns the user for id, creating it with startingCredits and an
// INITIAL_GRANT row when missing.
func (r *Repository) EnsureUser(ctx context.Context, id models.Identity, startingCredits int) (*models.User, error) {
	u, err := r.getByExternalID(ctx, r.db, id.ExternalID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		var created models.User
		err := tx.QueryRow(ctx, `
			INSERT INTO users (clerk_id, email, credits)
			VALUES ($1, $2, $3)
			ON CONFLICT (clerk_id) DO NOTHING
			RETURNING id, clerk_id, email, credits, created_at
		`, id.ExternalID, id.Email, startingCredits).Scan(&created.ID, &created.ClerkID, &created.Email, &created.Credits, &created.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race; the winner recorded the grant.
			u, err = r.getByExternalID(ctx, tx, id.ExternalID)
			return err
		}
		if err != nil {
			return err
		}
		u = &created
		return insertTx(ctx, tx, created.ID, startingCredits, models.TxInitialGrant, initialOrderID(id.ExternalID), nil)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// HasOrder reports whether a transaction keyed by orderID already exists.
func (r *Repository) HasOrder(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE order_id = $1)`, orderID).Scan(&exists)
	return exists, err
}

// Reconcile returns the stored balance and the balance derived from the
// transaction log for one user.
func (r *Repository) Reconcile(ctx context.Context, userID int64) (stored, derived int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT u.credits, COALESCE(SUM(t.amount), 0)
		FROM users u LEFT JOIN transactions t ON t.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.credits
	`, userID).Scan(&stored, &derived)
	return stored, derived, err
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) getByExternalID(ctx context.Context, q rowQuerier, externalID string) (*models.User, error) {
	var u models.User
	err := q.QueryRow(ctx, `
		SELECT id, clerk_id, email, credits, created_at FROM users WHERE clerk_id = $1
	`, externalID).Scan(&u.ID, &u.ClerkID, &u.Email, &u.Credits, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func insertTx(ctx context.Context, tx pgx.Tx, userID int64, amount int, kind, orderID string, eventID *string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (user_id, amount, type, polar_event_id, order_id)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, amount, kind, eventID, orderID)
	return err
}

// spendOrderID is swapped in tests for deterministic ids.
var spendOrderID = func() string { return "spend:" + uuid.NewString() }

func initialOrderID(externalID string) string { return "initial:" + externalID }
