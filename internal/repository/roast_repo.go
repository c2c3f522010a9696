package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/roastmyui/backend/internal/models"
)

type RoastRepo struct {
	db DB
}

func NewRoastRepo(db DB) *RoastRepo {
	return &RoastRepo{db: db}
}

const roastColumns = `id, COALESCE(user_id, 0), url, score, tagline, roast, share_text, strengths, weaknesses,
	COALESCE(visual_crimes, '{}'), COALESCE(best_part, ''), COALESCE(worst_part, ''), COALESCE(screenshot, ''),
	model_used, analysis_type, created_at`

// shameColumns matches roastColumns with the screenshot left unread.
const shameColumns = `id, COALESCE(user_id, 0), url, score, tagline, roast, share_text, strengths, weaknesses,
	COALESCE(visual_crimes, '{}'), COALESCE(best_part, ''), COALESCE(worst_part, ''), '',
	model_used, analysis_type, created_at`

// Create inserts a roast and fills in its id and created_at.
func (r *RoastRepo) Create(ctx context.Context, ro *models.Roast) error {
	var userID *int64
	if ro.UserID != 0 {
		userID = &ro.UserID
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO roasts (user_id, url, score, tagline, roast, share_text, strengths, weaknesses,
			visual_crimes, best_part, worst_part, screenshot, model_used, analysis_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, $14)
		RETURNING id, created_at
	`, userID, ro.URL, ro.Score, ro.Tagline, ro.Roast, ro.ShareText, ro.Strengths, ro.Weaknesses,
		ro.VisualCrimes, ro.BestPart, ro.WorstPart, ro.Screenshot, ro.ModelUsed, ro.AnalysisType,
	).Scan(&ro.ID, &ro.CreatedAt)
}

func (r *RoastRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Roast, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roastColumns+` FROM roasts WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	list, err := scanRoasts(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// ListByUserID returns a user's roasts, newest first.
func (r *RoastRepo) ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.Roast, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+roastColumns+` FROM roasts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanRoasts(rows)
}

// HallOfShame returns the lowest scoring roasts across all users, without
// their screenshots.
func (r *RoastRepo) HallOfShame(ctx context.Context, limit int) ([]*models.Roast, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+shameColumns+` FROM roasts ORDER BY score ASC, created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanRoasts(rows)
}

func scanRoasts(rows pgx.Rows) ([]*models.Roast, error) {
	defer rows.Close()
	var list []*models.Roast
	for rows.Next() {
		var ro models.Roast
		if err := rows.Scan(&ro.ID, &ro.UserID, &ro.URL, &ro.Score, &ro.Tagline, &ro.Roast, &ro.ShareText,
			&ro.Strengths, &ro.Weaknesses, &ro.VisualCrimes, &ro.BestPart, &ro.WorstPart, &ro.Screenshot,
			&ro.ModelUsed, &ro.AnalysisType, &ro.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &ro)
	}
	return list, rows.Err()
}
