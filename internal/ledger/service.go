package ledger

import (
	"context"
	"fmt"

	"github.com/roastmyui/backend/internal/models"
)

// GrantRequest credits a user once per OrderID.
type GrantRequest struct {
	UserID  int64
	Amount  int
	OrderID string
	Kind    string
	EventID *string
}

// SpendResult is the state after a successful spend.
type SpendResult struct {
	UserID  int64
	Balance int
}

// GrantResult reports whether the grant was applied or was a replay.
type GrantResult struct {
	Granted bool `json:"granted"`
	Balance int  `json:"balance"`
}

type Service interface {
	Spend(ctx context.Context, id models.Identity, amount int) (SpendResult, error)
	Grant(ctx context.Context, req GrantRequest) (GrantResult, error)
	EnsureUser(ctx context.Context, id models.Identity) (*models.User, error)
	Balance(ctx context.Context, id models.Identity) (int, error)
	HasOrder(ctx context.Context, orderID string) (bool, error)
	Reconcile(ctx context.Context, userID int64) (stored, derived int, err error)
}

type service struct {
	repo            *Repository
	startingCredits int
}

func NewService(repo *Repository, startingCredits int) Service {
	return &service{repo: repo, startingCredits: startingCredits}
}

var _ Service = (*service)(nil)

func (s *service) Spend(ctx context.Context, id models.Identity, amount int) (SpendResult, error) {
	if amount <= 0 {
		return SpendResult{}, fmt.Errorf("spend amount must be > 0, got %d", amount)
	}
	userID, balance, err := s.repo.Spend(ctx, id, amount, s.startingCredits)
	if err != nil {
		return SpendResult{}, err
	}
	return SpendResult{UserID: userID, Balance: balance}, nil
}

func (s *service) Grant(ctx context.Context, req GrantRequest) (GrantResult, error) {
	if req.Amount <= 0 {
		return GrantResult{}, fmt.Errorf("grant amount must be > 0, got %d", req.Amount)
	}
	if req.OrderID == "" {
		return GrantResult{}, fmt.Errorf("grant requires an order id")
	}
	granted, balance, err := s.repo.Grant(ctx, req.UserID, req.Amount, req.OrderID, req.Kind, req.EventID)
	if err != nil {
		return GrantResult{}, err
	}
	return GrantResult{Granted: granted, Balance: balance}, nil
}

func (s *service) EnsureUser(ctx context.Context, id models.Identity) (*models.User, error) {
	return s.repo.EnsureUser(ctx, id, s.startingCredits)
}

// Balance returns the caller's credits, creating the user with the starting
// grant on first visit.
func (s *service) Balance(ctx context.Context, id models.Identity) (int, error) {
	u, err := s.repo.EnsureUser(ctx, id, s.startingCredits)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}

func (s *service) HasOrder(ctx context.Context, orderID string) (bool, error) {
	return s.repo.HasOrder(ctx, orderID)
}

func (s *service) Reconcile(ctx context.Context, userID int64) (int, int, error) {
	return s.repo.Reconcile(ctx, userID)
}

// ErrInsufficientBalance is returned when a spend would take the balance below zero.
var ErrInsufficientBalance = errInsufficientBalance
