// Package ledgertest provides an in-memory ledger.Service for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roastmyui/backend/internal/ledger"
	"github.com/roastmyui/backend/internal/models"
)

// Memory mirrors the Postgres ledger's rules under a single mutex: spends
// never overdraw, grants are unique per order id, and every balance change
// appends a transaction.
type Memory struct {
	mu       sync.Mutex
	starting int
	nextID   int64
	users    map[string]*models.User
	txs      []models.Transaction
	orders   map[string]bool
}

func NewMemory(startingCredits int) *Memory {
	return &Memory{
		starting: startingCredits,
		users:    make(map[string]*models.User),
		orders:   make(map[string]bool),
	}
}

var _ ledger.Service = (*Memory)(nil)

func (m *Memory) Spend(_ context.Context, id models.Identity, amount int) (ledger.SpendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id.ExternalID]
	if !ok {
		if m.starting < amount {
			return ledger.SpendResult{}, ledger.ErrInsufficientBalance
		}
		u = m.create(id)
	}
	if u.Credits < amount {
		return ledger.SpendResult{}, ledger.ErrInsufficientBalance
	}
	u.Credits -= amount
	m.nextID++
	m.append(u.ID, -amount, models.TxRoastSpend, fmt.Sprintf("spend:%d", m.nextID), nil)
	return ledger.SpendResult{UserID: u.ID, Balance: u.Credits}, nil
}

func (m *Memory) Grant(_ context.Context, req ledger.GrantRequest) (ledger.GrantResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(req.UserID)
	if u == nil {
		return ledger.GrantResult{}, fmt.Errorf("user %d not found", req.UserID)
	}
	if m.orders[req.OrderID] {
		return ledger.GrantResult{Granted: false, Balance: u.Credits}, nil
	}
	u.Credits += req.Amount
	m.append(u.ID, req.Amount, req.Kind, req.OrderID, req.EventID)
	return ledger.GrantResult{Granted: true, Balance: u.Credits}, nil
}

func (m *Memory) EnsureUser(_ context.Context, id models.Identity) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id.ExternalID]
	if !ok {
		u = m.create(id)
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) Balance(ctx context.Context, id models.Identity) (int, error) {
	u, err := m.EnsureUser(ctx, id)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}

func (m *Memory) HasOrder(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID], nil
}

func (m *Memory) Reconcile(_ context.Context, userID int64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(userID)
	if u == nil {
		return 0, 0, fmt.Errorf("user %d not found", userID)
	}
	derived := 0
	for _, t := range m.txs {
		if t.UserID == userID {
			derived += t.Amount
		}
	}
	return u.Credits, derived, nil
}

// User returns a copy of the user for externalID, or nil.
func (m *Memory) User(externalID string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[externalID]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// Seed creates a user with an exact balance recorded as one initial grant.
func (m *Memory) Seed(id models.Identity, credits int) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := &models.User{ID: m.nextID, ClerkID: id.ExternalID, Email: id.Email, Credits: credits, CreatedAt: time.Now()}
	m.users[id.ExternalID] = u
	m.append(u.ID, credits, models.TxInitialGrant, "initial:"+id.ExternalID, nil)
	cp := *u
	return &cp
}

// Transactions returns a copy of the log.
func (m *Memory) Transactions() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Transaction(nil), m.txs...)
}

func (m *Memory) create(id models.Identity) *models.User {
	m.nextID++
	u := &models.User{ID: m.nextID, ClerkID: id.ExternalID, Email: id.Email, Credits: m.starting, CreatedAt: time.Now()}
	m.users[id.ExternalID] = u
	m.append(u.ID, m.starting, models.TxInitialGrant, "initial:"+id.ExternalID, nil)
	return u
}

func (m *Memory) byID(id int64) *models.User {
	for _, u := range m.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (m *Memory) append(userID int64, amount int, kind, orderID string, eventID *string) {
	m.orders[orderID] = true
	m.txs = append(m.txs, models.Transaction{
		ID:           int64(len(m.txs) + 1),
		UserID:       userID,
		Amount:       amount,
		Type:         kind,
		PolarEventID: eventID,
		OrderID:      orderID,
		CreatedAt:    time.Now(),
	})
}
