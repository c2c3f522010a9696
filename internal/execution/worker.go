package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/roastmyui/backend/internal/ledger"
	"github.com/roastmyui/backend/internal/models"
)

// GrantCreditsArgs credits a purchase to a user. Jobs are unique by order id
// so a replayed webhook can't enqueue a second grant.
type GrantCreditsArgs struct {
	UserID  int64  `json:"user_id"`
	Amount  int    `json:"amount"`
	OrderID string `json:"order_id" river:"unique"`
	EventID string `json:"event_id,omitempty"`
	Product string `json:"product,omitempty"`
}

func (GrantCreditsArgs) Kind() string { return "grant_credits" }

func (GrantCreditsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 10,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// Granter is the ledger operation the worker needs.
type Granter interface {
	Grant(ctx context.Context, req ledger.GrantRequest) (ledger.GrantResult, error)
}

// GrantRecorder receives a count of credits actually granted. It may be nil.
type GrantRecorder interface {
	CreditsGranted(source string, amount int)
}

type GrantCreditsWorker struct {
	river.WorkerDefaults[GrantCreditsArgs]
	ledger   Granter
	recorder GrantRecorder
	log      *slog.Logger
}

func NewGrantCreditsWorker(l Granter, rec GrantRecorder, log *slog.Logger) *GrantCreditsWorker {
	if log == nil {
		log = slog.Default()
	}
	return &GrantCreditsWorker{ledger: l, recorder: rec, log: log}
}

// Work applies the grant. Ledger errors are returned so river retries; a
// grant already recorded for the order is a successful no-op.
func (w *GrantCreditsWorker) Work(ctx context.Context, job *river.Job[GrantCreditsArgs]) error {
	args := job.Args
	var eventID *string
	if args.EventID != "" {
		eventID = &args.EventID
	}
	res, err := w.ledger.Grant(ctx, ledger.GrantRequest{
		UserID:  args.UserID,
		Amount:  args.Amount,
		OrderID: args.OrderID,
		Kind:    models.TxPurchase,
		EventID: eventID,
	})
	if err != nil {
		return fmt.Errorf("grant credits for order %s: %w", args.OrderID, err)
	}
	if !res.Granted {
		w.log.Info("order already credited", "order_id", args.OrderID, "user_id", args.UserID)
		return nil
	}
	if w.recorder != nil {
		w.recorder.CreditsGranted("webhook", args.Amount)
	}
	w.log.Info("credits granted", "order_id", args.OrderID, "user_id", args.UserID,
		"amount", args.Amount, "product", args.Product, "balance", res.Balance)
	return nil
}

// Inserter is satisfied by *river.Client.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Enqueuer schedules grant jobs on a river client.
type Enqueuer struct {
	client Inserter
}

func NewEnqueuer(c Inserter) *Enqueuer {
	return &Enqueuer{client: c}
}

// EnqueueGrant inserts a grant job. duplicate reports that a job for the same
// order already exists.
func (e *Enqueuer) EnqueueGrant(ctx context.Context, args GrantCreditsArgs) (duplicate bool, err error) {
	res, err := e.client.Insert(ctx, args, nil)
	if err != nil {
		return false, fmt.Errorf("enqueue grant for order %s: %w", args.OrderID, err)
	}
	return res.UniqueSkippedAsDuplicate, nil
}
