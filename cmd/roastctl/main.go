// Command roastctl runs operator tasks against the roast database: schema
// migrations, ledger inspection and reconciliation, and dev tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roastmyui/backend/internal/auth"
	"github.com/roastmyui/backend/internal/config"
	"github.com/roastmyui/backend/internal/db"
	"github.com/roastmyui/backend/internal/ledger"
	"github.com/roastmyui/backend/internal/models"
	"github.com/roastmyui/backend/internal/repository"
)

var errMismatch = errors.New("ledger mismatch")

func main() {
	_ = godotenv.Load()
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "roastctl",
		Short:         "Operator tools for the roast backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newCreditsCommand())
	cmd.AddCommand(newModelsCommand())
	cmd.AddCommand(newCatalogCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}

func newMigrateCommand() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if status {
				return db.Status(c.Context(), cfg.Database.URL)
			}
			if err := db.Migrate(c.Context(), cfg.Database.URL); err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "Print migration status instead of applying")
	return cmd
}

func newCreditsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and repair the credit ledger",
	}
	cmd.AddCommand(newCreditsListCommand(), newCreditsReconcileCommand(), newCreditsGrantCommand())
	return cmd
}

func newCreditsListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users and balances, newest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withPool(c.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				users, err := repository.NewUserRepo(pool).List(ctx, limit)
				if err != nil {
					return err
				}
				printUsers(c.OutOrStdout(), users)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum users to list")
	return cmd
}

func newCreditsReconcileCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare stored balances with the sum of each user's transactions",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withPool(c.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				users, err := repository.NewUserRepo(pool).List(ctx, limit)
				if err != nil {
					return err
				}
				svc := ledger.NewService(ledger.NewRepository(pool), config.Default().Pricing.StartingCredits)
				return reconcile(ctx, c.OutOrStdout(), svc, users)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1000, "Maximum users to check")
	return cmd
}

func newCreditsGrantCommand() *cobra.Command {
	var (
		userID  string
		amount  int
		orderID string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Credit a purchase by hand, once per order id",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withPool(c.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				u, err := repository.NewUserRepo(pool).GetByExternalID(ctx, userID)
				if err != nil {
					return fmt.Errorf("user %s: %w", userID, err)
				}
				svc := ledger.NewService(ledger.NewRepository(pool), config.Default().Pricing.StartingCredits)
				res, err := svc.Grant(ctx, ledger.GrantRequest{UserID: u.ID, Amount: amount, OrderID: orderID, Kind: models.TxPurchase})
				if err != nil {
					return err
				}
				if !res.Granted {
					fmt.Fprintf(c.OutOrStdout(), "order %s already credited; balance %d\n", orderID, res.Balance)
					return nil
				}
				fmt.Fprintf(c.OutOrStdout(), "granted %d to %s; balance %d\n", amount, userID, res.Balance)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "External user id")
	cmd.Flags().IntVar(&amount, "amount", 0, "Credits to add")
	cmd.Flags().StringVar(&orderID, "order", "", "Payment order id")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the model fallback chain in the order it is tried",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			for i, m := range cfg.LLM.Models {
				fmt.Fprintf(c.OutOrStdout(), "%d. %s\n", i+1, m)
			}
			fmt.Fprintf(c.OutOrStdout(), "rate-limit delay: %s\n", cfg.LLM.RateLimitDelay)
			fmt.Fprintf(c.OutOrStdout(), "provider: %s (search grounding: %v)\n", cfg.LLM.Provider, cfg.LLM.SearchGrounding)
			return nil
		},
	}
}

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the credit packs the payment webhook recognizes",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cat, err := config.LoadCatalog(cfg.Polar.CatalogFile)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLAN\tCREDITS\tPRODUCT ID")
			for _, p := range cat.Products {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", p.Plan, p.Credits, p.ID)
			}
			return tw.Flush()
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		subject string
		email   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an HS256 session token for local development",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			tok, err := auth.IssueDevToken(cfg.Auth.JWTSecret, subject, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "user_dev", "Token subject (external user id)")
	cmd.Flags().StringVar(&email, "email", "dev@example.com", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func withPool(ctx context.Context, fn func(context.Context, *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func printUsers(w io.Writer, users []*models.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEXTERNAL ID\tEMAIL\tCREDITS\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", u.ID, u.ClerkID, u.Email, u.Credits, u.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

type reconciler interface {
	Reconcile(ctx context.Context, userID int64) (stored, derived int, err error)
}

// reconcile reports every user whose stored balance differs from the sum of
// their transactions and fails if any does.
func reconcile(ctx context.Context, w io.Writer, l reconciler, users []*models.User) error {
	bad := 0
	for _, u := range users {
		stored, derived, err := l.Reconcile(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("reconcile user %d: %w", u.ID, err)
		}
		if stored != derived {
			bad++
			fmt.Fprintf(w, "MISMATCH user=%d external=%s stored=%d derived=%d\n", u.ID, u.ClerkID, stored, derived)
		}
	}
	fmt.Fprintf(w, "checked %d users, %d mismatched\n", len(users), bad)
	if bad > 0 {
		return fmt.Errorf("%w: %d users", errMismatch, bad)
	}
	return nil
}
