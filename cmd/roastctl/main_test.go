package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/roastmyui/backend/internal/ledger/ledgertest"
	"github.com/roastmyui/backend/internal/models"
)

type skewedLedger struct{ skew map[int64]int }

func (s skewedLedger) Reconcile(_ context.Context, userID int64) (int, int, error) {
	return 10, 10 + s.skew[userID], nil
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ROAST_AUTH_JWT_SECRET", "cli-test-secret")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestModelsCommand(t *testing.T) {
	t.Setenv("ROAST_LLM_MODELS", "m-a, m-b")
	out, err := run(t, "models")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "1. m-a") || !strings.Contains(out, "2. m-b") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "--sub", "user_ops")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.Count(strings.TrimSpace(out), ".") != 2 {
		t.Errorf("expected a JWT, got %q", out)
	}
}

func TestCatalogCommand_DefaultWhenFileMissing(t *testing.T) {
	t.Setenv("ROAST_POLAR_CATALOG_FILE", "/nonexistent/products.yaml")
	out, err := run(t, "catalog")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if !strings.Contains(out, "15_CREDITS") || !strings.Contains(out, "40_CREDITS") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestReconcile(t *testing.T) {
	users := []*models.User{{ID: 1, ClerkID: "a"}, {ID: 2, ClerkID: "b"}}

	var out bytes.Buffer
	err := reconcile(context.Background(), &out, skewedLedger{skew: map[int64]int{2: -1}}, users)
	if !errors.Is(err, errMismatch) {
		t.Fatalf("expected errMismatch, got %v", err)
	}
	if !strings.Contains(out.String(), "MISMATCH user=2") || strings.Contains(out.String(), "user=1 ") {
		t.Errorf("unexpected report %q", out.String())
	}

	mem := ledgertest.NewMemory(3)
	u := mem.Seed(models.Identity{ExternalID: "c"}, 5)
	out.Reset()
	if err := reconcile(context.Background(), &out, mem, []*models.User{u}); err != nil {
		t.Fatalf("expected consistent ledger, got %v: %s", err, out.String())
	}
}
