package genesis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gridmarket/internal/ledger"
	"gridmarket/internal/ledger/memory"
)

func writeGenesis(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write genesis file: %v", err)
	}
	return path
}

func TestLoadAndApply(t *testing.T) {
	path := writeGenesis(t, `
administrator: org-admin
whitelist:
  - org-a
  - org-b
accounts:
  - identity: org-a
    balance: 1000
  - identity: org-buyer
    balance: 250
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Administrator != "org-admin" || len(cfg.Whitelist) != 2 || len(cfg.Accounts) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	store := memory.NewStore()
	ctx := context.Background()
	if err := Apply(ctx, store, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	admin, err := store.Administrator(ctx)
	if err != nil || admin != "org-admin" {
		t.Fatalf("administrator = %q, %v", admin, err)
	}
	for _, identity := range []string{"org-a", "org-b"} {
		allowed, err := store.IsWhitelisted(ctx, identity)
		if err != nil || !allowed {
			t.Fatalf("%s not whitelisted: %v %v", identity, allowed, err)
		}
	}
	balance, err := store.Balance(ctx, "org-buyer")
	if err != nil || balance != 250 {
		t.Fatalf("buyer balance = %d, %v", balance, err)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	path := writeGenesis(t, `
administrator: org-admin
accounts:
  - identity: org-a
    balance: 100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	store := memory.NewStore()
	ctx := context.Background()
	if err := Apply(ctx, store, cfg); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// Spend from the seeded account, then re-apply.
	tx, _ := store.Begin(ctx)
	if err := tx.Transfer(ctx, "org-a", "org-b", 30); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := Apply(ctx, store, cfg); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	balance, _ := store.Balance(ctx, "org-a")
	if balance != 70 {
		t.Fatalf("re-apply reset balance: %d", balance)
	}
}

func TestApplyRejectsConflictingAdministrator(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	if err := Apply(ctx, store, Config{Administrator: "org-admin"}); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	conflicting := Config{
		Administrator: "org-intruder",
		Whitelist:     []string{"org-c"},
	}
	err := Apply(ctx, store, conflicting)
	if !errors.Is(err, ledger.ErrAdministratorSet) {
		t.Fatalf("conflicting apply = %v, want administrator conflict", err)
	}

	admin, _ := store.Administrator(ctx)
	if admin != "org-admin" {
		t.Fatalf("administrator = %q after rejected apply", admin)
	}
	allowed, _ := store.IsWhitelisted(ctx, "org-c")
	if allowed {
		t.Fatalf("rejected apply leaked whitelist entry")
	}
}

func TestLoadRequiresAdministrator(t *testing.T) {
	t.Setenv("GENESIS_ADMINISTRATOR", "")
	t.Setenv("GENESIS_WHITELIST", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without administrator")
	}
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("GENESIS_ADMINISTRATOR", "org-admin")
	t.Setenv("GENESIS_WHITELIST", "org-a, org-b")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Administrator != "org-admin" || len(cfg.Whitelist) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsNegativeBalance(t *testing.T) {
	path := writeGenesis(t, `
administrator: org-admin
accounts:
  - identity: org-a
    balance: -5
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for negative balance")
	}
}
