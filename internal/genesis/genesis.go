// Package genesis loads the initial ledger state for a fresh deployment:
// the administrator identity, the operator whitelist, and seeded account
// balances. The file is read once at startup and applied in a single
// transaction so a partially seeded ledger is never observable.
package genesis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gridmarket/internal/ledger"
)

// Account seeds a settlement account with an opening balance.
type Account struct {
	Identity string `yaml:"identity"`
	Balance  int64  `yaml:"balance"`
}

// Config defines the genesis state of the ledger.
type Config struct {
	Administrator string    `yaml:"administrator"`
	Whitelist     []string  `yaml:"whitelist"`
	Accounts      []Account `yaml:"accounts"`
}

// Load reads genesis configuration from the yaml file at path, falling
// back to the GENESIS_ADMINISTRATOR and GENESIS_WHITELIST environment
// variables when no file is configured.
func Load(path string) (Config, error) {
	cfg := Config{
		Administrator: os.Getenv("GENESIS_ADMINISTRATOR"),
		Whitelist:     splitCSV(os.Getenv("GENESIS_WHITELIST")),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Administrator == "" {
		return cfg, errors.New("genesis: administrator required")
	}
	for _, acct := range cfg.Accounts {
		if acct.Identity == "" {
			return cfg, errors.New("genesis: account identity required")
		}
		if acct.Balance < 0 {
			return cfg, fmt.Errorf("genesis: negative balance for %s", acct.Identity)
		}
	}
	return cfg, nil
}

// Apply seeds the ledger from cfg. Re-applying the same configuration
// is a no-op: the administrator stays bound and existing accounts keep
// their balances. A configuration naming a different administrator
// than the one already bound is rejected.
func Apply(ctx context.Context, store ledger.Store, cfg Config) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.SetAdministrator(ctx, cfg.Administrator); err != nil {
		if errors.Is(err, ledger.ErrAdministratorSet) {
			return fmt.Errorf("genesis: administrator %s conflicts with the bound identity: %w", cfg.Administrator, err)
		}
		return err
	}
	for _, identity := range cfg.Whitelist {
		if err := tx.SetWhitelisted(ctx, identity, true); err != nil {
			return err
		}
	}
	for _, acct := range cfg.Accounts {
		if err := tx.InitAccount(ctx, acct.Identity, acct.Balance); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
