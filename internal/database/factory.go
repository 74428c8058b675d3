package database

import (
	"fmt"
	"path/filepath"

	"drivescope/internal/config"
	"drivescope/internal/inspect"
)

// NewLedgerFromConfig creates a Ledger implementation based on the database config type.
func NewLedgerFromConfig(cfg config.DatabaseConfig) (inspect.Ledger, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		dbPath := filepath.Join(cfg.DataDir, "ledger.db")
		return NewSQLiteLedger(dbPath)
	case "memory":
		ledger, err := NewSQLiteLedger(":memory:")
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(); err != nil {
			ledger.Close()
			return nil, fmt.Errorf("migrating in-memory ledger: %w", err)
		}
		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
