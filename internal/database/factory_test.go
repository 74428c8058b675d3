package database

import (
	"testing"

	"drivescope/internal/config"
)

func TestNewLedgerFromConfig(t *testing.T) {
	t.Run("memory ledger", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewLedgerFromConfig(cfg)

		if err != nil {
			t.Errorf("NewLedgerFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Error("NewLedgerFromConfig() returned nil")
		}

		if got != nil {
			got.Close()
		}
	})

	t.Run("sqlite ledger", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}
		got, err := NewLedgerFromConfig(cfg)

		if err != nil {
			t.Errorf("NewLedgerFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Error("NewLedgerFromConfig() returned nil")
		}

		if got != nil {
			got.Close()
		}
	})

	t.Run("sqlite ledger without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewLedgerFromConfig(cfg)

		if err == nil {
			t.Error("NewLedgerFromConfig() expected error for missing data_dir, got nil")
		}

		if got != nil {
			t.Error("NewLedgerFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewLedgerFromConfig(cfg)

		if err == nil {
			t.Error("NewLedgerFromConfig() expected error for unknown type, got nil")
		}

		if got != nil {
			t.Error("NewLedgerFromConfig() should return nil on error")
			got.Close()
		}
	})
}
