package testutil

import (
	"testing"

	"drivescope/internal/database"
	"drivescope/internal/inspect"
)

// NewTestLedger creates a new in-memory SQLite ledger with schema applied.
// The ledger is automatically closed when the test completes.
func NewTestLedger(t *testing.T) inspect.Ledger {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	ledger := database.NewSQLiteLedgerFromDB(sqlDB)

	t.Cleanup(func() {
		ledger.Close()
	})

	return ledger
}
