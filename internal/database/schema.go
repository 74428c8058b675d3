package database

import _ "embed"

// Schema is the full ledger DDL, extracted from the migrations by
// tools/generate_schema.go. Tests apply it directly to in-memory databases
// instead of running the migration machinery.
//
//go:embed schema.sql
var Schema string
