// Package database implements the inspection Ledger on SQLite.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"drivescope/internal/database/migrations"
	"drivescope/internal/inspect"
	"drivescope/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteLedger implements the Ledger interface using SQLite.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// NewSQLiteLedger creates a new SQLite ledger connection.
// path can be a file path or ":memory:" for an in-memory ledger.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteLedger{db: db, path: path}, nil
}

// NewSQLiteLedgerFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteLedgerFromDB(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a properly configured
// connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys are OFF by default in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Long metadata-capture runs hold the connection for minutes; wait for
	// locks instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Drive operations

func (l *SQLiteLedger) UpsertDrive(drive *model.Drive) (*model.Drive, error) {
	_, err := l.db.Exec(`
		INSERT INTO drives (
			id, serial_number, model, manufacturer, size_bytes,
			filesystem, label, media_type, bus_type, first_seen, last_scanned
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(serial_number) DO UPDATE SET
			last_scanned = excluded.last_scanned,
			model = CASE WHEN excluded.model != '' THEN excluded.model ELSE model END,
			manufacturer = CASE WHEN excluded.manufacturer != '' THEN excluded.manufacturer ELSE manufacturer END,
			size_bytes = CASE WHEN excluded.size_bytes != 0 THEN excluded.size_bytes ELSE size_bytes END,
			filesystem = CASE WHEN excluded.filesystem != '' THEN excluded.filesystem ELSE filesystem END,
			label = CASE WHEN excluded.label != '' THEN excluded.label ELSE label END,
			media_type = CASE WHEN excluded.media_type != '' THEN excluded.media_type ELSE media_type END,
			bus_type = CASE WHEN excluded.bus_type != '' THEN excluded.bus_type ELSE bus_type END`,
		drive.ID, drive.SerialNumber, drive.Model, drive.Manufacturer, drive.SizeBytes,
		drive.Filesystem, drive.Label, drive.MediaType, drive.BusType,
		drive.FirstSeen, drive.LastScanned,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting drive: %w", err)
	}

	return l.FindDriveBySerial(drive.SerialNumber)
}

func (l *SQLiteLedger) FindDriveBySerial(serial string) (*model.Drive, error) {
	return l.findDrive("serial_number = ?", serial)
}

func (l *SQLiteLedger) FindDrive(id string) (*model.Drive, error) {
	return l.findDrive("id = ?", id)
}

func (l *SQLiteLedger) findDrive(where string, arg any) (*model.Drive, error) {
	var d model.Drive
	err := l.db.QueryRow(`
		SELECT id, serial_number, model, manufacturer, size_bytes,
		       filesystem, label, media_type, bus_type, first_seen, last_scanned
		FROM drives WHERE `+where, arg,
	).Scan(
		&d.ID, &d.SerialNumber, &d.Model, &d.Manufacturer, &d.SizeBytes,
		&d.Filesystem, &d.Label, &d.MediaType, &d.BusType, &d.FirstSeen, &d.LastScanned,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding drive: %w", err)
	}
	return &d, nil
}

// Session operations

func (l *SQLiteLedger) CreateSession(session *model.Session, stages []*model.Stage) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, drive_id, started_at, status, current_stage, tracking_ref)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.DriveID, session.StartedAt, session.Status,
		session.CurrentStage, session.TrackingRef,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	for _, stage := range stages {
		_, err = tx.Exec(`
			INSERT INTO stages (id, session_id, ordinal, name, status)
			VALUES (?, ?, ?, ?, ?)`,
			stage.ID, stage.SessionID, stage.Ordinal, stage.Name, stage.Status,
		)
		if err != nil {
			return fmt.Errorf("inserting stage %d: %w", stage.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) FindSession(id string) (*model.Session, error) {
	var s model.Session
	var completedAt sql.NullTime
	err := l.db.QueryRow(`
		SELECT id, drive_id, started_at, completed_at, status, current_stage, tracking_ref
		FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.DriveID, &s.StartedAt, &completedAt, &s.Status, &s.CurrentStage, &s.TrackingRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding session: %w", err)
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return &s, nil
}

func (l *SQLiteLedger) ListSessions(limit int) ([]*model.Session, error) {
	rows, err := l.db.Query(`
		SELECT id, drive_id, started_at, completed_at, status, current_stage, tracking_ref
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		var s model.Session
		var completedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.DriveID, &s.StartedAt, &completedAt, &s.Status, &s.CurrentStage, &s.TrackingRef); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if completedAt.Valid {
			s.CompletedAt = &completedAt.Time
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

func (l *SQLiteLedger) MarkStageRunning(sessionID string, ordinal int, at time.Time) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE stages SET status = ?, started_at = ?
		WHERE session_id = ? AND ordinal = ?`,
		model.StageRunning, at, sessionID, ordinal,
	)
	if err != nil {
		return fmt.Errorf("marking stage running: %w", err)
	}

	// The current-stage pointer only advances, never regresses.
	_, err = tx.Exec(`
		UPDATE sessions SET current_stage = ?
		WHERE id = ? AND current_stage < ?`,
		ordinal, sessionID, ordinal,
	)
	if err != nil {
		return fmt.Errorf("advancing current stage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) MarkStageFinished(sessionID string, ordinal int, status model.StageStatus, reportJSON string, errorText string, at time.Time) error {
	_, err := l.db.Exec(`
		UPDATE stages SET status = ?, completed_at = ?, report_json = ?, error_text = ?
		WHERE session_id = ? AND ordinal = ?`,
		status, at, reportJSON, errorText, sessionID, ordinal,
	)
	if err != nil {
		return fmt.Errorf("marking stage finished: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) MarkSessionFinished(sessionID string, status model.SessionStatus, at time.Time) error {
	_, err := l.db.Exec(`
		UPDATE sessions SET status = ?, completed_at = ? WHERE id = ?`,
		status, at, sessionID,
	)
	if err != nil {
		return fmt.Errorf("marking session finished: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) FindStages(sessionID string) ([]*model.Stage, error) {
	rows, err := l.db.Query(`
		SELECT id, session_id, ordinal, name, status, started_at, completed_at, report_json, error_text
		FROM stages WHERE session_id = ? ORDER BY ordinal`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("finding stages: %w", err)
	}
	defer rows.Close()

	var stages []*model.Stage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding stages: %w", err)
	}
	return stages, nil
}

func (l *SQLiteLedger) FindStage(sessionID string, ordinal int) (*model.Stage, error) {
	row := l.db.QueryRow(`
		SELECT id, session_id, ordinal, name, status, started_at, completed_at, report_json, error_text
		FROM stages WHERE session_id = ? AND ordinal = ?`, sessionID, ordinal)

	stage, err := scanStage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return stage, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStage(r rowScanner) (*model.Stage, error) {
	var stage model.Stage
	var startedAt, completedAt sql.NullTime
	err := r.Scan(
		&stage.ID, &stage.SessionID, &stage.Ordinal, &stage.Name, &stage.Status,
		&startedAt, &completedAt, &stage.ReportJSON, &stage.ErrorText,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning stage: %w", err)
	}
	if startedAt.Valid {
		stage.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		stage.CompletedAt = &completedAt.Time
	}
	return &stage, nil
}

// Decision operations

func (l *SQLiteLedger) AppendDecision(decision *model.Decision) error {
	_, err := l.db.Exec(`
		INSERT INTO decisions (id, session_id, kind, key, value, notes, decided_at, decided_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		decision.ID, decision.SessionID, decision.Kind, decision.Key,
		decision.Value, decision.Notes, decision.DecidedAt, decision.DecidedBy,
	)
	if err != nil {
		return fmt.Errorf("appending decision: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) FindDecisions(sessionID string) ([]*model.Decision, error) {
	rows, err := l.db.Query(`
		SELECT id, session_id, kind, key, value, notes, decided_at, decided_by
		FROM decisions WHERE session_id = ? ORDER BY decided_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("finding decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*model.Decision
	for rows.Next() {
		var d model.Decision
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Kind, &d.Key, &d.Value, &d.Notes, &d.DecidedAt, &d.DecidedBy); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		decisions = append(decisions, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding decisions: %w", err)
	}
	return decisions, nil
}

// Scan and file operations

func (l *SQLiteLedger) CreateScan(scan *model.Scan) error {
	_, err := l.db.Exec(`
		INSERT INTO scans (id, drive_id, session_id, mount_point, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		scan.ID, scan.DriveID, scan.SessionID, scan.MountPoint, scan.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("creating scan: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) MarkScanFinished(scanID string, fileCount int64, totalSizeBytes int64, at time.Time) error {
	_, err := l.db.Exec(`
		UPDATE scans SET completed_at = ?, file_count = ?, total_size_bytes = ? WHERE id = ?`,
		at, fileCount, totalSizeBytes, scanID,
	)
	if err != nil {
		return fmt.Errorf("marking scan finished: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) InsertFiles(files []*model.FileRecord) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO files (id, scan_id, path, name, size_bytes, modified_at, created_at, accessed_at, extension, is_hidden, is_system)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing file insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		_, err := stmt.Exec(
			f.ID, f.ScanID, f.Path, f.Name, f.SizeBytes,
			f.ModifiedAt, f.CreatedAt, f.AccessedAt, f.Extension, f.IsHidden, f.IsSystem,
		)
		if err != nil {
			return fmt.Errorf("inserting file %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) InsertFingerprints(fingerprints []*model.Fingerprint) error {
	if len(fingerprints) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO fingerprints (id, scan_id, file_id, kind, value, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing fingerprint insert: %w", err)
	}
	defer stmt.Close()

	for _, fp := range fingerprints {
		_, err := stmt.Exec(fp.ID, fp.ScanID, fp.FileID, fp.Kind, fp.Value, fp.ComputedAt)
		if err != nil {
			return fmt.Errorf("inserting fingerprint for file %s: %w", fp.FileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) FilesToHash(scanID string, minSize int64) ([]*inspect.FileToHash, error) {
	rows, err := l.db.Query(`
		SELECT id, path, size_bytes
		FROM files
		WHERE scan_id = ? AND size_bytes >= ?
		ORDER BY size_bytes DESC`, scanID, minSize)
	if err != nil {
		return nil, fmt.Errorf("finding files to hash: %w", err)
	}
	defer rows.Close()

	var files []*inspect.FileToHash
	for rows.Next() {
		var f inspect.FileToHash
		if err := rows.Scan(&f.FileID, &f.Path, &f.SizeBytes); err != nil {
			return nil, fmt.Errorf("scanning file to hash: %w", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding files to hash: %w", err)
	}
	return files, nil
}

// Duplicate operations

func (l *SQLiteLedger) GroupCandidates(scanID string, limit int) ([]*inspect.GroupCandidate, error) {
	// Grouping keys on (quick value, size) jointly. Singleton fingerprints
	// never materialize a group.
	rows, err := l.db.Query(`
		SELECT h.value, f.size_bytes, COUNT(*) AS n
		FROM fingerprints h
		JOIN files f ON h.file_id = f.id
		WHERE h.scan_id = ? AND h.kind = ?
		GROUP BY h.value, f.size_bytes
		HAVING COUNT(*) > 1
		ORDER BY f.size_bytes DESC
		LIMIT ?`, scanID, model.FingerprintQuick, limit)
	if err != nil {
		return nil, fmt.Errorf("finding group candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*inspect.GroupCandidate
	for rows.Next() {
		var c inspect.GroupCandidate
		var n int
		if err := rows.Scan(&c.HashValue, &c.SizeBytes, &n); err != nil {
			return nil, fmt.Errorf("scanning group candidate: %w", err)
		}
		candidates = append(candidates, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding group candidates: %w", err)
	}

	// Load members per group in observation order, so the first member is
	// the earliest observed (the default primary).
	for _, c := range candidates {
		memberRows, err := l.db.Query(`
			SELECT f.id, f.path
			FROM fingerprints h
			JOIN files f ON h.file_id = f.id
			WHERE h.scan_id = ? AND h.kind = ? AND h.value = ? AND f.size_bytes = ?
			ORDER BY f.rowid`, scanID, model.FingerprintQuick, c.HashValue, c.SizeBytes)
		if err != nil {
			return nil, fmt.Errorf("finding group members: %w", err)
		}
		for memberRows.Next() {
			var id, path string
			if err := memberRows.Scan(&id, &path); err != nil {
				memberRows.Close()
				return nil, fmt.Errorf("scanning group member: %w", err)
			}
			c.FileIDs = append(c.FileIDs, id)
			c.Paths = append(c.Paths, path)
		}
		if err := memberRows.Err(); err != nil {
			memberRows.Close()
			return nil, fmt.Errorf("finding group members: %w", err)
		}
		memberRows.Close()
	}

	return candidates, nil
}

func (l *SQLiteLedger) CreateDuplicateGroup(group *model.DuplicateGroup, members []*model.DuplicateMember) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO duplicate_groups (id, hash_value, size_bytes, file_count, wasted_bytes, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.HashValue, group.SizeBytes, group.FileCount,
		group.WastedBytes, group.CreatedAt, group.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting duplicate group: %w", err)
	}

	for _, m := range members {
		_, err := tx.Exec(`
			INSERT INTO duplicate_members (id, group_id, file_id, scan_id, is_primary)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.GroupID, m.FileID, m.ScanID, m.IsPrimary,
		)
		if err != nil {
			return fmt.Errorf("inserting duplicate member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) CrossScanCandidates(scanID string, minSize int64, limit int) ([]*model.CrossScanCandidate, error) {
	// Heuristic pre-filter only: size plus lower-cased basename. Files
	// without a basename never match.
	rows, err := l.db.Query(`
		SELECT f1.id, f1.path, f1.size_bytes, f2.id, f2.path, f2.scan_id, d2.model
		FROM files f1
		JOIN files f2 ON f1.size_bytes = f2.size_bytes AND f1.name = f2.name
		JOIN scans s2 ON f2.scan_id = s2.id
		JOIN drives d2 ON s2.drive_id = d2.id
		WHERE f1.scan_id = ?
		  AND f2.scan_id != ?
		  AND f1.name != ''
		  AND f1.size_bytes >= ?
		LIMIT ?`, scanID, scanID, minSize, limit)
	if err != nil {
		return nil, fmt.Errorf("finding cross-scan candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*model.CrossScanCandidate
	for rows.Next() {
		var c model.CrossScanCandidate
		err := rows.Scan(
			&c.FileID, &c.Path, &c.SizeBytes,
			&c.ExistingFileID, &c.ExistingPath, &c.ExistingScanID, &c.ExistingDrive,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning cross-scan candidate: %w", err)
		}
		candidates = append(candidates, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding cross-scan candidates: %w", err)
	}
	return candidates, nil
}

// Path returns the ledger file path (or ":memory:").
func (l *SQLiteLedger) Path() string {
	return l.path
}

// CheckMigrations verifies the ledger schema is up-to-date.
func (l *SQLiteLedger) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(l.db)
}

// Migrate brings the ledger schema to the latest version.
func (l *SQLiteLedger) Migrate() error {
	return migrations.MigrateUp(l.db)
}

// SnapshotTo creates a complete copy of the ledger at destPath using VACUUM INTO.
func (l *SQLiteLedger) SnapshotTo(destPath string) error {
	if _, err := l.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("snapshotting ledger: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteLedger implements the Ledger interface
var _ inspect.Ledger = (*SQLiteLedger)(nil)
