package inspect

import (
	"time"

	"drivescope/internal/model"
)

// GroupCandidate is one (quick fingerprint, size) cluster with at least two
// members, as returned by the ledger's grouping query. FileIDs and Paths are
// parallel, ordered by first observation.
type GroupCandidate struct {
	HashValue string
	SizeBytes int64
	FileIDs   []string
	Paths     []string
}

// FileToHash is the subset of a file record the fingerprint phase needs.
type FileToHash struct {
	FileID    string
	Path      string
	SizeBytes int64
}

// Ledger is the durable record of drives, sessions, stages, files,
// fingerprints, duplicate groups and decisions. All multi-row writes are
// committed atomically by the implementation. Lookup methods return
// (nil, nil) when no row matches; any other failure is a hard error, since no
// progress is possible without durable state.
type Ledger interface {
	// Drive operations

	// UpsertDrive creates a drive on first observation of its serial number,
	// or updates the existing row in place (last-scanned stamp, non-empty
	// hardware fields). The drive identity row is never replaced.
	UpsertDrive(drive *model.Drive) (*model.Drive, error)

	// FindDriveBySerial returns the drive with the given serial number.
	FindDriveBySerial(serial string) (*model.Drive, error)

	// FindDrive returns a drive by ID.
	FindDrive(id string) (*model.Drive, error)

	// Session operations

	// CreateSession inserts the session and its four pending stage rows in
	// one transaction.
	CreateSession(session *model.Session, stages []*model.Stage) error

	// FindSession returns a session by ID.
	FindSession(id string) (*model.Session, error)

	// ListSessions returns the most recently started sessions.
	ListSessions(limit int) ([]*model.Session, error)

	// MarkStageRunning transitions a stage to running, stamps its start time
	// and advances the session's current-stage pointer, atomically.
	MarkStageRunning(sessionID string, ordinal int, at time.Time) error

	// MarkStageFinished stamps completion and stores status, report payload
	// and error text for a stage.
	MarkStageFinished(sessionID string, ordinal int, status model.StageStatus, reportJSON string, errorText string, at time.Time) error

	// MarkSessionFinished applies the terminal session transition.
	MarkSessionFinished(sessionID string, status model.SessionStatus, at time.Time) error

	// FindStages returns all stages of a session in ordinal order.
	FindStages(sessionID string) ([]*model.Stage, error)

	// FindStage returns a single stage by session and ordinal.
	FindStage(sessionID string, ordinal int) (*model.Stage, error)

	// Decision operations

	// AppendDecision records a resolution. Decisions are append-only; the
	// most recent row per key is authoritative.
	AppendDecision(decision *model.Decision) error

	// FindDecisions returns all decisions of a session ordered by decision time.
	FindDecisions(sessionID string) ([]*model.Decision, error)

	// Scan and file operations

	// CreateScan records the start of a metadata-capture run.
	CreateScan(scan *model.Scan) error

	// MarkScanFinished stamps completion and final counters on a scan.
	MarkScanFinished(scanID string, fileCount int64, totalSizeBytes int64, at time.Time) error

	// InsertFiles writes a batch of file records in one transaction.
	InsertFiles(files []*model.FileRecord) error

	// InsertFingerprints writes a batch of fingerprints in one transaction.
	InsertFingerprints(fingerprints []*model.Fingerprint) error

	// FilesToHash returns the files of a scan at or above minSize, largest
	// first, for the fingerprint phase.
	FilesToHash(scanID string, minSize int64) ([]*FileToHash, error)

	// Duplicate operations

	// GroupCandidates clusters the scan's quick fingerprints by
	// (value, size), keeping clusters with two or more members, largest
	// files first, capped at limit.
	GroupCandidates(scanID string, limit int) ([]*GroupCandidate, error)

	// CreateDuplicateGroup inserts the group and all its members in one
	// transaction.
	CreateDuplicateGroup(group *model.DuplicateGroup, members []*model.DuplicateMember) error

	// CrossScanCandidates finds files in other scans matching a current-scan
	// file by size and lower-cased basename, at or above minSize, capped at
	// limit. Files without a basename never match.
	CrossScanCandidates(scanID string, minSize int64, limit int) ([]*model.CrossScanCandidate, error)

	// Maintenance operations

	// CheckMigrations verifies the store's schema is at the expected version.
	CheckMigrations() error

	// SnapshotTo writes a consistent copy of the ledger to the given path.
	SnapshotTo(path string) error

	// Close closes the underlying store.
	Close() error
}
