package model

import "time"

// SessionStatus is the lifecycle state of an inspection session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// StageStatus is the lifecycle state of a single inspection stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// Terminal reports whether a stage in this status will not run again on resume.
// A running stage is not terminal: an interrupted run must be retried.
func (s StageStatus) Terminal() bool {
	return s == StageCompleted || s == StageSkipped
}

// FingerprintKind distinguishes the cheap boundary digest from the full-content one.
type FingerprintKind string

const (
	FingerprintQuick  FingerprintKind = "quick"
	FingerprintStrong FingerprintKind = "strong"
)

// GroupStatus is the resolution state of a duplicate group.
type GroupStatus string

const (
	GroupUnresolved GroupStatus = "unresolved"
	GroupResolved   GroupStatus = "resolved"
)

// Resolver identifies who recorded a decision.
type Resolver string

const (
	ResolvedByUser   Resolver = "user"
	ResolvedByPolicy Resolver = "policy"
)

// Drive is the logical identity of a physical device. One row per serial
// number; re-observations update the row in place, never replace it.
type Drive struct {
	ID           string // UUID
	SerialNumber string // stable identifier, or UNKNOWN_<name> fallback
	Model        string
	Manufacturer string
	SizeBytes    int64
	Filesystem   string
	Label        string
	MediaType    string
	BusType      string
	FirstSeen    time.Time
	LastScanned  time.Time
}

// Session is one inspection run against a drive.
type Session struct {
	ID           string // UUID
	DriveID      string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Status       SessionStatus
	CurrentStage int    // ordinal of the stage most recently started (1-4)
	TrackingRef  string // optional external issue/ticket reference
}

// Stage is one of exactly four ordered steps of a session. All four rows are
// created in pending status when the session starts, so "what remains" is a
// plain query over stage status.
type Stage struct {
	ID          string // UUID
	SessionID   string
	Ordinal     int // 1-4
	Name        string
	Status      StageStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	ReportJSON  string // opaque serialized stage report
	ErrorText   string // failure or skip reason
}

// Decision is an append-only recorded resolution for a decision key. Multiple
// rows may exist per key; the most recent is authoritative.
type Decision struct {
	ID        string // UUID
	SessionID string
	Kind      string // decision category ("duplicate", "os", "filter", "health")
	Key       string // stable decision identifier ("duplicate_handling", ...)
	Value     string // chosen option id
	Notes     string
	DecidedAt time.Time
	DecidedBy Resolver
}

// Scan ties a metadata-capture run to a drive and session.
type Scan struct {
	ID             string // UUID
	DriveID        string
	SessionID      string
	MountPoint     string
	StartedAt      time.Time
	CompletedAt    *time.Time
	FileCount      int64
	TotalSizeBytes int64
}

// FileRecord is one observed file in a metadata-capture scan. Immutable once
// written.
type FileRecord struct {
	ID         string // UUID
	ScanID     string
	Path       string // relative to the scan mount point
	Name       string // lower-cased basename, "" when the path has none
	SizeBytes  int64
	ModifiedAt time.Time
	CreatedAt  time.Time
	AccessedAt time.Time
	Extension  string // lower-cased, includes the dot; "" for none
	IsHidden   bool
	IsSystem   bool
}

// Fingerprint is a computed digest for a file within a scan. At most one row
// per (scan, file, kind).
type Fingerprint struct {
	ID         string // UUID
	ScanID     string
	FileID     string
	Kind       FingerprintKind
	Value      string
	ComputedAt time.Time
}

// DuplicateGroup is a cluster of files sharing (size, quick fingerprint).
// Member count is always >= 2. WastedBytes = SizeBytes * (FileCount - 1).
type DuplicateGroup struct {
	ID          string // UUID
	HashValue   string
	SizeBytes   int64
	FileCount   int
	WastedBytes int64
	CreatedAt   time.Time
	Status      GroupStatus
}

// DuplicateMember links a file to its duplicate group. Exactly one member per
// group carries IsPrimary (the earliest observed, kept by default).
type DuplicateMember struct {
	ID        string // UUID
	GroupID   string
	FileID    string
	ScanID    string
	IsPrimary bool
}

// CrossScanCandidate is a heuristic match between a file in the active scan
// and a same-size, same-basename file cataloged by an earlier scan. Derived,
// never persisted.
type CrossScanCandidate struct {
	FileID         string
	Path           string
	SizeBytes      int64
	ExistingFileID string
	ExistingPath   string
	ExistingScanID string
	ExistingDrive  string
}
