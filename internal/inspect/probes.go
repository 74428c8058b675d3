package inspect

import (
	"context"
	"io"

	"drivescope/internal/model"
)

// DriveIdentifier resolves the hardware identity of the device behind a mount
// point. Implementations that cannot see the hardware fall back to a derived
// serial so the drive row is still stable across sessions.
type DriveIdentifier interface {
	Identify(mountPoint string) (*model.Drive, error)
}

// HealthChecker produces the stage 1 report. The core treats the report as an
// opaque structured payload; how it is obtained (SMART tooling, filesystem
// checkers) is the implementation's business.
//
// A (nil, nil) return means no health data is obtainable and the stage should
// be skipped rather than failed.
type HealthChecker interface {
	Check(ctx context.Context, mountPoint string, drive *model.Drive) (*HealthReport, error)
}

// OSDetector produces the stage 2 report by probing the mounted tree for
// operating-system markers.
type OSDetector interface {
	Detect(ctx context.Context, mountPoint string) (*OSReport, error)
}

// Archive stores completed-session bundles (the compiled report plus a ledger
// snapshot) off the working machine. Streaming readers keep large snapshots
// out of memory.
type Archive interface {
	// PutBundle stores a named bundle item for a session. size is the number
	// of bytes that will be read from r. Storing the same session/name twice
	// overwrites.
	PutBundle(sessionID string, name string, r io.Reader, size int64) error

	// GetBundle retrieves a named bundle item and writes it to w.
	GetBundle(sessionID string, name string, w io.Writer) error

	// ValidateSetup verifies the archive is accessible and configured.
	ValidateSetup() error
}
