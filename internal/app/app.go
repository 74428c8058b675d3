package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"drivescope/internal/archive"
	"drivescope/internal/config"
	"drivescope/internal/database"
	"drivescope/internal/encryption"
	"drivescope/internal/inspect"
	"drivescope/internal/model"
	"drivescope/internal/probe"
)

// Bundle item names written by Export.
const (
	BundleReport = "report.json"
	BundleLedger = "ledger.db"
)

// InspectApp is the application layer between the CLI and the inspection
// service. It constructs all dependencies from config, exposes high-level
// operations that accept raw string arguments, and manages the ledger
// lifecycle on Close.
type InspectApp struct {
	cfg       *config.Config
	ledger    inspect.Ledger
	archive   inspect.Archive
	encryptor inspect.Encryptor
	service   *inspect.Service
	logFile   *os.File
}

// OptionsFromConfig maps the scan section of a config onto service options.
// Per-invocation flags (no-hash, auto-resolve) are layered on by the caller.
func OptionsFromConfig(cfg *config.Config) inspect.Options {
	opts := inspect.DefaultOptions()
	if len(cfg.Scan.SkipDirs) > 0 {
		opts.SkipDirs = cfg.Scan.SkipDirs
	}
	opts.MinHashSize = cfg.Scan.MinHashSize
	opts.BatchSize = cfg.Scan.BatchSize
	opts.VerifyStrong = cfg.Scan.VerifyStrong
	opts.MaxGroups = cfg.Scan.MaxGroups
	opts.MaxCrossScan = cfg.Scan.MaxCrossScan
	opts.HashWorkers = cfg.Scan.HashWorkers
	return opts
}

// NewInspectApp creates a fully wired InspectApp from the given config.
// operation identifies the CLI command being run (e.g. "inspect", "resume").
// The caller must call Close when done.
func NewInspectApp(cfg *config.Config, operation string, opts inspect.Options) (*InspectApp, error) {
	ledger, err := database.NewLedgerFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating ledger: %w", err)
	}

	if err := ledger.CheckMigrations(); err != nil {
		ledger.Close()
		return nil, fmt.Errorf("ledger schema out of date: %w", err)
	}

	arc, err := archive.NewArchiveFromConfig(cfg.Archive)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := inspect.NewService(
		ledger,
		probe.NewMountIdentifier(),
		probe.NewBasicHealthChecker(),
		probe.NewMarkerOSDetector(),
		&slogAdapter{l: logger},
		inspect.RealClock{},
		inspect.UUIDGenerator{},
		opts,
	)

	return &InspectApp{
		cfg:       cfg,
		ledger:    ledger,
		archive:   arc,
		encryptor: enc,
		service:   svc,
		logFile:   logFile,
	}, nil
}

// Service exposes the underlying inspection service.
func (a *InspectApp) Service() *inspect.Service {
	return a.service
}

// RunStage starts a new session (or resumes sessionID if non-empty) and runs
// a single stage against the drive mounted at mountPoint. It returns the
// finished stage together with its session.
func (a *InspectApp) RunStage(ctx context.Context, mountPoint string, ordinal int, sessionID string, trackingRef string) (*model.Session, *model.Stage, error) {
	session, drive, err := a.openSession(mountPoint, sessionID, trackingRef)
	if err != nil {
		return nil, nil, err
	}

	stage, err := a.service.RunStage(ctx, session, drive, mountPoint, ordinal)
	if err != nil {
		return session, stage, err
	}

	if _, err := a.service.CompleteSessionIfDone(session.ID); err != nil {
		return session, stage, err
	}
	return session, stage, nil
}

// RunAll starts a new session (or resumes sessionID if non-empty) and runs
// every remaining stage in order, stopping at the first failure.
func (a *InspectApp) RunAll(ctx context.Context, mountPoint string, sessionID string, trackingRef string) (*model.Session, []*model.Stage, error) {
	session, drive, err := a.openSession(mountPoint, sessionID, trackingRef)
	if err != nil {
		return nil, nil, err
	}

	stages, err := a.service.RunRemaining(ctx, session, drive, mountPoint)
	return session, stages, err
}

func (a *InspectApp) openSession(mountPoint string, sessionID string, trackingRef string) (*model.Session, *model.Drive, error) {
	if sessionID != "" {
		return a.service.ResumeSession(sessionID)
	}
	return a.service.StartSession(mountPoint, trackingRef)
}

// Sessions returns the most recently started sessions.
func (a *InspectApp) Sessions(limit int) ([]*model.Session, error) {
	return a.service.Sessions(limit)
}

// Stages returns all four stages of a session in order.
func (a *InspectApp) Stages(sessionID string) ([]*model.Stage, error) {
	return a.service.Stages(sessionID)
}

// StageReport returns the stored report JSON for one stage of a session.
func (a *InspectApp) StageReport(sessionID string, ordinal int) (string, error) {
	return a.service.StageReportJSON(sessionID, ordinal)
}

// PendingDecisions returns the session's unresolved decision points.
func (a *InspectApp) PendingDecisions(sessionID string) ([]inspect.DecisionPoint, error) {
	return a.service.PendingDecisions(sessionID)
}

// ResolveDecision records an operator's choice for a decision point.
func (a *InspectApp) ResolveDecision(sessionID string, key string, value string, notes string) error {
	return a.service.ResolveDecision(sessionID, key, value, notes, model.ResolvedByUser)
}

// SetupEncryption generates the export key pair protected by the passphrase.
func (a *InspectApp) SetupEncryption(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// Export archives a completed session: the compiled review report plus a
// snapshot of the ledger. When encrypt is true both items are encrypted
// before upload and stored with an .age suffix.
func (a *InspectApp) Export(sessionID string, encrypt bool) error {
	session, err := a.ledger.FindSession(sessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}

	if err := a.archive.ValidateSetup(); err != nil {
		return fmt.Errorf("validating archive: %w", err)
	}

	if encrypt && !a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption requested but no key pair found: run setup first")
	}

	report, err := a.service.StageReportJSON(sessionID, 4)
	if err != nil {
		return fmt.Errorf("loading review report: %w", err)
	}
	if err := a.putItem(sessionID, BundleReport, strings.NewReader(report), int64(len(report)), encrypt); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp("", "drivescope-ledger-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for ledger snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := a.ledger.SnapshotTo(tmpPath); err != nil {
		return fmt.Errorf("snapshotting ledger: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening ledger snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger snapshot: %w", err)
	}

	return a.putItem(sessionID, BundleLedger, f, info.Size(), encrypt)
}

// putItem uploads one bundle item, optionally encrypting it first. Encrypted
// items are spooled to a temp file because the archive needs the final size
// up front.
func (a *InspectApp) putItem(sessionID string, name string, r io.Reader, size int64, encrypt bool) error {
	if !encrypt {
		if err := a.archive.PutBundle(sessionID, name, r, size); err != nil {
			return fmt.Errorf("archiving %s: %w", name, err)
		}
		return nil
	}

	tmpFile, err := os.CreateTemp("", "drivescope-export-*")
	if err != nil {
		return fmt.Errorf("creating temp file for encryption: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := a.encryptor.Encrypt(r, tmpFile); err != nil {
		tmpFile.Close()
		return fmt.Errorf("encrypting %s: %w", name, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing encrypted temp file: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening encrypted temp file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat encrypted temp file: %w", err)
	}

	if err := a.archive.PutBundle(sessionID, name+".age", f, info.Size()); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	return nil
}

// FetchBundle retrieves a named bundle item from the archive. If passphrase
// is non-empty the item is decrypted on the way out.
func (a *InspectApp) FetchBundle(sessionID string, name string, passphrase string, w io.Writer) error {
	if passphrase == "" {
		if err := a.archive.GetBundle(sessionID, name, w); err != nil {
			return fmt.Errorf("fetching %s: %w", name, err)
		}
		return nil
	}

	dctx, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking export key: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.archive.GetBundle(sessionID, name, pw))
	}()

	if err := dctx.Decrypt(pr, w); err != nil {
		return fmt.Errorf("decrypting %s: %w", name, err)
	}
	return nil
}

// Close closes all resources held by the app.
func (a *InspectApp) Close() error {
	var firstErr error

	if err := a.ledger.Close(); err != nil {
		firstErr = fmt.Errorf("closing ledger: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
