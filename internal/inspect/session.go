// Package inspect is the orchestration core of the drive inspection workflow:
// a four-stage resumable session state machine, the metadata-capture pipeline,
// duplicate grouping and the review decision engine.
package inspect

import (
	"fmt"

	"drivescope/internal/model"
)

// Options controls metadata capture and review behavior for a session run.
type Options struct {
	SkipDirs     []string // nil for the built-in noise-directory list
	MinHashSize  int64    // files below this are cataloged but not fingerprinted
	BatchSize    int      // file rows per insert transaction
	NoHash       bool     // catalog only, skip the fingerprint phase entirely
	VerifyStrong bool     // confirm candidate groups with full-content digests
	MaxGroups    int      // cap on materialized duplicate groups
	MaxCrossScan int      // cap on cross-scan candidate rows
	HashWorkers  int      // concurrent fingerprint computations
	AutoResolve  bool     // resolve open decision points with their defaults
}

// DefaultOptions returns the standard inspection options.
func DefaultOptions() Options {
	return Options{
		MinHashSize:  1024,
		BatchSize:    500,
		MaxGroups:    1000,
		MaxCrossScan: 1000,
		HashWorkers:  4,
	}
}

// Service coordinates the inspection workflow across the ledger and the
// hardware/filesystem probes.
type Service struct {
	ledger     Ledger
	identifier DriveIdentifier
	health     HealthChecker
	osDetector OSDetector
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	opts       Options
}

// NewService creates a Service with the provided dependencies.
func NewService(ledger Ledger, identifier DriveIdentifier, health HealthChecker, osDetector OSDetector, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Service {
	return &Service{
		ledger:     ledger,
		identifier: identifier,
		health:     health,
		osDetector: osDetector,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		opts:       opts,
	}
}

// StartSession identifies the drive behind mountPoint, records it in the
// ledger and opens a new inspection session with all four stage rows pending.
func (s *Service) StartSession(mountPoint string, trackingRef string) (*model.Session, *model.Drive, error) {
	identity, err := s.identifier.Identify(mountPoint)
	if err != nil {
		return nil, nil, fmt.Errorf("identifying drive at %s: %w", mountPoint, err)
	}

	now := s.clock.Now()
	identity.ID = s.idgen.New()
	identity.FirstSeen = now
	identity.LastScanned = now

	drive, err := s.ledger.UpsertDrive(identity)
	if err != nil {
		return nil, nil, fmt.Errorf("recording drive: %w", err)
	}

	session := &model.Session{
		ID:          s.idgen.New(),
		DriveID:     drive.ID,
		StartedAt:   now,
		Status:      model.SessionActive,
		TrackingRef: trackingRef,
	}

	stages := make([]*model.Stage, 0, StageReview)
	for ordinal := StageHealth; ordinal <= StageReview; ordinal++ {
		stages = append(stages, &model.Stage{
			ID:        s.idgen.New(),
			SessionID: session.ID,
			Ordinal:   ordinal,
			Name:      StageName(ordinal),
			Status:    model.StagePending,
		})
	}

	if err := s.ledger.CreateSession(session, stages); err != nil {
		return nil, nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Info("session started",
		"session_id", session.ID,
		"drive_serial", drive.SerialNumber,
		"mount_point", mountPoint)
	return session, drive, nil
}

// ResumeSession loads an existing active session and its drive.
func (s *Service) ResumeSession(sessionID string) (*model.Session, *model.Drive, error) {
	session, err := s.ledger.FindSession(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return nil, nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if session.Status != model.SessionActive {
		return nil, nil, fmt.Errorf("session %s is %s, not resumable", sessionID, session.Status)
	}

	drive, err := s.ledger.FindDrive(session.DriveID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading drive: %w", err)
	}
	if drive == nil {
		return nil, nil, fmt.Errorf("drive not found for session %s", sessionID)
	}
	return session, drive, nil
}

// NextStage returns the ordinal of the first stage that still has to run:
// the lowest-ordinal stage whose status is not terminal. Pending, failed and
// interrupted (still running) stages are all eligible for (re-)execution.
// Returns 0 when every stage is terminal.
func (s *Service) NextStage(sessionID string) (int, error) {
	stages, err := s.ledger.FindStages(sessionID)
	if err != nil {
		return 0, fmt.Errorf("loading stages: %w", err)
	}
	if len(stages) == 0 {
		return 0, fmt.Errorf("session %s has no stages", sessionID)
	}

	for _, stage := range stages {
		if !stage.Status.Terminal() {
			return stage.Ordinal, nil
		}
	}
	return 0, nil
}

// CompleteSessionIfDone marks the session completed when all stages are
// terminal. Returns true when the terminal transition was applied.
func (s *Service) CompleteSessionIfDone(sessionID string) (bool, error) {
	next, err := s.NextStage(sessionID)
	if err != nil {
		return false, err
	}
	if next != 0 {
		return false, nil
	}

	if err := s.ledger.MarkSessionFinished(sessionID, model.SessionCompleted, s.clock.Now()); err != nil {
		return false, fmt.Errorf("completing session: %w", err)
	}
	s.logger.Info("session completed", "session_id", sessionID)
	return true, nil
}

// FailSession applies the terminal failed transition. Used when the workflow
// cannot continue at all; individual stage failures keep the session active
// and resumable.
func (s *Service) FailSession(sessionID string) error {
	if err := s.ledger.MarkSessionFinished(sessionID, model.SessionFailed, s.clock.Now()); err != nil {
		return fmt.Errorf("failing session: %w", err)
	}
	s.logger.Warn("session failed", "session_id", sessionID)
	return nil
}

// Sessions returns the most recently started sessions.
func (s *Service) Sessions(limit int) ([]*model.Session, error) {
	return s.ledger.ListSessions(limit)
}

// Stages returns all stage rows of a session in order.
func (s *Service) Stages(sessionID string) ([]*model.Stage, error) {
	return s.ledger.FindStages(sessionID)
}

// StageReportJSON returns the stored report payload for a stage, "" when the
// stage has not produced one.
func (s *Service) StageReportJSON(sessionID string, ordinal int) (string, error) {
	stage, err := s.ledger.FindStage(sessionID, ordinal)
	if err != nil {
		return "", err
	}
	if stage == nil {
		return "", fmt.Errorf("stage %d not found in session %s", ordinal, sessionID)
	}
	return stage.ReportJSON, nil
}
