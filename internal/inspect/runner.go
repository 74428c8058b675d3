package inspect

import (
	"context"
	"errors"
	"fmt"

	"drivescope/internal/model"
)

// RunStage executes one stage of a session and records its outcome. Stages
// run in order: every earlier stage must have finished an attempt (completed,
// skipped or failed). A failed predecessor does not block; later stages
// tolerate its absent report. A stage that is itself terminal is not re-run;
// its stored row is returned.
//
// A probe or pipeline failure is recorded as a failed stage row and is not an
// error here: the session stays active and the stage is retried on resume.
// Context cancellation is the exception. The stage row is left in running
// status and the cancellation is returned, so an interrupted run is retried
// from this stage.
func (s *Service) RunStage(ctx context.Context, session *model.Session, drive *model.Drive, mountPoint string, ordinal int) (*model.Stage, error) {
	if ordinal < StageHealth || ordinal > StageReview {
		return nil, fmt.Errorf("invalid stage %d: stages are %d through %d", ordinal, StageHealth, StageReview)
	}

	stages, err := s.ledger.FindStages(session.ID)
	if err != nil {
		return nil, fmt.Errorf("loading stages: %w", err)
	}
	for _, stage := range stages {
		if stage.Ordinal >= ordinal {
			break
		}
		if stage.Status == model.StagePending || stage.Status == model.StageRunning {
			return nil, fmt.Errorf("stage %d (%s) has not run; run it first", stage.Ordinal, stage.Name)
		}
	}

	current, err := s.ledger.FindStage(session.ID, ordinal)
	if err != nil {
		return nil, fmt.Errorf("loading stage: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("stage %d not found in session %s", ordinal, session.ID)
	}
	if current.Status.Terminal() {
		s.logger.Info("stage already finished", "session_id", session.ID, "stage", current.Name, "status", current.Status)
		return current, nil
	}

	if err := s.ledger.MarkStageRunning(session.ID, ordinal, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("marking stage running: %w", err)
	}
	s.logger.Info("stage started", "session_id", session.ID, "stage", current.Name)

	report, runErr := s.dispatchStage(ctx, session, drive, mountPoint, ordinal)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			// Leave the stage running; resume retries it.
			s.logger.Warn("stage interrupted", "session_id", session.ID, "stage", current.Name)
			return nil, runErr
		}

		s.logger.Error("stage failed", "session_id", session.ID, "stage", current.Name, "error", runErr)
		if err := s.ledger.MarkStageFinished(session.ID, ordinal, model.StageFailed, "", runErr.Error(), s.clock.Now()); err != nil {
			return nil, fmt.Errorf("recording stage failure: %w", err)
		}
		return s.ledger.FindStage(session.ID, ordinal)
	}

	if report == nil {
		// Probe declined: nothing to measure, not a failure.
		s.logger.Info("stage skipped", "session_id", session.ID, "stage", current.Name)
		if err := s.ledger.MarkStageFinished(session.ID, ordinal, model.StageSkipped, "", "no data available", s.clock.Now()); err != nil {
			return nil, fmt.Errorf("recording stage skip: %w", err)
		}
		return s.ledger.FindStage(session.ID, ordinal)
	}

	payload, err := EncodeReport(report)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.MarkStageFinished(session.ID, ordinal, model.StageCompleted, payload, "", s.clock.Now()); err != nil {
		return nil, fmt.Errorf("recording stage completion: %w", err)
	}
	s.logger.Info("stage completed", "session_id", session.ID, "stage", current.Name)
	return s.ledger.FindStage(session.ID, ordinal)
}

// dispatchStage invokes the stage's producer. A (nil, nil) return means the
// stage should be recorded as skipped.
func (s *Service) dispatchStage(ctx context.Context, session *model.Session, drive *model.Drive, mountPoint string, ordinal int) (any, error) {
	switch ordinal {
	case StageHealth:
		report, err := s.health.Check(ctx, mountPoint, drive)
		if err != nil {
			return nil, err
		}
		if report == nil {
			return nil, nil
		}
		return report, nil
	case StageOS:
		report, err := s.osDetector.Detect(ctx, mountPoint)
		if err != nil {
			return nil, err
		}
		if report == nil {
			return nil, nil
		}
		return report, nil
	case StageMetadata:
		report, err := s.captureMetadata(ctx, session, drive, mountPoint)
		if err != nil {
			return nil, err
		}
		return report, nil
	case StageReview:
		report, err := s.compileReview(session, drive)
		if err != nil {
			return nil, err
		}
		return report, nil
	}
	return nil, fmt.Errorf("invalid stage %d", ordinal)
}

// RunRemaining executes stages from the first unfinished one onward. It stops
// at the first stage failure, leaving the session active for a later retry,
// and marks the session completed when the last stage finishes.
func (s *Service) RunRemaining(ctx context.Context, session *model.Session, drive *model.Drive, mountPoint string) ([]*model.Stage, error) {
	var ran []*model.Stage
	for {
		next, err := s.NextStage(session.ID)
		if err != nil {
			return ran, err
		}
		if next == 0 {
			break
		}

		stage, err := s.RunStage(ctx, session, drive, mountPoint, next)
		if err != nil {
			return ran, err
		}
		ran = append(ran, stage)
		if stage.Status == model.StageFailed {
			return ran, nil
		}
	}

	if _, err := s.CompleteSessionIfDone(session.ID); err != nil {
		return ran, err
	}
	return ran, nil
}
