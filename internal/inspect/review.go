package inspect

import (
	"fmt"
	"time"

	"drivescope/internal/model"
)

// Decision keys and their categories. Keys are stable identifiers; resolved
// values are recorded against them in the ledger.
const (
	DecisionDuplicateHandling  = "duplicate_handling"
	DecisionOSPreservation     = "os_preservation"
	DecisionSystemFolderFilter = "system_folder_filter"
	DecisionHealthAction       = "health_action"
)

var decisionKinds = map[string]string{
	DecisionDuplicateHandling:  "duplicate",
	DecisionOSPreservation:     "os",
	DecisionSystemFolderFilter: "filter",
	DecisionHealthAction:       "health",
}

// autoResolveNote marks ledger rows written by the default-resolution policy.
const autoResolveNote = "Auto-resolved with default"

// healthActionThreshold is the health score below which the workflow asks how
// to proceed.
const healthActionThreshold = 70

// stageReports bundles the decoded reports of stages 1-3. Any of the fields
// may be nil: a failed or skipped stage leaves no report, and the review must
// still compile.
type stageReports struct {
	health   *HealthReport
	os       *OSReport
	metadata *MetadataReport
}

func (s *Service) loadStageReports(sessionID string) (*stageReports, error) {
	stages, err := s.ledger.FindStages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading stages: %w", err)
	}

	reports := &stageReports{}
	for _, stage := range stages {
		switch stage.Ordinal {
		case StageHealth:
			reports.health, err = DecodeHealthReport(stage.ReportJSON)
		case StageOS:
			reports.os, err = DecodeOSReport(stage.ReportJSON)
		case StageMetadata:
			reports.metadata, err = DecodeMetadataReport(stage.ReportJSON)
		}
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", stage.Ordinal, err)
		}
	}
	return reports, nil
}

// deriveDecisionPoints applies the trigger rules to the stage reports. Every
// returned point is unresolved; the caller overlays recorded decisions.
func deriveDecisionPoints(reports *stageReports) []DecisionPoint {
	var points []DecisionPoint

	if m := reports.metadata; m != nil && (m.DuplicateGroupsFound > 0 || m.CrossScanDuplicates > 0) {
		points = append(points, DecisionPoint{
			DecisionID:  DecisionDuplicateHandling,
			Category:    decisionKinds[DecisionDuplicateHandling],
			Title:       "Duplicate file handling",
			Description: fmt.Sprintf("%d duplicate groups (%d cross-scan, %s wasted) were found on this drive.", m.DuplicateGroupsFound, m.CrossScanDuplicates, formatBytes(m.TotalWastedBytes)),
			Options: []Option{
				{ID: "skip_all", Label: "Skip all duplicates", Description: "Catalog only the primary copy of each group."},
				{ID: "catalog_with_flag", Label: "Catalog with duplicate flag", Description: "Catalog every copy and keep the duplicate marking."},
				{ID: "review_individually", Label: "Review individually", Description: "Queue each group for manual review."},
			},
			DefaultOption: "catalog_with_flag",
			Context: map[string]any{
				"duplicate_groups":      m.DuplicateGroupsFound,
				"duplicate_files":       m.TotalDuplicateFiles,
				"cross_scan_duplicates": m.CrossScanDuplicates,
				"wasted_bytes":          m.TotalWastedBytes,
			},
		})
	}

	if o := reports.os; o != nil && o.OSType == "Windows" {
		if o.BootCapable {
			points = append(points, DecisionPoint{
				DecisionID:  DecisionOSPreservation,
				Category:    decisionKinds[DecisionOSPreservation],
				Title:       "Operating system preservation",
				Description: fmt.Sprintf("A bootable %s installation was detected.", o.OSName),
				Options: []Option{
					{ID: "bootable_archive", Label: "Preserve bootable image", Description: "Archive the full drive so the installation stays bootable."},
					{ID: "data_only", Label: "Data only", Description: "Archive user data and discard the operating system."},
				},
				DefaultOption: "data_only",
				Context: map[string]any{
					"os_name":      o.OSName,
					"boot_capable": o.BootCapable,
				},
			})
		}

		points = append(points, DecisionPoint{
			DecisionID:  DecisionSystemFolderFilter,
			Category:    decisionKinds[DecisionSystemFolderFilter],
			Title:       "System folder filtering",
			Description: "Windows system folders were found; choose how much of them to carry into the catalog.",
			Options: []Option{
				{ID: "exclude_windows", Label: "Exclude Windows folders", Description: "Drop the Windows directory, keep Program Files."},
				{ID: "exclude_all_system", Label: "Exclude all system folders", Description: "Drop Windows, Program Files and ProgramData."},
				{ID: "include_all", Label: "Include everything", Description: "Keep all system folders in the catalog."},
			},
			DefaultOption: "exclude_windows",
			Context: map[string]any{
				"os_name": o.OSName,
			},
		})
	}

	if h := reports.health; h != nil && h.HealthScore < healthActionThreshold {
		points = append(points, DecisionPoint{
			DecisionID:  DecisionHealthAction,
			Category:    decisionKinds[DecisionHealthAction],
			Title:       "Degraded drive handling",
			Description: fmt.Sprintf("Drive health is %s (score %d). Continued reading may stress the hardware.", h.OverallHealth, h.HealthScore),
			Options: []Option{
				{ID: "proceed_with_caution", Label: "Proceed with caution", Description: "Continue the inspection, minimizing re-reads."},
				{ID: "quick_backup_first", Label: "Quick backup first", Description: "Image critical data before any further inspection."},
				{ID: "abort_inspection", Label: "Abort inspection", Description: "Stop now and hand the drive to recovery tooling."},
			},
			DefaultOption: "proceed_with_caution",
			Context: map[string]any{
				"health_score":   h.HealthScore,
				"overall_health": h.OverallHealth,
			},
		})
	}

	return points
}

// latestDecisions reduces the append-only decision rows to the most recent
// row per key.
func latestDecisions(decisions []*model.Decision) map[string]*model.Decision {
	latest := map[string]*model.Decision{}
	for _, d := range decisions {
		latest[d.Key] = d // rows arrive in decision order
	}
	return latest
}

// compileReview builds the stage 4 report: stage summaries, derived decision
// points overlaid with recorded resolutions, and the session-level
// recommendation list. With AutoResolve set, open points are resolved with
// their defaults and recorded as policy decisions first.
func (s *Service) compileReview(session *model.Session, drive *model.Drive) (*ReviewReport, error) {
	reports, err := s.loadStageReports(session.ID)
	if err != nil {
		return nil, err
	}

	points := deriveDecisionPoints(reports)

	if s.opts.AutoResolve {
		if err := s.autoResolve(session.ID, points); err != nil {
			return nil, err
		}
	}

	decisions, err := s.ledger.FindDecisions(session.ID)
	if err != nil {
		return nil, fmt.Errorf("loading decisions: %w", err)
	}
	latest := latestDecisions(decisions)

	pending := 0
	for i := range points {
		if d, ok := latest[points[i].DecisionID]; ok {
			points[i].Resolved = true
			points[i].Resolution = d.Value
			points[i].Notes = d.Notes
		} else {
			pending++
		}
	}

	report := &ReviewReport{
		SessionID:      session.ID,
		DriveModel:     drive.Model,
		DriveSerial:    drive.SerialNumber,
		InspectionTime: s.clock.Now().UTC().Format(time.RFC3339),
		DecisionPoints: points,
		Warnings:       []string{},
		Errors:         []string{},
	}

	for _, d := range decisions {
		report.ResolvedDecisions = append(report.ResolvedDecisions, ResolvedDecision{
			Kind:      d.Kind,
			Key:       d.Key,
			Value:     d.Value,
			Notes:     d.Notes,
			DecidedAt: d.DecidedAt.UTC().Format(time.RFC3339),
			DecidedBy: string(d.DecidedBy),
		})
	}

	report.HealthSummary, report.OSSummary, report.MetadataSummary = summarizeStages(reports)
	report.Recommendations = reviewRecommendations(reports, pending)
	report.Summary = reviewSummary(drive, reports, pending)
	return report, nil
}

// autoResolve records the default option for every point that has no decision
// row yet.
func (s *Service) autoResolve(sessionID string, points []DecisionPoint) error {
	decisions, err := s.ledger.FindDecisions(sessionID)
	if err != nil {
		return fmt.Errorf("loading decisions: %w", err)
	}
	latest := latestDecisions(decisions)

	for _, p := range points {
		if _, ok := latest[p.DecisionID]; ok {
			continue
		}
		d := &model.Decision{
			ID:        s.idgen.New(),
			SessionID: sessionID,
			Kind:      p.Category,
			Key:       p.DecisionID,
			Value:     p.DefaultOption,
			Notes:     autoResolveNote,
			DecidedAt: s.clock.Now(),
			DecidedBy: model.ResolvedByPolicy,
		}
		if err := s.ledger.AppendDecision(d); err != nil {
			return err
		}
		s.logger.Info("decision auto-resolved", "session_id", sessionID, "key", p.DecisionID, "value", p.DefaultOption)
	}
	return nil
}

func summarizeStages(reports *stageReports) (health, os, metadata map[string]any) {
	if h := reports.health; h != nil {
		health = map[string]any{
			"overall_health":  h.OverallHealth,
			"health_score":    h.HealthScore,
			"smart_available": h.SMARTAvailable,
			"warnings":        len(h.Warnings),
			"errors":          len(h.Errors),
		}
	}
	if o := reports.os; o != nil {
		os = map[string]any{
			"os_type":      o.OSType,
			"os_name":      o.OSName,
			"version":      o.Version,
			"boot_capable": o.BootCapable,
			"confidence":   o.Confidence,
		}
	}
	if m := reports.metadata; m != nil {
		metadata = map[string]any{
			"total_files":            m.TotalFiles,
			"total_size_bytes":       m.TotalSizeBytes,
			"files_hashed":           m.FilesHashed,
			"duplicate_groups_found": m.DuplicateGroupsFound,
			"total_wasted_bytes":     m.TotalWastedBytes,
			"cross_scan_duplicates":  m.CrossScanDuplicates,
			"errors_count":           m.ErrorCount,
		}
	}
	return health, os, metadata
}

func reviewRecommendations(reports *stageReports, pending int) []string {
	var recs []string
	if h := reports.health; h != nil {
		if h.HealthScore < 25 {
			recs = append(recs, "Drive health is critical: image the drive before any further reads")
		} else if h.HealthScore < healthActionThreshold {
			recs = append(recs, "Drive health is degraded: minimize re-reads and archive soon")
		}
		recs = append(recs, h.Recommendations...)
	} else {
		recs = append(recs, "No health data was captured: treat the drive as untested hardware")
	}
	if o := reports.os; o != nil {
		if o.BootCapable {
			recs = append(recs, fmt.Sprintf("Bootable %s detected: consider a full system backup if recovery might be needed", o.OSName))
		}
		if len(o.UserProfiles) > 3 {
			recs = append(recs, fmt.Sprintf("Multiple user profiles (%d): review for active vs dormant accounts", len(o.UserProfiles)))
		}
	}
	if m := reports.metadata; m != nil {
		recs = append(recs, m.Recommendations...)
		if m.OldestFileDate != "" {
			recs = append(recs, fmt.Sprintf("Files date back to %s: historical data may have archival value", dateOnly(m.OldestFileDate)))
		}
	}
	if pending > 0 {
		recs = append(recs, fmt.Sprintf("%d decisions are pending: resolve them before archiving", pending))
	}
	return recs
}

func reviewSummary(drive *model.Drive, reports *stageReports, pending int) string {
	healthText := "unknown"
	if h := reports.health; h != nil {
		healthText = fmt.Sprintf("%s (%d)", h.OverallHealth, h.HealthScore)
	}
	filesText := "not captured"
	if m := reports.metadata; m != nil {
		filesText = fmt.Sprintf("%d (%s)", m.TotalFiles, formatBytes(m.TotalSizeBytes))
	}
	return fmt.Sprintf("Drive %s (%s) | Health: %s | Files: %s | Decisions pending: %d",
		drive.Model, drive.SerialNumber, healthText, filesText, pending)
}

// PendingDecisions returns the decision points of a session that have no
// recorded resolution yet.
func (s *Service) PendingDecisions(sessionID string) ([]DecisionPoint, error) {
	reports, err := s.loadStageReports(sessionID)
	if err != nil {
		return nil, err
	}
	points := deriveDecisionPoints(reports)

	decisions, err := s.ledger.FindDecisions(sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading decisions: %w", err)
	}
	latest := latestDecisions(decisions)

	var pending []DecisionPoint
	for _, p := range points {
		if _, ok := latest[p.DecisionID]; !ok {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// ResolveDecision records a resolution for one decision key. The key must be
// a currently derived decision point and value one of its options.
func (s *Service) ResolveDecision(sessionID string, key string, value string, notes string, by model.Resolver) error {
	reports, err := s.loadStageReports(sessionID)
	if err != nil {
		return err
	}

	var point *DecisionPoint
	for _, p := range deriveDecisionPoints(reports) {
		if p.DecisionID == key {
			point = &p
			break
		}
	}
	if point == nil {
		return fmt.Errorf("no open decision point with key %q", key)
	}

	valid := false
	for _, opt := range point.Options {
		if opt.ID == value {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid option %q for decision %q", value, key)
	}

	d := &model.Decision{
		ID:        s.idgen.New(),
		SessionID: sessionID,
		Kind:      point.Category,
		Key:       key,
		Value:     value,
		Notes:     notes,
		DecidedAt: s.clock.Now(),
		DecidedBy: by,
	}
	if err := s.ledger.AppendDecision(d); err != nil {
		return err
	}
	s.logger.Info("decision resolved", "session_id", sessionID, "key", key, "value", value, "by", by)
	return nil
}
