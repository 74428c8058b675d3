package inspect_test

import (
	"context"
	"strings"
	"testing"

	"drivescope/internal/inspect"
	"drivescope/internal/model"
	"drivescope/internal/testutil"
)

// markStageReport stores an encoded report as a completed stage row, so
// review tests can set up arbitrary stage outcomes without running probes.
func markStageReport(t *testing.T, ledger inspect.Ledger, sessionID string, ordinal int, report any) {
	t.Helper()

	payload, err := inspect.EncodeReport(report)
	if err != nil {
		t.Fatalf("EncodeReport() error = %v", err)
	}
	now := testutil.FixedClock().Now()
	if err := ledger.MarkStageFinished(sessionID, ordinal, model.StageCompleted, payload, "", now); err != nil {
		t.Fatalf("MarkStageFinished() error = %v", err)
	}
}

func reviewReport(t *testing.T, svc *inspect.Service, sessionID string) *inspect.ReviewReport {
	t.Helper()

	raw, err := svc.StageReportJSON(sessionID, inspect.StageReview)
	if err != nil {
		t.Fatalf("StageReportJSON() error = %v", err)
	}
	report, err := inspect.DecodeReviewReport(raw)
	if err != nil {
		t.Fatalf("DecodeReviewReport() error = %v", err)
	}
	if report == nil {
		t.Fatal("review stage has no report")
	}
	return report
}

func TestService_DecisionTriggers(t *testing.T) {
	tests := []struct {
		name     string
		health   *inspect.HealthReport
		os       *inspect.OSReport
		metadata *inspect.MetadataReport
		wantKeys []string
	}{
		{
			name:     "healthy empty drive triggers nothing",
			health:   &inspect.HealthReport{OverallHealth: "Excellent", HealthScore: 95},
			os:       &inspect.OSReport{OSType: "Unknown"},
			metadata: &inspect.MetadataReport{TotalFiles: 10},
			wantKeys: nil,
		},
		{
			name:     "duplicates trigger duplicate handling",
			health:   &inspect.HealthReport{OverallHealth: "Excellent", HealthScore: 95},
			os:       &inspect.OSReport{OSType: "Unknown"},
			metadata: &inspect.MetadataReport{DuplicateGroupsFound: 3, TotalDuplicateFiles: 7},
			wantKeys: []string{"duplicate_handling"},
		},
		{
			name:     "cross-scan matches alone trigger duplicate handling",
			health:   &inspect.HealthReport{OverallHealth: "Excellent", HealthScore: 95},
			os:       &inspect.OSReport{OSType: "Unknown"},
			metadata: &inspect.MetadataReport{CrossScanDuplicates: 2},
			wantKeys: []string{"duplicate_handling"},
		},
		{
			name:     "bootable windows triggers preservation and filtering",
			health:   &inspect.HealthReport{OverallHealth: "Good", HealthScore: 80},
			os:       &inspect.OSReport{OSType: "Windows", OSName: "Windows 10", BootCapable: true},
			metadata: &inspect.MetadataReport{},
			wantKeys: []string{"os_preservation", "system_folder_filter"},
		},
		{
			name:     "non-bootable windows triggers filtering only",
			health:   &inspect.HealthReport{OverallHealth: "Good", HealthScore: 80},
			os:       &inspect.OSReport{OSType: "Windows", OSName: "Windows 7", BootCapable: false},
			metadata: &inspect.MetadataReport{},
			wantKeys: []string{"system_folder_filter"},
		},
		{
			name:     "degraded health triggers health action",
			health:   &inspect.HealthReport{OverallHealth: "Fair", HealthScore: 55},
			os:       &inspect.OSReport{OSType: "Linux"},
			metadata: &inspect.MetadataReport{},
			wantKeys: []string{"health_action"},
		},
		{
			name:     "everything at once",
			health:   &inspect.HealthReport{OverallHealth: "Poor", HealthScore: 30},
			os:       &inspect.OSReport{OSType: "Windows", OSName: "Windows XP", BootCapable: true},
			metadata: &inspect.MetadataReport{DuplicateGroupsFound: 12},
			wantKeys: []string{"duplicate_handling", "os_preservation", "system_folder_filter", "health_action"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ledger, _, _ := newTestService(t, inspect.DefaultOptions())
			session, _, err := svc.StartSession("/mnt/x", "")
			if err != nil {
				t.Fatalf("StartSession() error = %v", err)
			}
			markStageReport(t, ledger, session.ID, inspect.StageHealth, tt.health)
			markStageReport(t, ledger, session.ID, inspect.StageOS, tt.os)
			markStageReport(t, ledger, session.ID, inspect.StageMetadata, tt.metadata)

			pending, err := svc.PendingDecisions(session.ID)
			if err != nil {
				t.Fatalf("PendingDecisions() error = %v", err)
			}

			var keys []string
			for _, p := range pending {
				keys = append(keys, p.DecisionID)
			}
			if len(keys) != len(tt.wantKeys) {
				t.Fatalf("pending keys = %v, want %v", keys, tt.wantKeys)
			}
			for i, want := range tt.wantKeys {
				if keys[i] != want {
					t.Errorf("pending[%d] = %q, want %q", i, keys[i], want)
				}
			}
		})
	}
}

func TestService_DecisionDefaults(t *testing.T) {
	svc, ledger, _, _ := newTestService(t, inspect.DefaultOptions())
	session, _, err := svc.StartSession("/mnt/x", "")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	markStageReport(t, ledger, session.ID, inspect.StageHealth, &inspect.HealthReport{OverallHealth: "Poor", HealthScore: 30})
	markStageReport(t, ledger, session.ID, inspect.StageOS, &inspect.OSReport{OSType: "Windows", OSName: "Windows 10", BootCapable: true})
	markStageReport(t, ledger, session.ID, inspect.StageMetadata, &inspect.MetadataReport{DuplicateGroupsFound: 3})

	pending, err := svc.PendingDecisions(session.ID)
	if err != nil {
		t.Fatalf("PendingDecisions() error = %v", err)
	}

	defaults := map[string]string{}
	for _, p := range pending {
		defaults[p.DecisionID] = p.DefaultOption
	}

	want := map[string]string{
		"duplicate_handling":   "catalog_with_flag",
		"os_preservation":      "data_only",
		"system_folder_filter": "exclude_windows",
		"health_action":        "proceed_with_caution",
	}
	for key, def := range want {
		if defaults[key] != def {
			t.Errorf("default for %s = %q, want %q", key, defaults[key], def)
		}
	}
}

func TestService_ResolveDecision(t *testing.T) {
	svc, ledger, _, _ := newTestService(t, inspect.DefaultOptions())
	session, _, err := svc.StartSession("/mnt/x", "")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	markStageReport(t, ledger, session.ID, inspect.StageHealth, &inspect.HealthReport{OverallHealth: "Excellent", HealthScore: 95})
	markStageReport(t, ledger, session.ID, inspect.StageOS, &inspect.OSReport{OSType: "Unknown"})
	markStageReport(t, ledger, session.ID, inspect.StageMetadata, &inspect.MetadataReport{DuplicateGroupsFound: 2})

	t.Run("unknown key", func(t *testing.T) {
		err := svc.ResolveDecision(session.ID, "no_such_key", "whatever", "", model.ResolvedByUser)
		if err == nil {
			t.Error("ResolveDecision() expected error for unknown key")
		}
	})

	t.Run("invalid option", func(t *testing.T) {
		err := svc.ResolveDecision(session.ID, "duplicate_handling", "delete_everything", "", model.ResolvedByUser)
		if err == nil {
			t.Error("ResolveDecision() expected error for invalid option")
		}
	})

	t.Run("valid resolution clears the pending point", func(t *testing.T) {
		err := svc.ResolveDecision(session.ID, "duplicate_handling", "skip_all", "operator choice", model.ResolvedByUser)
		if err != nil {
			t.Fatalf("ResolveDecision() error = %v", err)
		}

		pending, err := svc.PendingDecisions(session.ID)
		if err != nil {
			t.Fatalf("PendingDecisions() error = %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("len(pending) = %d, want 0", len(pending))
		}

		decisions, err := ledger.FindDecisions(session.ID)
		if err != nil {
			t.Fatalf("FindDecisions() error = %v", err)
		}
		if len(decisions) != 1 {
			t.Fatalf("len(decisions) = %d, want 1", len(decisions))
		}
		if decisions[0].Value != "skip_all" || decisions[0].DecidedBy != model.ResolvedByUser {
			t.Errorf("decision = %+v, want skip_all by user", decisions[0])
		}
	})
}

func TestService_CrossScanOnlyDuplicateDecision(t *testing.T) {
	svc, ledger, _, _ := newTestService(t, inspect.DefaultOptions())
	session, _, err := svc.StartSession("/mnt/x", "")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	markStageReport(t, ledger, session.ID, inspect.StageHealth, &inspect.HealthReport{OverallHealth: "Excellent", HealthScore: 95})
	markStageReport(t, ledger, session.ID, inspect.StageOS, &inspect.OSReport{OSType: "Unknown"})
	markStageReport(t, ledger, session.ID, inspect.StageMetadata, &inspect.MetadataReport{
		DuplicateGroupsFound: 0,
		CrossScanDuplicates:  2,
	})

	pending, err := svc.PendingDecisions(session.ID)
	if err != nil {
		t.Fatalf("PendingDecisions() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}

	p := pending[0]
	if p.DecisionID != "duplicate_handling" {
		t.Errorf("DecisionID = %q, want duplicate_handling", p.DecisionID)
	}
	if p.DefaultOption != "catalog_with_flag" {
		t.Errorf("DefaultOption = %q, want catalog_with_flag", p.DefaultOption)
	}
	if got := p.Context["cross_scan_duplicates"]; got != int64(2) {
		t.Errorf("Context[cross_scan_duplicates] = %v, want 2", got)
	}
	if !strings.Contains(p.Description, "2 cross-scan") {
		t.Errorf("Description = %q, want cross-scan count", p.Description)
	}
}

func TestService_ReviewRecommendations(t *testing.T) {
	svc, ledger, _, _ := newTestService(t, inspect.DefaultOptions())
	session, drive, err := svc.StartSession("/mnt/x", "")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	markStageReport(t, ledger, session.ID, inspect.StageHealth, &inspect.HealthReport{OverallHealth: "Excellent", HealthScore: 95})
	markStageReport(t, ledger, session.ID, inspect.StageOS, &inspect.OSReport{
		OSType:       "Windows",
		OSName:       "Windows 10",
		BootCapable:  true,
		UserProfiles: []string{"alice", "bob", "carol", "dave"},
	})
	markStageReport(t, ledger, session.ID, inspect.StageMetadata, &inspect.MetadataReport{
		TotalFiles:     100,
		OldestFileDate: "2015-06-01T12:00:00Z",
	})

	if _, err := svc.RunStage(context.Background(), session, drive, "/mnt/x", inspect.StageReview); err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	report := reviewReport(t, svc, session.ID)

	wantFragments := []string{
		"Bootable Windows 10 detected",
		"Multiple user profiles (4)",
		"Files date back to 2015-06-01",
	}
	for _, want := range wantFragments {
		found := false
		for _, rec := range report.Recommendations {
			if strings.Contains(rec, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("Recommendations = %v, want one containing %q", report.Recommendations, want)
		}
	}
}

func TestService_Review_AutoResolve(t *testing.T) {
	opts := inspect.DefaultOptions()
	opts.AutoResolve = true

	svc, ledger, _, _ := newTestService(t, opts)
	session, drive, err := svc.StartSession("/mnt/x", "")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	markStageReport(t, ledger, session.ID, inspect.StageHealth, &inspect.HealthReport{OverallHealth: "Poor", HealthScore: 30})
	markStageReport(t, ledger, session.ID, inspect.StageOS, &inspect.OSReport{OSType: "Unknown"})
	markStageReport(t, ledger, session.ID, inspect.StageMetadata, &inspect.MetadataReport{DuplicateGroupsFound: 2})

	stage, err := svc.RunStage(context.Background(), session, drive, "/mnt/x", inspect.StageReview)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if stage.Status != model.StageCompleted {
		t.Fatalf("Status = %q, want completed", stage.Status)
	}

	report := reviewReport(t, svc, session.ID)
	if len(report.DecisionPoints) != 2 {
		t.Fatalf("len(DecisionPoints) = %d, want 2", len(report.DecisionPoints))
	}
	for _, p := range report.DecisionPoints {
		if !p.Resolved {
			t.Errorf("point %s not resolved", p.DecisionID)
		}
		if p.Resolution != p.DefaultOption {
			t.Errorf("point %s resolved to %q, want default %q", p.DecisionID, p.Resolution, p.DefaultOption)
		}
		if p.Notes != "Auto-resolved with default" {
			t.Errorf("point %s notes = %q, want auto-resolve marker", p.DecisionID, p.Notes)
		}
	}
	for _, d := range report.ResolvedDecisions {
		if d.DecidedBy != string(model.ResolvedByPolicy) {
			t.Errorf("decision %s decided by %q, want policy", d.Key, d.DecidedBy)
		}
	}
	if !strings.Contains(report.Summary, "Decisions pending: 0") {
		t.Errorf("Summary = %q, want zero pending decisions", report.Summary)
	}
}

func TestService_Review_ToleratesMissingReports(t *testing.T) {
	svc, ledger, _, _ := newTestService(t, inspect.DefaultOptions())
	session, drive, err := svc.StartSession("/mnt/x", "")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	// Health skipped, OS failed, metadata completed: review must still run.
	now := testutil.FixedClock().Now()
	if err := ledger.MarkStageFinished(session.ID, inspect.StageHealth, model.StageSkipped, "", "no data available", now); err != nil {
		t.Fatalf("MarkStageFinished() error = %v", err)
	}
	if err := ledger.MarkStageFinished(session.ID, inspect.StageOS, model.StageFailed, "", "probe crashed", now); err != nil {
		t.Fatalf("MarkStageFinished() error = %v", err)
	}
	markStageReport(t, ledger, session.ID, inspect.StageMetadata, &inspect.MetadataReport{TotalFiles: 5})

	stage, err := svc.RunStage(context.Background(), session, drive, "/mnt/x", inspect.StageReview)
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if stage.Status != model.StageCompleted {
		t.Fatalf("Status = %q, want completed", stage.Status)
	}

	report := reviewReport(t, svc, session.ID)
	if report.HealthSummary != nil {
		t.Errorf("HealthSummary = %v, want nil for skipped stage", report.HealthSummary)
	}
	if report.OSSummary != nil {
		t.Errorf("OSSummary = %v, want nil for failed stage", report.OSSummary)
	}
	if report.MetadataSummary == nil {
		t.Error("MetadataSummary = nil, want populated")
	}
	if !strings.Contains(report.Summary, "Health: unknown") {
		t.Errorf("Summary = %q, want unknown health", report.Summary)
	}

	found := false
	for _, rec := range report.Recommendations {
		if strings.Contains(rec, "untested hardware") {
			found = true
		}
	}
	if !found {
		t.Errorf("Recommendations = %v, want untested-hardware note", report.Recommendations)
	}
}
