package inspect

import (
	"encoding/json"
	"fmt"
)

// Stage ordinals and names. The order is fixed: health, OS identification,
// metadata capture, review.
const (
	StageHealth   = 1
	StageOS       = 2
	StageMetadata = 3
	StageReview   = 4
)

// StageName returns the persisted name for a stage ordinal.
func StageName(ordinal int) string {
	switch ordinal {
	case StageHealth:
		return "health"
	case StageOS:
		return "os_identify"
	case StageMetadata:
		return "metadata_capture"
	case StageReview:
		return "review"
	}
	return ""
}

// HealthReport is the stage 1 report, produced by a HealthChecker.
type HealthReport struct {
	OverallHealth   string   `json:"overall_health"`
	HealthScore     int      `json:"health_score"` // 0-100
	SMARTAvailable  bool     `json:"smart_available"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary,omitempty"`
}

// HealthBand maps a 0-100 score onto the descriptive health bands.
func HealthBand(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 75:
		return "Good"
	case score >= 50:
		return "Fair"
	case score >= 25:
		return "Poor"
	default:
		return "Critical"
	}
}

// OSReport is the stage 2 report, produced by an OSDetector.
type OSReport struct {
	OSType          string   `json:"os_type"` // "Windows", "Linux", "macOS", "Unknown"
	OSName          string   `json:"os_name"`
	Version         string   `json:"version,omitempty"`
	BootCapable     bool     `json:"boot_capable"`
	Confidence      string   `json:"confidence"` // "high", "medium", "low", "none"
	DetectionMethod string   `json:"detection_method,omitempty"`
	UserProfiles    []string `json:"user_profiles,omitempty"`
}

// GroupSample is one duplicate group embedded in a MetadataReport. The full
// member set stays in the ledger; the report carries a capped sample.
type GroupSample struct {
	GroupID     string   `json:"group_id"`
	HashValue   string   `json:"hash_value"`
	SizeBytes   int64    `json:"size_bytes"`
	MemberCount int      `json:"member_count"`
	WastedBytes int64    `json:"wasted_bytes"`
	Paths       []string `json:"paths"`
}

// CrossScanSample is one cross-scan candidate embedded in a MetadataReport.
type CrossScanSample struct {
	NewFile       string `json:"new_file"`
	ExistingFile  string `json:"existing_file"`
	ExistingDrive string `json:"existing_drive"`
	SizeBytes     int64  `json:"size_bytes"`
}

// MetadataReport is the stage 3 report, produced by the capture pipeline.
type MetadataReport struct {
	MountPoint     string `json:"mount_point"`
	ScanID         string `json:"scan_id,omitempty"`
	InspectionTime string `json:"inspection_time"`

	TotalFiles     int64 `json:"total_files"`
	TotalFolders   int64 `json:"total_folders"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
	FilesHashed    int64 `json:"files_hashed"`
	FilesSkipped   int64 `json:"files_skipped"`
	ErrorCount     int64 `json:"errors_count"`

	ExtensionCounts  map[string]int64 `json:"extension_counts"`
	ExtensionSizes   map[string]int64 `json:"extension_sizes"`
	SizeDistribution map[string]int64 `json:"size_distribution"`

	OldestFileDate  string `json:"oldest_file_date,omitempty"`
	NewestFileDate  string `json:"newest_file_date,omitempty"`
	LargestFilePath string `json:"largest_file_path,omitempty"`
	LargestFileSize int64  `json:"largest_file_size"`

	DuplicateGroupsFound int64             `json:"duplicate_groups_found"`
	TotalDuplicateFiles  int64             `json:"total_duplicate_files"`
	TotalWastedBytes     int64             `json:"total_wasted_bytes"`
	CrossScanDuplicates  int64             `json:"cross_scan_duplicates"`
	DuplicateGroups      []GroupSample     `json:"duplicate_groups,omitempty"`
	CrossScanSamples     []CrossScanSample `json:"cross_scan_samples,omitempty"`

	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary,omitempty"`
}

// Option is one selectable answer of a decision point.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// DecisionPoint is a structured choice derived from stage results, presented
// for resolution by a user or an automated policy.
type DecisionPoint struct {
	DecisionID    string         `json:"decision_id"`
	Category      string         `json:"category"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Options       []Option       `json:"options"`
	DefaultOption string         `json:"default_option"`
	Context       map[string]any `json:"context,omitempty"`
	Resolved      bool           `json:"resolved"`
	Resolution    string         `json:"resolution,omitempty"`
	Notes         string         `json:"resolution_notes,omitempty"`
}

// ResolvedDecision is a previously recorded resolution echoed in the review
// report.
type ResolvedDecision struct {
	Kind      string `json:"decision_type"`
	Key       string `json:"decision_key"`
	Value     string `json:"decision_value"`
	Notes     string `json:"notes,omitempty"`
	DecidedAt string `json:"decided_at"`
	DecidedBy string `json:"decided_by"`
}

// ReviewReport is the stage 4 report: compiled summaries of stages 1-3 plus
// the derived decision points.
type ReviewReport struct {
	SessionID      string `json:"session_id"`
	DriveModel     string `json:"drive_model"`
	DriveSerial    string `json:"drive_serial"`
	InspectionTime string `json:"inspection_time"`

	HealthSummary   map[string]any `json:"health_summary"`
	OSSummary       map[string]any `json:"os_summary"`
	MetadataSummary map[string]any `json:"metadata_summary"`

	DecisionPoints    []DecisionPoint    `json:"decision_points"`
	ResolvedDecisions []ResolvedDecision `json:"resolved_decisions"`

	Recommendations []string `json:"recommendations"`
	Warnings        []string `json:"warnings"`
	Errors          []string `json:"errors"`
	Summary         string   `json:"summary,omitempty"`
}

// EncodeReport serializes a stage report for ledger storage.
func EncodeReport(report any) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	return string(data), nil
}

// DecodeHealthReport parses a stored stage 1 report. Returns nil for an
// empty payload: downstream consumers must treat a failed predecessor's
// report as potentially absent.
func DecodeHealthReport(raw string) (*HealthReport, error) {
	if raw == "" {
		return nil, nil
	}
	var r HealthReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decoding health report: %w", err)
	}
	return &r, nil
}

// DecodeOSReport parses a stored stage 2 report, nil for an empty payload.
func DecodeOSReport(raw string) (*OSReport, error) {
	if raw == "" {
		return nil, nil
	}
	var r OSReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decoding os report: %w", err)
	}
	return &r, nil
}

// DecodeMetadataReport parses a stored stage 3 report, nil for an empty payload.
func DecodeMetadataReport(raw string) (*MetadataReport, error) {
	if raw == "" {
		return nil, nil
	}
	var r MetadataReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decoding metadata report: %w", err)
	}
	return &r, nil
}

// DecodeReviewReport parses a stored stage 4 report, nil for an empty payload.
func DecodeReviewReport(raw string) (*ReviewReport, error) {
	if raw == "" {
		return nil, nil
	}
	var r ReviewReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decoding review report: %w", err)
	}
	return &r, nil
}
