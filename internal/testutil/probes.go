package testutil

import (
	"context"
	"path/filepath"

	"drivescope/internal/inspect"
	"drivescope/internal/model"
)

// StubIdentifier returns a fixed drive identity regardless of mount point.
type StubIdentifier struct {
	Drive *model.Drive
	Err   error
}

// NewStubIdentifier creates a StubIdentifier with a plausible default drive.
func NewStubIdentifier() *StubIdentifier {
	return &StubIdentifier{
		Drive: &model.Drive{
			SerialNumber: "TEST-SERIAL-001",
			Model:        "TestDisk 500",
			SizeBytes:    500_000_000_000,
		},
	}
}

func (s *StubIdentifier) Identify(mountPoint string) (*model.Drive, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	d := *s.Drive
	if d.SerialNumber == "" {
		d.SerialNumber = "UNKNOWN_" + filepath.Base(mountPoint)
	}
	return &d, nil
}

// StubHealthChecker returns a canned health report. A nil Report with nil Err
// mimics a checker with nothing to say (stage skipped).
type StubHealthChecker struct {
	Report *inspect.HealthReport
	Err    error
}

// NewStubHealthChecker creates a StubHealthChecker reporting a healthy drive.
func NewStubHealthChecker() *StubHealthChecker {
	return &StubHealthChecker{
		Report: &inspect.HealthReport{
			OverallHealth:   "Excellent",
			HealthScore:     95,
			SMARTAvailable:  false,
			Errors:          []string{},
			Warnings:        []string{},
			Recommendations: []string{},
		},
	}
}

func (s *StubHealthChecker) Check(ctx context.Context, mountPoint string, drive *model.Drive) (*inspect.HealthReport, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Report == nil {
		return nil, nil
	}
	r := *s.Report
	return &r, nil
}

// StubOSDetector returns a canned OS report.
type StubOSDetector struct {
	Report *inspect.OSReport
	Err    error
}

// NewStubOSDetector creates a StubOSDetector reporting a data-only drive.
func NewStubOSDetector() *StubOSDetector {
	return &StubOSDetector{
		Report: &inspect.OSReport{
			OSType:     "Unknown",
			OSName:     "No operating system detected",
			Confidence: "none",
		},
	}
}

func (s *StubOSDetector) Detect(ctx context.Context, mountPoint string) (*inspect.OSReport, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Report == nil {
		return nil, nil
	}
	r := *s.Report
	return &r, nil
}
