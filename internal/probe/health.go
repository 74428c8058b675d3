package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"drivescope/internal/inspect"
	"drivescope/internal/model"
)

// BasicHealthChecker assesses a mounted drive without privileged device
// access: readability probes only, no SMART. The score starts from a healthy
// baseline and is reduced for every observed problem, which keeps old but
// working drives out of the alarm bands.
type BasicHealthChecker struct{}

func NewBasicHealthChecker() *BasicHealthChecker {
	return &BasicHealthChecker{}
}

func (c *BasicHealthChecker) Check(ctx context.Context, mountPoint string, drive *model.Drive) (*inspect.HealthReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &inspect.HealthReport{
		HealthScore:     90,
		SMARTAvailable:  false,
		Errors:          []string{},
		Warnings:        []string{},
		Recommendations: []string{},
	}
	report.Warnings = append(report.Warnings,
		"SMART data not available: assessment is based on filesystem readability only")

	info, err := os.Stat(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", mountPoint, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", mountPoint)
	}

	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		report.HealthScore -= 50
		report.Errors = append(report.Errors, fmt.Sprintf("root directory unreadable: %v", err))
	} else {
		// Sample the top-level entries; unreadable subtrees are an early
		// indicator of media trouble.
		unreadable := 0
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if _, err := os.ReadDir(filepath.Join(mountPoint, entry.Name())); err != nil {
				if os.IsPermission(err) {
					continue // access control, not media failure
				}
				unreadable++
			}
		}
		if unreadable > 0 {
			report.HealthScore -= 15 * unreadable
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d top-level directories could not be read", unreadable))
		}
	}

	if report.HealthScore < 0 {
		report.HealthScore = 0
	}
	report.OverallHealth = inspect.HealthBand(report.HealthScore)

	if report.HealthScore < 50 {
		report.Recommendations = append(report.Recommendations,
			"Read errors observed: image the drive before deeper inspection")
	}
	report.Summary = fmt.Sprintf("%s (score %d), %d warnings, %d errors",
		report.OverallHealth, report.HealthScore, len(report.Warnings), len(report.Errors))
	return report, nil
}

var _ inspect.HealthChecker = (*BasicHealthChecker)(nil)
