package inspect

import (
	"context"
	"fmt"
	"path/filepath"

	"drivescope/internal/fingerprint"
	"drivescope/internal/model"
)

// Report embedding caps. The ledger holds the full result; the report carries
// a sample.
const (
	maxGroupSamples     = 50
	maxCrossScanSamples = 20
)

// groupDuplicates clusters the scan's quick fingerprints into duplicate
// groups, persists them and folds the totals plus a capped sample into the
// report. The first member of each group, the earliest observed, is the
// primary.
func (s *Service) groupDuplicates(ctx context.Context, scanID string, mountPoint string, report *MetadataReport) error {
	candidates, err := s.ledger.GroupCandidates(scanID, s.opts.MaxGroups)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		groups := [][]int{indexRange(len(candidate.FileIDs))}
		if s.opts.VerifyStrong {
			groups, err = s.confirmGroup(scanID, mountPoint, candidate, report)
			if err != nil {
				return err
			}
		}

		for _, members := range groups {
			if len(members) < 2 {
				continue
			}
			if err := s.persistGroup(scanID, candidate, members, report); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexRange(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// confirmGroup re-partitions a quick-fingerprint candidate by full-content
// digest, so boundary-digest collisions never become groups. Unreadable
// members are dropped from the partition and counted.
func (s *Service) confirmGroup(scanID string, mountPoint string, candidate *GroupCandidate, report *MetadataReport) ([][]int, error) {
	byStrong := map[string][]int{}
	var strongRows []*model.Fingerprint

	for i, path := range candidate.Paths {
		value, err := fingerprint.Strong(filepath.Join(mountPoint, filepath.FromSlash(path)))
		if err != nil {
			if fingerprint.Expected(err) {
				report.FilesSkipped++
				continue
			}
			report.ErrorCount++
			if len(report.Errors) < maxReportErrors {
				report.Errors = append(report.Errors, fmt.Sprintf("verifying %s: %v", path, err))
			}
			continue
		}
		byStrong[value] = append(byStrong[value], i)
		strongRows = append(strongRows, &model.Fingerprint{
			ID:         s.idgen.New(),
			ScanID:     scanID,
			FileID:     candidate.FileIDs[i],
			Kind:       model.FingerprintStrong,
			Value:      value,
			ComputedAt: s.clock.Now(),
		})
	}

	if err := s.ledger.InsertFingerprints(strongRows); err != nil {
		return nil, err
	}

	groups := make([][]int, 0, len(byStrong))
	for _, members := range byStrong {
		groups = append(groups, members)
	}
	return groups, nil
}

// persistGroup writes one duplicate group and its members, then folds it into
// the report totals and, below the cap, the report sample.
func (s *Service) persistGroup(scanID string, candidate *GroupCandidate, memberIdx []int, report *MetadataReport) error {
	wasted := candidate.SizeBytes * int64(len(memberIdx)-1)
	group := &model.DuplicateGroup{
		ID:          s.idgen.New(),
		HashValue:   candidate.HashValue,
		SizeBytes:   candidate.SizeBytes,
		FileCount:   len(memberIdx),
		WastedBytes: wasted,
		CreatedAt:   s.clock.Now(),
		Status:      model.GroupUnresolved,
	}

	members := make([]*model.DuplicateMember, 0, len(memberIdx))
	paths := make([]string, 0, len(memberIdx))
	for n, i := range memberIdx {
		members = append(members, &model.DuplicateMember{
			ID:        s.idgen.New(),
			GroupID:   group.ID,
			FileID:    candidate.FileIDs[i],
			ScanID:    scanID,
			IsPrimary: n == 0,
		})
		paths = append(paths, candidate.Paths[i])
	}

	if err := s.ledger.CreateDuplicateGroup(group, members); err != nil {
		return err
	}

	report.DuplicateGroupsFound++
	report.TotalDuplicateFiles += int64(len(memberIdx))
	report.TotalWastedBytes += wasted
	if len(report.DuplicateGroups) < maxGroupSamples {
		report.DuplicateGroups = append(report.DuplicateGroups, GroupSample{
			GroupID:     group.ID,
			HashValue:   candidate.HashValue,
			SizeBytes:   candidate.SizeBytes,
			MemberCount: len(memberIdx),
			WastedBytes: wasted,
			Paths:       paths,
		})
	}
	return nil
}

// crossScanMatches finds files of this scan that earlier scans already
// cataloged, matching on size and basename. Matches are heuristic leads for
// the review stage, never merged into duplicate groups.
func (s *Service) crossScanMatches(scanID string, report *MetadataReport) error {
	candidates, err := s.ledger.CrossScanCandidates(scanID, s.opts.MinHashSize, s.opts.MaxCrossScan)
	if err != nil {
		return err
	}

	report.CrossScanDuplicates = int64(len(candidates))
	for _, c := range candidates {
		if len(report.CrossScanSamples) >= maxCrossScanSamples {
			break
		}
		report.CrossScanSamples = append(report.CrossScanSamples, CrossScanSample{
			NewFile:       c.Path,
			ExistingFile:  c.ExistingPath,
			ExistingDrive: c.ExistingDrive,
			SizeBytes:     c.SizeBytes,
		})
	}
	return nil
}
