package inspect

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"drivescope/internal/fingerprint"
	"drivescope/internal/fs"
	"drivescope/internal/model"
)

// Size-distribution bucket boundaries.
const (
	bucketTiny   = 1 << 10   // 1 KiB
	bucketSmall  = 1 << 20   // 1 MiB
	bucketMedium = 100 << 20 // 100 MiB
	bucketLarge  = 1 << 30   // 1 GiB
)

func sizeBucket(size int64) string {
	switch {
	case size < bucketTiny:
		return "tiny"
	case size < bucketSmall:
		return "small"
	case size < bucketMedium:
		return "medium"
	case size < bucketLarge:
		return "large"
	default:
		return "huge"
	}
}

// systemRoots are top-level directories whose contents are flagged as system
// files in the catalog.
var systemRoots = map[string]bool{
	"windows":             true,
	"program files":       true,
	"program files (x86)": true,
	"programdata":         true,
	"system":              true,
	"library":             true,
	"usr":                 true,
	"etc":                 true,
	"boot":                true,
}

func isSystemPath(relPath string) bool {
	first, _, _ := strings.Cut(relPath, "/")
	return systemRoots[strings.ToLower(first)]
}

// maxReportErrors caps the error strings embedded in a metadata report. The
// full count is always reported; the list is a sample.
const maxReportErrors = 20

// captureMetadata runs the stage 3 pipeline: enumerate the tree into the
// ledger in batches, aggregate statistics, fingerprint eligible files with a
// bounded worker pool, then group duplicates.
//
// There is no intra-stage checkpointing. On cancellation the open batch is
// flushed and the cancellation is returned; a resumed run redoes the whole
// stage under a fresh scan.
func (s *Service) captureMetadata(ctx context.Context, session *model.Session, drive *model.Drive, mountPoint string) (*MetadataReport, error) {
	started := s.clock.Now()
	scan := &model.Scan{
		ID:         s.idgen.New(),
		DriveID:    drive.ID,
		SessionID:  session.ID,
		MountPoint: mountPoint,
		StartedAt:  started,
	}
	if err := s.ledger.CreateScan(scan); err != nil {
		return nil, fmt.Errorf("creating scan: %w", err)
	}

	report := &MetadataReport{
		MountPoint:       mountPoint,
		ScanID:           scan.ID,
		InspectionTime:   started.UTC().Format(time.RFC3339),
		ExtensionCounts:  map[string]int64{},
		ExtensionSizes:   map[string]int64{},
		SizeDistribution: map[string]int64{},
		Errors:           []string{},
		Warnings:         []string{},
		Recommendations:  []string{},
	}

	if err := s.enumerateFiles(ctx, scan, report); err != nil {
		return nil, err
	}

	if err := s.ledger.MarkScanFinished(scan.ID, report.TotalFiles, report.TotalSizeBytes, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("finishing scan: %w", err)
	}

	if !s.opts.NoHash {
		if err := s.fingerprintFiles(ctx, scan, mountPoint, report); err != nil {
			return nil, err
		}
		if err := s.groupDuplicates(ctx, scan.ID, mountPoint, report); err != nil {
			return nil, err
		}
	}

	if err := s.crossScanMatches(scan.ID, report); err != nil {
		return nil, err
	}

	s.finishMetadataReport(report)
	s.logger.Info("metadata capture finished",
		"session_id", session.ID,
		"scan_id", scan.ID,
		"files", report.TotalFiles,
		"hashed", report.FilesHashed,
		"duplicate_groups", report.DuplicateGroupsFound)
	return report, nil
}

// enumerateFiles walks the tree, writing file rows in batches and folding
// per-file statistics into the report as it goes.
func (s *Service) enumerateFiles(ctx context.Context, scan *model.Scan, report *MetadataReport) error {
	walker := fs.NewWalker(scan.MountPoint, fs.NewSkipMatcher(s.opts.SkipDirs))

	var oldest, newest time.Time
	batch := make([]*model.FileRecord, 0, s.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.ledger.InsertFiles(batch); err != nil {
			return fmt.Errorf("inserting file batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	walkErr := walker.Walk(ctx, func(meta *fs.FileMeta) error {
		record := &model.FileRecord{
			ID:         s.idgen.New(),
			ScanID:     scan.ID,
			Path:       meta.RelPath,
			Name:       meta.Name,
			SizeBytes:  meta.SizeBytes,
			ModifiedAt: meta.ModifiedAt,
			CreatedAt:  meta.CreatedAt,
			AccessedAt: meta.AccessedAt,
			Extension:  meta.Extension,
			IsHidden:   meta.Hidden,
			IsSystem:   isSystemPath(meta.RelPath),
		}
		batch = append(batch, record)

		report.TotalFiles++
		report.TotalSizeBytes += meta.SizeBytes
		ext := meta.Extension
		if ext == "" {
			ext = "(none)"
		}
		report.ExtensionCounts[ext]++
		report.ExtensionSizes[ext] += meta.SizeBytes
		report.SizeDistribution[sizeBucket(meta.SizeBytes)]++

		if oldest.IsZero() || meta.ModifiedAt.Before(oldest) {
			oldest = meta.ModifiedAt
		}
		if meta.ModifiedAt.After(newest) {
			newest = meta.ModifiedAt
		}
		if meta.SizeBytes > report.LargestFileSize {
			report.LargestFileSize = meta.SizeBytes
			report.LargestFilePath = meta.RelPath
		}

		if len(batch) >= s.opts.BatchSize {
			return flush()
		}
		return nil
	})

	// Whatever happened, rows already gathered are worth keeping.
	if err := flush(); err != nil {
		return err
	}
	if walkErr != nil {
		return walkErr
	}

	report.TotalFolders = walker.Dirs()
	report.ErrorCount += walker.ErrorCount()
	if n := walker.ErrorCount(); n > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d entries could not be read", n))
	}
	if !oldest.IsZero() {
		report.OldestFileDate = oldest.UTC().Format(time.RFC3339)
		report.NewestFileDate = newest.UTC().Format(time.RFC3339)
	}
	return nil
}

type hashResult struct {
	file  *FileToHash
	value string
	err   error
}

// fingerprintFiles computes quick fingerprints for all files at or above the
// size floor, using a bounded worker pool. Results are written in batches by
// this goroutine; workers never touch the ledger.
func (s *Service) fingerprintFiles(ctx context.Context, scan *model.Scan, mountPoint string, report *MetadataReport) error {
	files, err := s.ledger.FilesToHash(scan.ID, s.opts.MinHashSize)
	if err != nil {
		return err
	}
	report.FilesSkipped = report.TotalFiles - int64(len(files))
	if len(files) == 0 {
		return nil
	}

	workers := s.opts.HashWorkers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan *FileToHash)
	results := make(chan hashResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				value, err := fingerprint.Quick(filepath.Join(mountPoint, filepath.FromSlash(f.Path)))
				results <- hashResult{file: f, value: value, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	batch := make([]*model.Fingerprint, 0, s.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.ledger.InsertFingerprints(batch); err != nil {
			return fmt.Errorf("inserting fingerprint batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for res := range results {
		switch {
		case res.err == nil:
			batch = append(batch, &model.Fingerprint{
				ID:         s.idgen.New(),
				ScanID:     scan.ID,
				FileID:     res.file.FileID,
				Kind:       model.FingerprintQuick,
				Value:      res.value,
				ComputedAt: s.clock.Now(),
			})
			report.FilesHashed++
			if len(batch) >= s.opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case fingerprint.Expected(res.err):
			// Vanished or unreadable since enumeration.
			report.FilesSkipped++
		default:
			report.ErrorCount++
			if len(report.Errors) < maxReportErrors {
				report.Errors = append(report.Errors, fmt.Sprintf("hashing %s: %v", res.file.Path, res.err))
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// finishMetadataReport derives the recommendations and summary line from the
// gathered numbers.
func (s *Service) finishMetadataReport(report *MetadataReport) {
	var recs []string

	if report.TotalWastedBytes > 1<<30 {
		recs = append(recs, fmt.Sprintf("Consider reviewing duplicates: %s potentially recoverable",
			formatBytes(report.TotalWastedBytes)))
	}
	if report.DuplicateGroupsFound > 100 {
		recs = append(recs, fmt.Sprintf("High number of duplicate groups (%d): may indicate backup copies or version control artifacts",
			report.DuplicateGroupsFound))
	}

	top := topExtensions(report.ExtensionCounts, 5)
	if top[".tmp"] {
		recs = append(recs, "Many temporary files detected: consider cleanup")
	}
	if top[".bak"] {
		recs = append(recs, "Many backup files detected: review if still needed")
	}

	if report.OldestFileDate != "" && report.NewestFileDate != "" {
		recs = append(recs, fmt.Sprintf("Files span from %s to %s",
			dateOnly(report.OldestFileDate), dateOnly(report.NewestFileDate)))
	}

	if report.TotalFiles > 0 && report.ErrorCount*10 > report.TotalFiles {
		recs = append(recs, fmt.Sprintf("High error rate (%d errors): check drive health or permissions",
			report.ErrorCount))
	}

	if report.CrossScanDuplicates > 0 {
		recs = append(recs, fmt.Sprintf("Review %d files that may be duplicated across drives",
			report.CrossScanDuplicates))
	}

	if len(recs) == 0 {
		recs = append(recs, "Metadata capture complete: no issues identified")
	}
	report.Recommendations = append(report.Recommendations, recs...)

	report.Summary = fmt.Sprintf("Cataloged %d files (%s) in %d folders | Hashed: %d | Duplicate groups: %d (%s wasted) | Errors: %d",
		report.TotalFiles, formatBytes(report.TotalSizeBytes), report.TotalFolders,
		report.FilesHashed, report.DuplicateGroupsFound, formatBytes(report.TotalWastedBytes),
		report.ErrorCount)
}

// topExtensions returns the n most frequent extensions as a membership set.
func topExtensions(counts map[string]int64, n int) map[string]bool {
	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if counts[exts[i]] != counts[exts[j]] {
			return counts[exts[i]] > counts[exts[j]]
		}
		return exts[i] < exts[j]
	})
	if len(exts) > n {
		exts = exts[:n]
	}
	top := make(map[string]bool, len(exts))
	for _, ext := range exts {
		top[ext] = true
	}
	return top
}

// dateOnly trims a stored timestamp down to its calendar date.
func dateOnly(ts string) string {
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}

// formatBytes renders a byte count in the largest sensible binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
