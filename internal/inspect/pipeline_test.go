package inspect_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"drivescope/internal/inspect"
	"drivescope/internal/model"
)

func writeTestFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// testScanOptions hashes everything regardless of size, so small fixture
// files take part in duplicate detection.
func testScanOptions() inspect.Options {
	opts := inspect.DefaultOptions()
	opts.MinHashSize = 1
	opts.BatchSize = 2
	opts.HashWorkers = 2
	return opts
}

func runFullSession(t *testing.T, svc *inspect.Service, mount string) *model.Session {
	t.Helper()

	session, drive, err := svc.StartSession(mount, "")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	stages, err := svc.RunRemaining(context.Background(), session, drive, mount)
	if err != nil {
		t.Fatalf("RunRemaining() error = %v", err)
	}
	if len(stages) != 4 {
		t.Fatalf("ran %d stages, want 4", len(stages))
	}
	return session
}

func metadataReport(t *testing.T, svc *inspect.Service, sessionID string) *inspect.MetadataReport {
	t.Helper()

	raw, err := svc.StageReportJSON(sessionID, inspect.StageMetadata)
	if err != nil {
		t.Fatalf("StageReportJSON() error = %v", err)
	}
	report, err := inspect.DecodeMetadataReport(raw)
	if err != nil {
		t.Fatalf("DecodeMetadataReport() error = %v", err)
	}
	if report == nil {
		t.Fatal("metadata stage has no report")
	}
	return report
}

func TestService_MetadataCapture_Duplicates(t *testing.T) {
	mount := t.TempDir()
	content := []byte("the same forty-two bytes in both copies!!\n")
	writeTestFile(t, mount, "docs/report.pdf", content)
	writeTestFile(t, mount, "backup/report.pdf", content)
	writeTestFile(t, mount, "docs/unique.txt", []byte("only one of these exists\n"))

	svc, _, _, _ := newTestService(t, testScanOptions())
	session := runFullSession(t, svc, mount)
	report := metadataReport(t, svc, session.ID)

	if report.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", report.TotalFiles)
	}
	if report.TotalFolders != 2 {
		t.Errorf("TotalFolders = %d, want 2", report.TotalFolders)
	}
	if report.FilesHashed != 3 {
		t.Errorf("FilesHashed = %d, want 3", report.FilesHashed)
	}
	if report.DuplicateGroupsFound != 1 {
		t.Fatalf("DuplicateGroupsFound = %d, want 1", report.DuplicateGroupsFound)
	}
	if report.TotalDuplicateFiles != 2 {
		t.Errorf("TotalDuplicateFiles = %d, want 2", report.TotalDuplicateFiles)
	}
	if want := int64(len(content)); report.TotalWastedBytes != want {
		t.Errorf("TotalWastedBytes = %d, want %d", report.TotalWastedBytes, want)
	}
	if len(report.DuplicateGroups) != 1 {
		t.Fatalf("len(DuplicateGroups) = %d, want 1", len(report.DuplicateGroups))
	}
	if got := report.DuplicateGroups[0].MemberCount; got != 2 {
		t.Errorf("sample MemberCount = %d, want 2", got)
	}
	if report.ExtensionCounts[".pdf"] != 2 {
		t.Errorf("ExtensionCounts[.pdf] = %d, want 2", report.ExtensionCounts[".pdf"])
	}
	if report.SizeDistribution["tiny"] != 3 {
		t.Errorf("SizeDistribution[tiny] = %d, want 3", report.SizeDistribution["tiny"])
	}
}

func TestService_MetadataCapture_NoHash(t *testing.T) {
	mount := t.TempDir()
	content := []byte("identical content, never fingerprinted\n")
	writeTestFile(t, mount, "a.bin", content)
	writeTestFile(t, mount, "b.bin", content)

	opts := testScanOptions()
	opts.NoHash = true

	svc, _, _, _ := newTestService(t, opts)
	session := runFullSession(t, svc, mount)
	report := metadataReport(t, svc, session.ID)

	if report.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", report.TotalFiles)
	}
	if report.FilesHashed != 0 {
		t.Errorf("FilesHashed = %d, want 0", report.FilesHashed)
	}
	if report.DuplicateGroupsFound != 0 {
		t.Errorf("DuplicateGroupsFound = %d, want 0", report.DuplicateGroupsFound)
	}
}

func TestService_MetadataCapture_SizeFloor(t *testing.T) {
	mount := t.TempDir()
	writeTestFile(t, mount, "big.dat", make([]byte, 2048))
	writeTestFile(t, mount, "small.dat", []byte("tiny"))

	opts := testScanOptions()
	opts.MinHashSize = 1024

	svc, _, _, _ := newTestService(t, opts)
	session := runFullSession(t, svc, mount)
	report := metadataReport(t, svc, session.ID)

	if report.FilesHashed != 1 {
		t.Errorf("FilesHashed = %d, want 1", report.FilesHashed)
	}
	if report.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", report.FilesSkipped)
	}
}

func TestService_MetadataCapture_SkipsNoiseDirs(t *testing.T) {
	mount := t.TempDir()
	writeTestFile(t, mount, "keep/data.txt", []byte("kept"))
	writeTestFile(t, mount, "$RECYCLE.BIN/deleted.txt", []byte("noise"))
	writeTestFile(t, mount, "System Volume Information/tracking.log", []byte("noise"))

	svc, _, _, _ := newTestService(t, testScanOptions())
	session := runFullSession(t, svc, mount)
	report := metadataReport(t, svc, session.ID)

	if report.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1 after pruning noise dirs", report.TotalFiles)
	}
}

func TestService_MetadataCapture_VerifyStrong(t *testing.T) {
	// Two files sharing size and boundary bytes but differing in the middle:
	// the quick digest cannot tell them apart, the strong one can.
	size := 3 * 4096
	a := make([]byte, size)
	b := make([]byte, size)
	b[size/2] = 0xFF

	mount := t.TempDir()
	writeTestFile(t, mount, "a.img", a)
	writeTestFile(t, mount, "b.img", b)

	t.Run("quick-only grouping pairs them", func(t *testing.T) {
		svc, _, _, _ := newTestService(t, testScanOptions())
		session := runFullSession(t, svc, mount)
		report := metadataReport(t, svc, session.ID)
		if report.DuplicateGroupsFound != 1 {
			t.Errorf("DuplicateGroupsFound = %d, want 1 without verification", report.DuplicateGroupsFound)
		}
	})

	t.Run("strong verification splits the collision", func(t *testing.T) {
		opts := testScanOptions()
		opts.VerifyStrong = true

		svc, _, _, _ := newTestService(t, opts)
		session := runFullSession(t, svc, mount)
		report := metadataReport(t, svc, session.ID)
		if report.DuplicateGroupsFound != 0 {
			t.Errorf("DuplicateGroupsFound = %d, want 0 with verification", report.DuplicateGroupsFound)
		}
	})
}

func TestService_CrossScanDetection(t *testing.T) {
	contentA := []byte("archived on the first drive some time ago\n")

	firstMount := t.TempDir()
	writeTestFile(t, firstMount, "old/photos.zip", contentA)

	secondMount := t.TempDir()
	writeTestFile(t, secondMount, "new/photos.zip", contentA)
	writeTestFile(t, secondMount, "new/brand_new.txt", []byte("nothing like this before\n"))

	svc, _, _, _ := newTestService(t, testScanOptions())

	// Two sessions against one shared ledger; the second scan sees the first
	// scan's catalog.
	runFullSession(t, svc, firstMount)

	second := runFullSession(t, svc, secondMount)
	report := metadataReport(t, svc, second.ID)

	if report.CrossScanDuplicates != 1 {
		t.Fatalf("CrossScanDuplicates = %d, want 1", report.CrossScanDuplicates)
	}
	if len(report.CrossScanSamples) != 1 {
		t.Fatalf("len(CrossScanSamples) = %d, want 1", len(report.CrossScanSamples))
	}
	sample := report.CrossScanSamples[0]
	if sample.NewFile != "new/photos.zip" {
		t.Errorf("NewFile = %q, want new/photos.zip", sample.NewFile)
	}
	if sample.ExistingFile != "old/photos.zip" {
		t.Errorf("ExistingFile = %q, want old/photos.zip", sample.ExistingFile)
	}
}
