package inspect

import (
	"strings"
	"testing"
)

func TestFinishMetadataReport_Recommendations(t *testing.T) {
	tests := []struct {
		name   string
		report MetadataReport
		want   []string
		absent []string
	}{
		{
			name:   "clean capture gets the no-issues note",
			report: MetadataReport{TotalFiles: 100},
			want:   []string{"no issues identified"},
		},
		{
			name: "small waste stays below the review threshold",
			report: MetadataReport{
				TotalFiles:           100,
				DuplicateGroupsFound: 5,
				TotalWastedBytes:     500 << 20,
			},
			absent: []string{"potentially recoverable"},
		},
		{
			name: "large waste recommends duplicate review",
			report: MetadataReport{
				TotalFiles:           100,
				DuplicateGroupsFound: 5,
				TotalWastedBytes:     2 << 30,
			},
			want:   []string{"potentially recoverable"},
			absent: []string{"no issues identified"},
		},
		{
			name: "many groups flag backup artifacts",
			report: MetadataReport{
				TotalFiles:           5000,
				DuplicateGroupsFound: 150,
			},
			want: []string{"High number of duplicate groups (150)"},
		},
		{
			name: "tmp and bak in top extensions",
			report: MetadataReport{
				TotalFiles: 100,
				ExtensionCounts: map[string]int64{
					".tmp": 50,
					".bak": 40,
					".txt": 5,
				},
			},
			want: []string{"temporary files", "backup files"},
		},
		{
			name: "tmp outside top five is ignored",
			report: MetadataReport{
				TotalFiles: 100,
				ExtensionCounts: map[string]int64{
					".txt": 50, ".jpg": 40, ".png": 30, ".doc": 20, ".pdf": 10,
					".tmp": 1,
				},
			},
			absent: []string{"temporary files"},
		},
		{
			name: "date span reported as calendar dates",
			report: MetadataReport{
				TotalFiles:     100,
				OldestFileDate: "2012-01-05T08:00:00Z",
				NewestFileDate: "2024-11-30T22:15:00Z",
			},
			want: []string{"Files span from 2012-01-05 to 2024-11-30"},
		},
		{
			name: "error rate above ten percent",
			report: MetadataReport{
				TotalFiles: 100,
				ErrorCount: 15,
			},
			want: []string{"High error rate (15 errors)"},
		},
		{
			name: "error rate below ten percent is quiet",
			report: MetadataReport{
				TotalFiles: 100,
				ErrorCount: 5,
			},
			absent: []string{"High error rate"},
		},
		{
			name: "cross-scan hits recommend review",
			report: MetadataReport{
				TotalFiles:          100,
				CrossScanDuplicates: 7,
			},
			want: []string{"Review 7 files that may be duplicated across drives"},
		},
	}

	svc := &Service{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := tt.report
			svc.finishMetadataReport(&report)

			for _, want := range tt.want {
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
			for _, absent := range tt.absent {
				for _, rec := range report.Recommendations {
					if strings.Contains(rec, absent) {
						t.Errorf("Recommendations = %v, want none containing %q", report.Recommendations, absent)
					}
				}
			}
			if report.Summary == "" {
				t.Error("Summary is empty")
			}
		})
	}
}

func TestTopExtensions(t *testing.T) {
	counts := map[string]int64{
		".a": 10, ".b": 9, ".c": 8, ".d": 7, ".e": 6, ".f": 5,
	}
	top := topExtensions(counts, 5)
	if len(top) != 5 {
		t.Fatalf("len(top) = %d, want 5", len(top))
	}
	if top[".f"] {
		t.Error("lowest-count extension should be cut")
	}
	if !top[".a"] || !top[".e"] {
		t.Errorf("top = %v, want .a through .e", top)
	}
}
