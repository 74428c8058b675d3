package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func mkTree(t *testing.T, root string, dirs []string, files map[string]string) {
	t.Helper()

	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func TestMarkerOSDetector_Windows(t *testing.T) {
	t.Run("bootable installation with profiles", func(t *testing.T) {
		root := t.TempDir()
		mkTree(t, root,
			[]string{"Windows/System32/config", "Users/Public", "Users/alice", "Users/bob"},
			map[string]string{
				"bootmgr":                "",
				"Users/alice/NTUSER.DAT": "",
				"Users/bob/NTUSER.DAT":   "",
			})

		report, err := NewMarkerOSDetector().Detect(context.Background(), root)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if report.OSType != "Windows" {
			t.Fatalf("OSType = %q, want Windows", report.OSType)
		}
		if !report.BootCapable {
			t.Error("BootCapable = false, want true")
		}
		if report.Confidence != "high" {
			t.Errorf("Confidence = %q, want high", report.Confidence)
		}
		want := []string{"alice", "bob"}
		if len(report.UserProfiles) != len(want) {
			t.Fatalf("UserProfiles = %v, want %v", report.UserProfiles, want)
		}
		for i := range want {
			if report.UserProfiles[i] != want[i] {
				t.Errorf("UserProfiles[%d] = %q, want %q", i, report.UserProfiles[i], want[i])
			}
		}
	})

	t.Run("system folders without boot records", func(t *testing.T) {
		root := t.TempDir()
		mkTree(t, root, []string{"Windows/System32"}, nil)

		report, err := NewMarkerOSDetector().Detect(context.Background(), root)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if report.OSType != "Windows" {
			t.Fatalf("OSType = %q, want Windows", report.OSType)
		}
		if report.BootCapable {
			t.Error("BootCapable = true, want false without boot records")
		}
	})
}

func TestMarkerOSDetector_Linux(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root,
		[]string{"boot/grub", "home/carol", "home/lost+found"},
		map[string]string{
			"etc/os-release":              "NAME=\"Debian GNU/Linux\"\nPRETTY_NAME=\"Debian GNU/Linux 12 (bookworm)\"\nVERSION_ID=\"12\"\n",
			"boot/vmlinuz-6.1.0-18-amd64": "",
		})

	report, err := NewMarkerOSDetector().Detect(context.Background(), root)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if report.OSType != "Linux" {
		t.Fatalf("OSType = %q, want Linux", report.OSType)
	}
	if report.OSName != "Debian GNU/Linux 12 (bookworm)" {
		t.Errorf("OSName = %q, want pretty name", report.OSName)
	}
	if report.Version != "12" {
		t.Errorf("Version = %q, want 12", report.Version)
	}
	if !report.BootCapable {
		t.Error("BootCapable = false, want true with kernel and grub")
	}
	if len(report.UserProfiles) != 1 || report.UserProfiles[0] != "carol" {
		t.Errorf("UserProfiles = %v, want [carol]", report.UserProfiles)
	}
}

func TestMarkerOSDetector_MacOS(t *testing.T) {
	const versionPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>ProductName</key>
	<string>Mac OS X</string>
	<key>ProductVersion</key>
	<string>10.13.6</string>
</dict>
</plist>`

	root := t.TempDir()
	mkTree(t, root,
		[]string{"System/Library/Kernels", "Users/dave", "Users/Shared"},
		map[string]string{
			"System/Library/CoreServices/SystemVersion.plist": versionPlist,
		})

	report, err := NewMarkerOSDetector().Detect(context.Background(), root)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if report.OSType != "macOS" {
		t.Fatalf("OSType = %q, want macOS", report.OSType)
	}
	if report.OSName != "Mac OS X" {
		t.Errorf("OSName = %q, want Mac OS X", report.OSName)
	}
	if report.Version != "10.13.6" {
		t.Errorf("Version = %q, want 10.13.6", report.Version)
	}
	if !report.BootCapable {
		t.Error("BootCapable = false, want true")
	}
	if len(report.UserProfiles) != 1 || report.UserProfiles[0] != "dave" {
		t.Errorf("UserProfiles = %v, want [dave]", report.UserProfiles)
	}
}

func TestMarkerOSDetector_DataOnly(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, []string{"photos", "documents"}, map[string]string{"photos/img.jpg": "x"})

	report, err := NewMarkerOSDetector().Detect(context.Background(), root)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if report.OSType != "Unknown" {
		t.Errorf("OSType = %q, want Unknown", report.OSType)
	}
	if report.Confidence != "none" {
		t.Errorf("Confidence = %q, want none", report.Confidence)
	}
}

func TestParseOSRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	content := "# comment\nNAME='Alpine Linux'\nVERSION_ID=3.19.1\n\nBROKEN\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fields := parseOSRelease(path)
	if fields["NAME"] != "Alpine Linux" {
		t.Errorf("NAME = %q, want Alpine Linux", fields["NAME"])
	}
	if fields["VERSION_ID"] != "3.19.1" {
		t.Errorf("VERSION_ID = %q, want 3.19.1", fields["VERSION_ID"])
	}
	if _, ok := fields["BROKEN"]; ok {
		t.Error("malformed line should be ignored")
	}
}
