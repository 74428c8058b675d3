package probe

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"howett.net/plist"

	"drivescope/internal/inspect"
)

// MarkerOSDetector identifies the operating system installed on a mounted
// tree by looking for well-known filesystem markers. Detection never fails a
// stage: an unidentifiable drive is reported with confidence "none".
type MarkerOSDetector struct{}

func NewMarkerOSDetector() *MarkerOSDetector {
	return &MarkerOSDetector{}
}

func (d *MarkerOSDetector) Detect(ctx context.Context, mountPoint string) (*inspect.OSReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if report := detectWindows(mountPoint); report != nil {
		return report, nil
	}
	if report := detectLinux(mountPoint); report != nil {
		return report, nil
	}
	if report := detectMacOS(mountPoint); report != nil {
		return report, nil
	}

	return &inspect.OSReport{
		OSType:     "Unknown",
		OSName:     "No operating system detected",
		Confidence: "none",
	}, nil
}

// firstExisting returns the first of the candidate relative paths that exists
// under root, or "".
func firstExisting(root string, candidates ...string) string {
	for _, rel := range candidates {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err == nil {
			return rel
		}
	}
	return ""
}

func detectWindows(root string) *inspect.OSReport {
	system32 := firstExisting(root,
		"Windows/System32",
		"WINDOWS/system32",
		"windows/system32",
	)
	if system32 == "" {
		return nil
	}

	report := &inspect.OSReport{
		OSType:          "Windows",
		OSName:          "Microsoft Windows",
		Confidence:      "high",
		DetectionMethod: "found " + system32,
	}

	// A registry hive plus boot records means the installation could still
	// boot; its presence drives the preservation decision later.
	hasConfig := firstExisting(root, system32+"/config") != ""
	hasBoot := firstExisting(root, "bootmgr", "Boot/BCD", "boot/bcd", "ntldr") != ""
	report.BootCapable = hasConfig && hasBoot

	if v := firstExisting(root, "Users"); v != "" {
		report.OSName = "Microsoft Windows (Vista or later)"
		report.UserProfiles = windowsUserProfiles(filepath.Join(root, "Users"))
	} else if firstExisting(root, "Documents and Settings") != "" {
		report.OSName = "Microsoft Windows (XP era)"
		report.UserProfiles = windowsUserProfiles(filepath.Join(root, "Documents and Settings"))
	}
	return report
}

// windowsUserProfiles lists profile directories that carry a registry hive,
// skipping the built-in accounts.
func windowsUserProfiles(usersDir string) []string {
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		return nil
	}

	builtin := map[string]bool{
		"public":       true,
		"default":      true,
		"all users":    true,
		"default user": true,
	}

	var profiles []string
	for _, entry := range entries {
		if !entry.IsDir() || builtin[strings.ToLower(entry.Name())] {
			continue
		}
		if firstExisting(filepath.Join(usersDir, entry.Name()), "NTUSER.DAT", "ntuser.dat") != "" {
			profiles = append(profiles, entry.Name())
		}
	}
	sort.Strings(profiles)
	return profiles
}

func detectLinux(root string) *inspect.OSReport {
	osRelease := firstExisting(root, "etc/os-release", "usr/lib/os-release")
	if osRelease == "" {
		return nil
	}

	report := &inspect.OSReport{
		OSType:          "Linux",
		OSName:          "Linux",
		Confidence:      "high",
		DetectionMethod: "found " + osRelease,
	}

	fields := parseOSRelease(filepath.Join(root, filepath.FromSlash(osRelease)))
	if name := fields["PRETTY_NAME"]; name != "" {
		report.OSName = name
	} else if name := fields["NAME"]; name != "" {
		report.OSName = name
	}
	report.Version = fields["VERSION_ID"]

	hasKernel := false
	if matches, _ := filepath.Glob(filepath.Join(root, "boot", "vmlinuz*")); len(matches) > 0 {
		hasKernel = true
	}
	hasLoader := firstExisting(root, "boot/grub", "boot/grub2", "boot/loader") != ""
	report.BootCapable = hasKernel && hasLoader

	report.UserProfiles = profileDirs(filepath.Join(root, "home"), map[string]bool{"lost+found": true})
	return report
}

// parseOSRelease reads the KEY=value pairs of an os-release file, stripping
// quotes. Unreadable files yield an empty map.
func parseOSRelease(path string) map[string]string {
	fields := map[string]string{}
	f, err := os.Open(path)
	if err != nil {
		return fields
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}
	return fields
}

// profileDirs lists subdirectories of a home-style directory, minus the
// well-known non-user entries.
func profileDirs(dir string, skip map[string]bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var profiles []string
	for _, entry := range entries {
		if entry.IsDir() && !skip[strings.ToLower(entry.Name())] {
			profiles = append(profiles, entry.Name())
		}
	}
	sort.Strings(profiles)
	return profiles
}

// systemVersion is the subset of SystemVersion.plist macOS detection needs.
type systemVersion struct {
	ProductName    string `plist:"ProductName"`
	ProductVersion string `plist:"ProductVersion"`
}

func detectMacOS(root string) *inspect.OSReport {
	versionPlist := firstExisting(root, "System/Library/CoreServices/SystemVersion.plist")
	if versionPlist == "" {
		return nil
	}

	report := &inspect.OSReport{
		OSType:          "macOS",
		OSName:          "macOS",
		Confidence:      "high",
		DetectionMethod: "found " + versionPlist,
	}

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(versionPlist)))
	if err == nil {
		var sv systemVersion
		if _, err := plist.Unmarshal(data, &sv); err == nil {
			if sv.ProductName != "" {
				report.OSName = sv.ProductName
			}
			report.Version = sv.ProductVersion
		}
	}

	report.BootCapable = firstExisting(root, "System/Library/Kernels", "mach_kernel") != ""
	report.UserProfiles = profileDirs(filepath.Join(root, "Users"), map[string]bool{"shared": true, "guest": true})
	return report
}

var _ inspect.OSDetector = (*MarkerOSDetector)(nil)
