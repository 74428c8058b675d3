// Package probe implements the hardware- and filesystem-facing side of an
// inspection: drive identity, health assessment and operating-system
// detection. Everything here degrades gracefully: a probe that cannot see
// what it is looking for reports that honestly instead of failing the stage.
package probe

import (
	"fmt"
	"os"
	"path/filepath"

	"drivescope/internal/inspect"
	"drivescope/internal/model"
)

// MountIdentifier derives a drive identity from a mount point. Without
// privileged access to the device node it cannot read a hardware serial, so
// it falls back to a name-derived placeholder that stays stable across
// sessions of the same mount.
type MountIdentifier struct{}

func NewMountIdentifier() *MountIdentifier {
	return &MountIdentifier{}
}

func (m *MountIdentifier) Identify(mountPoint string) (*model.Drive, error) {
	abs, err := filepath.Abs(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", mountPoint, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	name := filepath.Base(abs)
	drive := &model.Drive{
		SerialNumber: "UNKNOWN_" + name,
		Model:        "Drive at " + abs,
		Label:        name,
	}

	if size, fsType, ok := statMount(abs); ok {
		drive.SizeBytes = size
		drive.Filesystem = fsType
	}
	return drive, nil
}

var _ inspect.DriveIdentifier = (*MountIdentifier)(nil)
