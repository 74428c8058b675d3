//go:build !linux

package probe

// statMount is unavailable on this platform; the drive row keeps zero size.
func statMount(path string) (sizeBytes int64, fsType string, ok bool) {
	return 0, "", false
}
