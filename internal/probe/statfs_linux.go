package probe

import "syscall"

// statMount reports the total size of the filesystem behind path. The
// filesystem type name is not recoverable from statfs portably, so it stays
// empty here.
func statMount(path string) (sizeBytes int64, fsType string, ok bool) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, "", false
	}
	return int64(st.Blocks) * int64(st.Bsize), "", true
}
