//go:build unix

package fs

import (
	"io/fs"
	"syscall"
	"time"
)

// statTimes extracts access and change times from a FileInfo. The change
// time stands in for creation time: birth time is not available on most Unix
// filesystems. Falls back to the modification time when the underlying Sys()
// is not a *syscall.Stat_t (mock filesystems).
func statTimes(info fs.FileInfo) (accessed, created time.Time) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime(), info.ModTime()
	}
	return time.Unix(stat.Atim.Sec, stat.Atim.Nsec),
		time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}
