//go:build linux || darwin

package recovery

import "syscall"

// diskFree reports the free bytes on the filesystem holding path.
func diskFree(path string) (int64, bool) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return 0, false
	}
	return int64(fs.Bavail) * int64(fs.Bsize), true
}
