//go:build !linux && !darwin

package recovery

// diskFree is unavailable on this platform; disk pressure checks are
// skipped.
func diskFree(path string) (int64, bool) {
	return 0, false
}
