//go:build !darwin && !linux

package store

// Filesystem detection is unavailable here; report unknown so the check
// passes rather than blocking startup.
func detectFilesystemType(path string) (string, error) {
	return "", nil
}
