//go:build !linux

package watcher

// DetectFilesystemType reports FSTypeUnknown on platforms without a statfs
// magic number; the watcher then relies on fsnotify.
func DetectFilesystemType(path string) FilesystemType {
	return FSTypeUnknown
}
