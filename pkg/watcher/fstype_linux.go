//go:build linux

package watcher

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// statfs magic numbers from linux/magic.h
const (
	nfsSuperMagic  = 0x6969
	smbSuperMagic  = 0x517B
	cifsMagic      = 0xFF534D42
	smb2Magic      = 0xFE534D42
	fuseSuperMagic = 0x65735546
)

// DetectFilesystemType classifies the filesystem holding path. A path that
// does not exist yet is classified by its nearest existing ancestor.
func DetectFilesystemType(path string) FilesystemType {
	if path == "" {
		return FSTypeUnknown
	}
	for {
		var st unix.Statfs_t
		err := unix.Statfs(path, &st)
		if err == nil {
			return classifyMagic(int64(st.Type))
		}
		if !os.IsNotExist(err) {
			return FSTypeUnknown
		}
		parent := filepath.Dir(path)
		if parent == path {
			return FSTypeUnknown
		}
		path = parent
	}
}

func classifyMagic(magic int64) FilesystemType {
	switch uint32(magic) {
	case nfsSuperMagic:
		return FSTypeNFS
	case smbSuperMagic, cifsMagic, smb2Magic:
		return FSTypeSMB
	case fuseSuperMagic:
		return FSTypeFUSE
	default:
		return FSTypeLocal
	}
}
