//go:build unix

package utils

import (
	"os"
	"syscall"
)

// InodeIdentity extracts the (device, inode) pair that identifies an inode
// for the lifetime of the underlying file. ok is false on filesystems that
// do not expose a Stat_t.
func InodeIdentity(fi os.FileInfo) (dev uint64, ino uint64, ok bool) {
	st, okCast := fi.Sys().(*syscall.Stat_t)
	if !okCast {
		return 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), true
}
