//go:build unix

package fstree

import (
	"io/fs"
	"syscall"
)

// deviceOf returns the st_dev of info, used to implement -xdev: stop a
// glob scan from crossing onto a different host filesystem.
func deviceOf(info fs.FileInfo) uint64 {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return uint64(st.Dev)
}
