//go:build !unix

package fstree

import "io/fs"

// deviceOf has no portable equivalent outside unix; -xdev is a no-op on
// other platforms.
func deviceOf(info fs.FileInfo) uint64 {
	return 0
}
