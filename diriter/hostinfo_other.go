//go:build !unix

package diriter

import "io/fs"

func deviceOf(info fs.FileInfo) uint64              { return 0 }
func identityOf(info fs.FileInfo) (dev, ino uint64) { return 0, 0 }
func ownerOf(info fs.FileInfo) (uid, gid uint32)    { return 0, 0 }
func rdevOf(info fs.FileInfo) uint32                { return 0 }
