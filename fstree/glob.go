package fstree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// globOptions controls a description file's "glob" record (spec.md
// §4.G): a recursive host directory scan with filters.
type globOptions struct {
	typeFilter  string // "", "f", "d", "l" — matches against -type
	nameGlob    string // matched against basename, -name
	pathGlob    string // matched against the path relative to the scan root, -path
	xdev        bool
	keepTime    bool
	nonRecurse  bool
}

func parseGlobOptions(extra []string) (globOptions, error) {
	var opt globOptions
	i := 0
	for i < len(extra) {
		switch extra[i] {
		case "-type":
			if i+1 >= len(extra) {
				return opt, fmt.Errorf("-type requires an argument")
			}
			opt.typeFilter = extra[i+1]
			i += 2
		case "-name":
			if i+1 >= len(extra) {
				return opt, fmt.Errorf("-name requires an argument")
			}
			opt.nameGlob = extra[i+1]
			i += 2
		case "-path":
			if i+1 >= len(extra) {
				return opt, fmt.Errorf("-path requires an argument")
			}
			opt.pathGlob = extra[i+1]
			i += 2
		case "-xdev":
			opt.xdev = true
			i++
		case "-keeptime":
			opt.keepTime = true
			i++
		case "-nonrecursive":
			opt.nonRecurse = true
			i++
		case "--":
			i++
		default:
			return opt, fmt.Errorf("unknown glob option %q", extra[i])
		}
	}
	return opt, nil
}

// scanGlob walks hostRoot and adds every matching entry at the same path
// in the tree. Permissions, uid and gid always come from meta; a "*" field
// has already been replaced by parseOverride's default (0644 for the mode,
// 0 for uid/gid), so host permissions and ownership are not inherited.
// The host modification time is used only with -keeptime.
func (t *Fstree) scanGlob(hostRoot string, opt globOptions, meta NodeMeta) error {
	rootInfo, err := os.Stat(hostRoot)
	if err != nil {
		return err
	}
	rootDev := deviceOf(rootInfo)

	return filepath.WalkDir(hostRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == hostRoot {
			return nil
		}
		rel, err := filepath.Rel(hostRoot, p)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if opt.xdev && deviceOf(info) != rootDev {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if opt.nonRecurse && strings.Contains(filepath.ToSlash(rel), "/") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesFilters(d, rel, opt) {
			return nil
		}

		nm := NodeMeta{Perm: meta.Perm, Uid: meta.Uid, Gid: meta.Gid, ModTime: meta.ModTime}
		if opt.keepTime {
			nm.ModTime = info.ModTime()
		}

		dest := strings.TrimPrefix(filepath.ToSlash(rel), "./")
		treeDest := hostRoot
		if treeDest != "" {
			treeDest = strings.TrimSuffix(treeDest, "/") + "/" + dest
		} else {
			treeDest = dest
		}

		switch {
		case d.IsDir():
			nm.IsDir = true
			_, err := t.AddGeneric(treeDest, nm, nil)
			return err
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			nm.IsSymlink = true
			nm.LinkTarget = target
			_, err = t.AddGeneric(treeDest, nm, nil)
			return err
		default:
			src, err := openHostFile(p)
			if err != nil {
				return err
			}
			_, err = t.AddGeneric(treeDest, nm, src)
			return err
		}
	})
}

func matchesFilters(d fs.DirEntry, rel string, opt globOptions) bool {
	if opt.typeFilter != "" {
		switch opt.typeFilter {
		case "f":
			if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
				return false
			}
		case "d":
			if !d.IsDir() {
				return false
			}
		case "l":
			if d.Type()&fs.ModeSymlink == 0 {
				return false
			}
		}
	}
	if opt.nameGlob != "" {
		ok, _ := filepath.Match(opt.nameGlob, d.Name())
		if !ok {
			return false
		}
	}
	if opt.pathGlob != "" {
		ok, _ := filepath.Match(opt.pathGlob, filepath.ToSlash(rel))
		if !ok {
			return false
		}
	}
	return true
}
