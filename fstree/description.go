package fstree

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

// FromDescription parses line-oriented pack-file-description records
// (spec.md §4.G, §6):
//
//	<kind> <path> <mode> <uid> <gid> [<extra>]
//
// kind is one of dir, slink, link, nod, pipe, sock, file, glob. glob
// triggers a recursive host directory scan anchored at path instead of
// creating a single node.
func (t *Fstree) FromDescription(r io.Reader) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := t.applyDescriptionLine(line); err != nil {
			return fmt.Errorf("fstree: description line %d: %w", lineNo, err)
		}
	}
	return sc.Err()
}

func (t *Fstree) applyDescriptionLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return fmt.Errorf("need at least 5 fields, got %d", len(fields))
	}
	kind, path := fields[0], fields[1]

	mode, err := parseOverride(fields[2], 0o644, 8)
	if err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	uid, err := parseOverride(fields[3], 0, 10)
	if err != nil {
		return fmt.Errorf("uid: %w", err)
	}
	gid, err := parseOverride(fields[4], 0, 10)
	if err != nil {
		return fmt.Errorf("gid: %w", err)
	}
	extra := fields[5:]

	meta := NodeMeta{Perm: uint32(mode) & 0o7777, Uid: uint32(uid), Gid: uint32(gid), ModTime: time.Unix(0, 0).UTC()}

	switch kind {
	case "dir":
		meta.IsDir = true
		_, err := t.AddGeneric(path, meta, nil)
		return err
	case "slink":
		if len(extra) < 1 {
			return fmt.Errorf("slink requires a target")
		}
		meta.IsSymlink = true
		meta.LinkTarget = extra[0]
		_, err := t.AddGeneric(path, meta, nil)
		return err
	case "link":
		if len(extra) < 1 {
			return fmt.Errorf("link requires a target path")
		}
		meta.IsHardLink = true
		meta.LinkTarget = extra[0]
		_, err := t.AddGeneric(path, meta, nil)
		return err
	case "nod":
		if len(extra) < 3 {
			return fmt.Errorf("nod requires type, major, minor")
		}
		devType, major, minor := extra[0], extra[1], extra[2]
		maj, err := strconv.ParseUint(major, 10, 32)
		if err != nil {
			return fmt.Errorf("major: %w", err)
		}
		min, err := strconv.ParseUint(minor, 10, 32)
		if err != nil {
			return fmt.Errorf("minor: %w", err)
		}
		meta.Rdev = encodeRdev(uint32(maj), uint32(min))
		switch devType {
		case "c":
			meta.Mode = fs.ModeDevice | fs.ModeCharDevice
		case "b":
			meta.Mode = fs.ModeDevice
		default:
			return fmt.Errorf("unknown device type %q", devType)
		}
		_, err = t.AddGeneric(path, meta, nil)
		return err
	case "pipe":
		meta.Mode = fs.ModeNamedPipe
		_, err := t.AddGeneric(path, meta, nil)
		return err
	case "sock":
		meta.Mode = fs.ModeSocket
		_, err := t.AddGeneric(path, meta, nil)
		return err
	case "file":
		if len(extra) < 1 {
			return fmt.Errorf("file requires a host source path")
		}
		src, err := openHostFile(extra[0])
		if err != nil {
			return err
		}
		_, err = t.AddGeneric(path, meta, src)
		return err
	case "glob":
		opts, err := parseGlobOptions(extra)
		if err != nil {
			return err
		}
		return t.scanGlob(path, opts, meta)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
}

// parseOverride parses an integer field in the given base (octal for the
// mode, decimal for uid/gid); "*" returns def.
func parseOverride(s string, def int64, base int) (int64, error) {
	if s == "*" {
		return def, nil
	}
	return strconv.ParseInt(s, base, 64)
}

// encodeRdev packs major/minor device numbers using the Linux new-style
// 32-bit dev_t encoding the teacher's mode.go assumes elsewhere in this
// module (major in bits 8-19, minor in bits 0-7 and 20-31).
func encodeRdev(major, minor uint32) uint32 {
	return (minor & 0xff) | (major&0xfff)<<8 | (minor&^0xff)<<12
}
