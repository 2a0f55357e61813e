package util

import "strings"

// windowsReserved lists the DOS device names Windows refuses to use as a
// plain file name, with or without an extension (CON, CON.txt, ...).
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// FilenameSane reports whether name is usable as a single path component:
// non-empty, free of NUL and '/', not "." or "..", and — to keep images
// usable when later extracted on Windows — not a bare Windows-reserved
// device name (case-insensitively, with or without a trailing extension).
//
// Grounded on lib/fstree/filename_sane.c (original_source).
func FilenameSane(name string, allowDotted bool) bool {
	if name == "" {
		return false
	}
	if !allowDotted {
		if name == "." || name == ".." {
			return false
		}
	}
	if strings.ContainsAny(name, "/\x00") {
		return false
	}

	base := name
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if windowsReserved[strings.ToUpper(base)] {
		return false
	}
	return true
}

// Canonicalize collapses repeated slashes, removes "./" segments, rejects
// ".." segments, and strips any trailing slash (except for the root path,
// which canonicalizes to the empty string). It is idempotent:
// Canonicalize(Canonicalize(p)) == Canonicalize(p), and the result never
// contains "./", "//", or a trailing '/' other than the empty root,
// matching spec.md §8's testable property.
func Canonicalize(p string) (string, error) {
	if p == "" {
		return "", nil
	}

	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", errParentRef
		default:
			out = append(out, part)
		}
	}

	return strings.Join(out, "/"), nil
}

var errParentRef = canonErr("canonicalize: path must not contain '..'")

type canonErr string

func (e canonErr) Error() string { return string(e) }
