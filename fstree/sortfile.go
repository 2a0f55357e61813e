package fstree

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// sortRule is one parsed sort-file line: `<priority> [<flag,flag,...>] <pattern>`
// (spec.md §4.G). glob is one of the bracketed flags rather than being
// implied by the presence of wildcard characters: without it, pattern
// is matched as an exact path.
type sortRule struct {
	priority int
	flags    Flags
	isGlob   bool
	glob     string
}

// LoadSortFile parses a sort-file and applies its rules to this tree's
// already-built file list: for each file, the first rule in file order
// whose pattern matches its path sets its Priority and has its Flags
// OR-merged; later rules are not applied to that file. Call after
// PostProcess has built the flat file list.
func (t *Fstree) LoadSortFile(r io.Reader) error {
	if !t.processed {
		return fmt.Errorf("fstree: LoadSortFile requires PostProcess to have run first")
	}
	rules, err := parseSortFile(r)
	if err != nil {
		return err
	}

	paths := t.filePaths()
	for i, f := range t.files {
		p := paths[i]
		for _, rule := range rules {
			var ok bool
			if rule.isGlob {
				ok, _ = filepath.Match(rule.glob, p)
			} else {
				ok = rule.glob == p
			}
			if ok {
				f.Priority = rule.priority
				f.Flags |= rule.flags
				break
			}
		}
	}
	return nil
}

func parseSortFile(r io.Reader) ([]sortRule, error) {
	var rules []sortRule
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("fstree: sort file line %d: expected at least priority and pattern", lineNo)
		}
		priority, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("fstree: sort file line %d: bad priority: %w", lineNo, err)
		}

		rest := fields[1:]
		var flags Flags
		var isGlob bool
		if strings.HasPrefix(rest[0], "[") {
			if !strings.HasSuffix(rest[0], "]") {
				return nil, fmt.Errorf("fstree: sort file line %d: unterminated flag list", lineNo)
			}
			for _, name := range strings.Split(strings.Trim(rest[0], "[]"), ",") {
				if name == "glob" {
					isGlob = true
					continue
				}
				f, ok := parseSortFlag(name)
				if !ok {
					return nil, fmt.Errorf("fstree: sort file line %d: unknown flag %q", lineNo, name)
				}
				flags |= f
			}
			rest = rest[1:]
		}
		if len(rest) != 1 {
			return nil, fmt.Errorf("fstree: sort file line %d: malformed flags/pattern", lineNo)
		}

		rules = append(rules, sortRule{priority: priority, flags: flags, isGlob: isGlob, glob: rest[0]})
	}
	return rules, sc.Err()
}

func parseSortFlag(s string) (Flags, bool) {
	switch s {
	case "dont_compress":
		return DontCompress, true
	case "dont_fragment":
		return DontFragment, true
	case "align":
		return Align, true
	case "nosparse":
		return NoSparse, true
	default:
		return 0, false
	}
}

// filePaths returns the absolute tree path of each node in t.files, in
// the same order, for sort-file glob matching.
func (t *Fstree) filePaths() []string {
	paths := make([]string, len(t.files))
	for i, f := range t.files {
		paths[i] = nodePath(f)
	}
	return paths
}

func nodePath(n *Node) string {
	if n.Parent == nil {
		return "/"
	}
	var parts []string
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		parts = append([]string{cur.Name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

// SortedFiles returns the flat file list stable-sorted ascending by
// Priority, the order the block processor consumes (spec.md §4.G).
func (t *Fstree) SortedFiles() []*Node {
	out := make([]*Node, len(t.files))
	copy(out, t.files)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
