package fstree

import (
	"bytes"
	"strings"
	"testing"
)

// sortFile mirrors the reference corpus's own sort-file test fixture
// (bin/gensquashfs/test/sort_file.c), including its glob-vs-exact pattern
// mix and negative priority.
const sortFile = `# Blockwise reverse the order of the /bin files
  10 [glob] /bin/mk*
  20 [glob] /bin/ch*
  30 [glob] /bin/d*
  40        /bin/cp
  50 [glob] /bin/*

# Make this file appear first
  -10000 [dont_compress,dont_fragment] /usr/share/bla.txt`

var sortFixtureFiles = []string{
	"/bin/chown", "/bin/ls", "/bin/chmod", "/bin/dir", "/bin/cp",
	"/bin/dd", "/bin/ln", "/bin/mkdir", "/bin/mknod",
	"/lib/libssl.so", "/lib/libfoobar.so", "/lib/libwhatever.so",
	"/usr/share/bla.txt",
}

type staticSource struct{ data []byte }

func (s staticSource) Size() int64 { return int64(len(s.data)) }
func (s staticSource) Open() (ReadCloser, error) {
	return nopCloser{bytes.NewReader(s.data)}, nil
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

func buildSortFixture(t *testing.T) *Fstree {
	t.Helper()
	tree := NewFstree()
	meta := NodeMeta{Perm: 0o644}
	for _, p := range sortFixtureFiles {
		if _, err := tree.AddGeneric(p, meta, staticSource{[]byte(p)}); err != nil {
			t.Fatalf("AddGeneric(%q): %v", p, err)
		}
	}
	if err := tree.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return tree
}

func TestLoadSortFileScenario2(t *testing.T) {
	tree := buildSortFixture(t)
	if err := tree.LoadSortFile(strings.NewReader(sortFile)); err != nil {
		t.Fatalf("LoadSortFile: %v", err)
	}

	want := []string{
		"/usr/share/bla.txt",
		"/lib/libfoobar.so",
		"/lib/libssl.so",
		"/lib/libwhatever.so",
		"/bin/mkdir",
		"/bin/mknod",
		"/bin/chmod",
		"/bin/chown",
		"/bin/dd",
		"/bin/dir",
		"/bin/cp",
		"/bin/ln",
		"/bin/ls",
	}

	sorted := tree.SortedFiles()
	if len(sorted) != len(want) {
		t.Fatalf("got %d files, want %d", len(sorted), len(want))
	}
	for i, n := range sorted {
		if p := nodePath(n); p != want[i] {
			t.Errorf("position %d: got %q, want %q", i, p, want[i])
		}
	}

	bla := sorted[0]
	if bla.Priority != -10000 {
		t.Errorf("bla.txt priority = %d, want -10000", bla.Priority)
	}
	if bla.Flags&DontCompress == 0 || bla.Flags&DontFragment == 0 {
		t.Errorf("bla.txt flags = %v, want DontCompress|DontFragment set", bla.Flags)
	}

	cp := sorted[10]
	if nodePath(cp) != "/bin/cp" || cp.Priority != 40 {
		t.Errorf("bin/cp: got path %q priority %d, want /bin/cp priority 40 (exact match, not glob)", nodePath(cp), cp.Priority)
	}
}
