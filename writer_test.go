package squashfs

import (
	"bytes"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/go-sqfs/sqfs/fstree"
)

type memSource struct{ data []byte }

func (m memSource) Size() int64 { return int64(len(m.data)) }
func (m memSource) Open() (fstree.ReadCloser, error) {
	return memReader{bytes.NewReader(m.data)}, nil
}

type memReader struct{ *bytes.Reader }

func (memReader) Close() error { return nil }

// rwSeekBuffer is a growable in-memory io.WriteSeeker, standing in for an
// *os.File in tests.
type rwSeekBuffer struct {
	buf []byte
	pos int64
}

func (b *rwSeekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *rwSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = offset
	case io.SeekCurrent:
		b.pos += offset
	case io.SeekEnd:
		b.pos = int64(len(b.buf)) + offset
	}
	return b.pos, nil
}

func (b *rwSeekBuffer) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func buildTestTree(t *testing.T) *fstree.Fstree {
	t.Helper()
	tree := fstree.NewFstree()

	now := time.Unix(1700000000, 0).UTC()
	dirMeta := fstree.NodeMeta{IsDir: true, Perm: 0o755, ModTime: now}
	if _, err := tree.AddGeneric("/bin", dirMeta, nil); err != nil {
		t.Fatalf("add dir: %v", err)
	}

	fileMeta := fstree.NodeMeta{Perm: 0o644, ModTime: now}
	content := []byte("hello, squashfs\n")
	if _, err := tree.AddGeneric("/bin/hello.txt", fileMeta, memSource{content}); err != nil {
		t.Fatalf("add file: %v", err)
	}

	linkMeta := fstree.NodeMeta{IsSymlink: true, Perm: 0o777, ModTime: now, LinkTarget: "hello.txt"}
	if _, err := tree.AddGeneric("/bin/link", linkMeta, nil); err != nil {
		t.Fatalf("add symlink: %v", err)
	}

	bigMeta := fstree.NodeMeta{Perm: 0o644, ModTime: now}
	big := bytes.Repeat([]byte{0x42}, 300*1024)
	if _, err := tree.AddGeneric("/big.bin", bigMeta, memSource{big}); err != nil {
		t.Fatalf("add big file: %v", err)
	}

	return tree
}

func TestWriterBuildAndRead(t *testing.T) {
	tree := buildTestTree(t)

	out := &rwSeekBuffer{}
	w, err := NewWriter(out, WithBlockSize(65536), WithExportable())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Build(tree); err != nil {
		t.Fatalf("build: %v", err)
	}

	sb, err := New(out)
	if err != nil {
		t.Fatalf("open built image: %v", err)
	}

	root, err := sb.GetInodeRef(inodeRef(sb.RootInode))
	if err != nil {
		t.Fatalf("read root inode: %v", err)
	}
	rootDir, ok := root.OpenFile("/").(fs.ReadDirFile)
	if !ok {
		t.Fatalf("root inode did not open as a directory")
	}
	entries, err := rootDir.ReadDir(-1)
	if err != nil {
		t.Fatalf("read root dir: %v", err)
	}

	names := map[string]fs.DirEntry{}
	for _, e := range entries {
		names[e.Name()] = e
	}
	if _, ok := names["bin"]; !ok {
		t.Fatalf("expected /bin in root listing, got %v", names)
	}
	if _, ok := names["big.bin"]; !ok {
		t.Fatalf("expected /big.bin in root listing, got %v", names)
	}
	if !names["bin"].IsDir() {
		t.Fatalf("expected bin to be a directory")
	}

	binInfo, err := names["bin"].Info()
	if err != nil {
		t.Fatalf("bin info: %v", err)
	}
	binIno := binInfo.Sys().(*Inode)
	binDir, ok := binIno.OpenFile("bin").(fs.ReadDirFile)
	if !ok {
		t.Fatalf("bin did not open as directory")
	}
	binEntries, err := binDir.ReadDir(-1)
	if err != nil {
		t.Fatalf("read bin dir: %v", err)
	}
	binNames := map[string]fs.DirEntry{}
	for _, e := range binEntries {
		binNames[e.Name()] = e
	}
	if _, ok := binNames["hello.txt"]; !ok {
		t.Fatalf("expected bin/hello.txt, got %v", binNames)
	}
	if _, ok := binNames["link"]; !ok {
		t.Fatalf("expected bin/link, got %v", binNames)
	}

	helloInfo, err := binNames["hello.txt"].Info()
	if err != nil {
		t.Fatalf("hello.txt info: %v", err)
	}
	helloIno := helloInfo.Sys().(*Inode)
	f, ok := helloIno.OpenFile("hello.txt").(*File)
	if !ok {
		t.Fatalf("hello.txt did not open as a regular file")
	}
	got := make([]byte, helloInfo.Size())
	if _, err := f.ReadAt(got, 0); err != nil && err != io.EOF {
		t.Fatalf("read hello.txt: %v", err)
	}
	if string(got) != "hello, squashfs\n" {
		t.Fatalf("hello.txt roundtrip mismatch: got %q", got)
	}
}
