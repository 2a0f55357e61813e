package util

import "testing"

func TestXXHash32Vectors(t *testing.T) {
	if got := XXHash32([]byte("\x9e"), 0); got != 0xB85CBEE5 {
		t.Fatalf("H(\\x9e) = 0x%08X, want 0xB85CBEE5", got)
	}

	// H("") must be defined and stable.
	_ = XXHash32(nil, 0)

	buf := make([]byte, 101)
	for i := range buf {
		buf[i] = byte(i)
	}
	if got := XXHash32(buf, 0); got != 0x018F52BC {
		t.Fatalf("H(101-byte vector) = 0x%08X, want 0x018F52BC", got)
	}
}
