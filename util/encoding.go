package util

import (
	"encoding/base64"
	"encoding/hex"
)

// HexEncode/HexDecode wrap encoding/hex; kept as named wrappers so callers
// needing the spec's "hex/base64 decoders" utility have one import surface,
// rather than reaching for the stdlib package directly in a dozen files.

func HexEncode(b []byte) string { return hex.EncodeToString(b) }

func HexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// base64Variants accepts both '+/' and '-_' alphabets with or without padding,
// as required by spec.md §8 ("accepts both '=' and '_' padding").
var base64Variants = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Base64Encode encodes using standard padded base64, matching the common
// case produced by setfattr-style xattr-map files (spec.md §6).
func Base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64Decode accepts any of the four base64 alphabet/padding
// combinations in use across the xattr-map and pax-extension producers it
// needs to interoperate with.
func Base64Decode(s string) ([]byte, error) {
	var lastErr error
	for _, enc := range base64Variants {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		} else {
			lastErr = err
		}
	}
	return nil, lastErr
}
