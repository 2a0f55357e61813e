package tar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// paxData is one parsed pax extended-header payload. Every key folds into
// records except GNU.sparse.offset/GNU.sparse.numbytes, the pax GNU 0.0
// dialect's repeatable per-region pair: a map would collapse repeated
// occurrences down to the last one, losing every sparse region but the
// final one, so those two keys are instead kept as parallel ordered
// lists in the order they were scanned.
type paxData struct {
	records       map[string]string
	sparseOffsets []string
	sparseLens    []string
}

// parsePAXRecords decodes a pax extended-header payload: a sequence of
// "LEN KEY=VALUE\n" lines where LEN is the decimal length of the whole
// line including LEN itself (spec.md §4.E).
func parsePAXRecords(data []byte) (*paxData, error) {
	pd := &paxData{records: make(map[string]string)}
	for len(data) > 0 {
		sp := indexZeroByte(data, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("tar: malformed pax record, missing length field")
		}
		length, err := strconv.Atoi(string(data[:sp]))
		if err != nil || length <= sp+1 || length > len(data) {
			return nil, fmt.Errorf("tar: malformed pax record length")
		}
		line := data[sp+1 : length]
		eq := indexZeroByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("tar: malformed pax record, missing '='")
		}
		key := string(line[:eq])
		value := string(line[eq+1 : len(line)-1]) // drop trailing '\n'
		switch key {
		case paxGNUSparseOffset:
			pd.sparseOffsets = append(pd.sparseOffsets, value)
		case paxGNUSparseNumByte:
			pd.sparseLens = append(pd.sparseLens, value)
		default:
			pd.records[key] = value
		}
		data = data[length:]
	}
	return pd, nil
}

// formatPAXRecord renders one "LEN KEY=VALUE\n" line, resolving LEN
// iteratively since LEN's own digit count can change the line's length.
func formatPAXRecord(key, value string) string {
	const fixed = 3 // ' ' + '=' + '\n'
	length := len(key) + len(value) + fixed
	for {
		candidate := length + len(strconv.Itoa(length))
		total := len(strconv.Itoa(candidate)) + len(key) + len(value) + fixed
		if total == length {
			break
		}
		length = total
	}
	return fmt.Sprintf("%d %s=%s\n", length, key, value)
}

// buildPAXRecords serializes a set of pax key/value overrides into one
// extended-header payload, in a stable (sorted) key order.
func buildPAXRecords(records map[string]string) []byte {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sortStrings(keys)

	var buf strings.Builder
	for _, k := range keys {
		buf.WriteString(formatPAXRecord(k, records[k]))
	}
	return []byte(buf.String())
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// pax well-known keys (spec.md §4.E / POSIX.1-2001).
const (
	paxPath     = "path"
	paxLinkpath = "linkpath"
	paxUname    = "uname"
	paxGname    = "gname"
	paxUid      = "uid"
	paxGid      = "gid"
	paxSize     = "size"
	paxMtime    = "mtime"
	paxAtime    = "atime"
	paxCtime    = "ctime"

	paxGNUSparseMajor   = "GNU.sparse.major"
	paxGNUSparseMinor   = "GNU.sparse.minor"
	paxGNUSparseName    = "GNU.sparse.name"
	paxGNUSparseSize    = "GNU.sparse.size"
	paxGNUSparseRealSz  = "GNU.sparse.realsize"
	paxGNUSparseMap     = "GNU.sparse.map"
	paxGNUSparseNumBlk  = "GNU.sparse.numblocks"
	paxGNUSparseOffset  = "GNU.sparse.offset"
	paxGNUSparseNumByte = "GNU.sparse.numbytes"
)

func parsePAXTime(s string) (time.Time, error) {
	parts := strings.SplitN(s, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("tar: malformed pax timestamp %q: %w", s, err)
	}
	var nsec int64
	if len(parts) == 2 {
		frac := parts[1]
		for len(frac) < 9 {
			frac += "0"
		}
		nsec, _ = strconv.ParseInt(frac[:9], 10, 64)
	}
	return time.Unix(sec, nsec).UTC(), nil
}

func formatPAXTime(t time.Time) string {
	if t.Nanosecond() == 0 {
		return strconv.FormatInt(t.Unix(), 10)
	}
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

// applyPAXRecords overlays pax key/value pairs onto a header already
// populated from the primary ustar/GNU block, per the precedence rule of
// spec.md §4.E (pax wins over everything beneath it).
func applyPAXRecords(h *Header, pd *paxData) error {
	unrecognized := make(map[string]string)

	for k, v := range pd.records {
		switch k {
		case paxPath:
			h.Name = v
		case paxLinkpath:
			h.Linkname = v
		case paxUname:
			h.Uname = v
		case paxGname:
			h.Gname = v
		case paxUid:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("tar: malformed pax uid: %w", err)
			}
			h.Uid = int(n)
		case paxGid:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("tar: malformed pax gid: %w", err)
			}
			h.Gid = int(n)
		case paxSize:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("tar: malformed pax size: %w", err)
			}
			h.Size = n
		case paxMtime:
			t, err := parsePAXTime(v)
			if err != nil {
				return err
			}
			h.ModTime = t
		case paxAtime:
			t, err := parsePAXTime(v)
			if err != nil {
				return err
			}
			h.AccessTime = t
		case paxCtime:
			t, err := parsePAXTime(v)
			if err != nil {
				return err
			}
			h.ChangeTime = t
		case paxGNUSparseRealSz:
			n, err := strconv.ParseInt(v, 10, 64)
			if err == nil {
				h.Size = n
			}
		case paxGNUSparseMap:
			sp, err := parseGNUSparse01(v)
			if err != nil {
				return err
			}
			h.Sparse = sp
		case paxGNUSparseMajor:
			if v == "1" && pd.records[paxGNUSparseMinor] == "0" {
				h.gnuSparse10 = true
			}
		case paxGNUSparseMinor, paxGNUSparseName, paxGNUSparseSize, paxGNUSparseNumBlk:
			// consumed elsewhere or purely informational
		default:
			unrecognized[k] = v
		}
	}

	if len(pd.sparseOffsets) > 0 {
		sp, err := zipGNUSparse00(pd.sparseOffsets, pd.sparseLens)
		if err != nil {
			return err
		}
		h.Sparse = sp
	}

	if len(unrecognized) > 0 {
		h.PaxRecords = unrecognized
	}
	return nil
}

// zipGNUSparse00 reassembles pax GNU.sparse.0.0's repeated
// GNU.sparse.offset/GNU.sparse.numbytes records, which arrive as two
// same-length, positionally-paired lists rather than a single map string.
func zipGNUSparse00(offsets, lens []string) ([]SparseEntry, error) {
	if len(offsets) != len(lens) {
		return nil, fmt.Errorf("tar: mismatched GNU.sparse.0.0 offset/numbytes record counts")
	}
	out := make([]SparseEntry, len(offsets))
	for i := range offsets {
		off, err := strconv.ParseInt(offsets[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tar: malformed GNU.sparse.offset: %w", err)
		}
		ln, err := strconv.ParseInt(lens[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tar: malformed GNU.sparse.numbytes: %w", err)
		}
		out[i] = SparseEntry{Offset: off, Length: ln}
	}
	return out, nil
}
