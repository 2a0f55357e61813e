package tar

import (
	"bufio"
	"fmt"
	"io"
)

// Reader sequentially decodes tar entries from r, resolving pax extended
// headers and GNU long-name/long-link records against the precedence
// order of spec.md §4.E before returning each Header.
type Reader struct {
	r   *bufio.Reader
	cur io.Reader // bounds Read to the current entry's data, nil between headers

	pendingGlobal map[string]string
	remaining     int64 // unread data bytes left in cur
	pad           int64 // trailing padding to discard once cur is drained
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), pendingGlobal: make(map[string]string)}
}

// Next advances to the next entry, discarding any unread data from the
// previous one, and returns its resolved Header.
func (tr *Reader) Next() (*Header, error) {
	if err := tr.skipRemaining(); err != nil {
		return nil, err
	}

	var paxRecords *paxData
	var longName, longLink string

	for {
		block, err := tr.readBlock()
		if err != nil {
			return nil, err
		}
		if isZeroBlock(block) {
			block2, err := tr.readBlock()
			if err == nil && isZeroBlock(block2) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("tar: unexpected zero block without archive terminator")
		}

		h, size, extended, err := decodeBlock(block)
		if err != nil {
			return nil, err
		}
		if extended {
			for extended {
				ext, err := tr.readBlock()
				if err != nil {
					return nil, err
				}
				var more []SparseEntry
				more, extended = decodeSparseExtension(ext)
				h.Sparse = append(h.Sparse, more...)
			}
		}

		switch h.Typeflag {
		case TypeXHeader, TypeXGlobalHeader:
			data, err := tr.readData(size)
			if err != nil {
				return nil, err
			}
			pd, err := parsePAXRecords(data)
			if err != nil {
				return nil, err
			}
			if h.Typeflag == TypeXGlobalHeader {
				for k, v := range pd.records {
					tr.pendingGlobal[k] = v
				}
				continue
			}
			paxRecords = pd
			continue
		case TypeGNULongName:
			data, err := tr.readData(size)
			if err != nil {
				return nil, err
			}
			longName = parseString(data)
			continue
		case TypeGNULongLink:
			data, err := tr.readData(size)
			if err != nil {
				return nil, err
			}
			longLink = parseString(data)
			continue
		}

		for k, v := range tr.pendingGlobal {
			if _, ok := h.PaxRecords[k]; !ok {
				applyPAXRecords(h, &paxData{records: map[string]string{k: v}})
			}
		}
		if longName != "" {
			h.Name = longName
		}
		if longLink != "" {
			h.Linkname = longLink
		}
		if paxRecords != nil {
			if err := applyPAXRecords(h, paxRecords); err != nil {
				return nil, err
			}
		}

		storedSize := size
		tr.pad = blockPadding(storedSize)

		if h.gnuSparse10 {
			sp, consumed, realSize, err := tr.readGNUSparse10Map(storedSize)
			if err != nil {
				return nil, err
			}
			h.Sparse = sp
			if realSize >= 0 {
				h.Size = realSize
			}
			storedSize -= int64(consumed)
		}

		if h.Sparse != nil {
			if err := validateSparseEntries(h.Sparse, h.Size); err != nil {
				return nil, err
			}
		}

		tr.remaining = storedSize
		tr.cur = io.LimitReader(tr.r, storedSize)
		return h, nil
	}
}

// Read reads from the current entry's data, per io.Reader.
func (tr *Reader) Read(p []byte) (int, error) {
	if tr.cur == nil {
		return 0, io.EOF
	}
	return tr.cur.Read(p)
}

// skipRemaining drains any unread data from the previous entry plus its
// trailing padding to the next 512-byte boundary.
func (tr *Reader) skipRemaining() error {
	if tr.cur == nil {
		tr.remaining, tr.pad = 0, 0
		return nil
	}
	if _, err := io.Copy(io.Discard, tr.cur); err != nil {
		return err
	}
	pad := tr.pad
	tr.cur = nil
	tr.remaining, tr.pad = 0, 0
	return discardPadding(tr.r, pad)
}

func discardPadding(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, n)
	return err
}

// readGNUSparse10Map reads pax GNU.sparse.1.0's leading data chunk: a
// decimal entry count followed by that many newline-terminated
// "offset\nlength\n" pairs, consuming exactly as many bytes as the map
// occupies and leaving the stream positioned at the real sparse data
// (spec.md §4.E). storedSize bounds how much of the entry's on-disk data
// may be consumed this way. realSize is returned as -1 when the caller
// should leave Header.Size untouched (no pax/GNU.sparse.realsize override
// applied it already).
func (tr *Reader) readGNUSparse10Map(storedSize int64) (entries []SparseEntry, consumed int64, realSize int64, err error) {
	countLine, err := tr.r.ReadString('\n')
	if err != nil {
		return nil, 0, -1, fmt.Errorf("tar: malformed GNU.sparse.1.0 header: %w", err)
	}
	consumed += int64(len(countLine))
	count, err := parseSparseCountLine(countLine)
	if err != nil {
		return nil, 0, -1, err
	}

	for i := int64(0); i < count; i++ {
		offLine, err := tr.r.ReadString('\n')
		if err != nil {
			return nil, 0, -1, fmt.Errorf("tar: truncated GNU.sparse.1.0 map: %w", err)
		}
		lenLine, err := tr.r.ReadString('\n')
		if err != nil {
			return nil, 0, -1, fmt.Errorf("tar: truncated GNU.sparse.1.0 map: %w", err)
		}
		consumed += int64(len(offLine) + len(lenLine))
		off, length, err := parseSparsePairLines(offLine, lenLine)
		if err != nil {
			return nil, 0, -1, err
		}
		entries = append(entries, SparseEntry{Offset: off, Length: length})
	}

	if consumed > storedSize {
		return nil, 0, -1, fmt.Errorf("tar: GNU.sparse.1.0 map larger than entry data")
	}
	return entries, consumed, -1, nil
}

func (tr *Reader) readBlock() ([]byte, error) {
	buf := make([]byte, blockSize)
	if _, err := io.ReadFull(tr.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("tar: truncated archive")
		}
		return nil, err
	}
	return buf, nil
}

func (tr *Reader) readData(size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(tr.r, buf); err != nil {
		return nil, err
	}
	if pad := blockPadding(size); pad > 0 {
		if err := discardPadding(tr.r, pad); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func isZeroBlock(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// decodeBlock parses one primary ustar/GNU/v7 header block, validating its
// checksum, and returns the Header along with the data size it announces
// (used verbatim even for TypeXHeader/TypeGNULongName entries, whose
// "data" is the extension payload rather than file content).
func decodeBlock(b []byte) (h *Header, size int64, extended bool, err error) {
	chk, err := parseNumeric(b[offChksum : offChksum+lenChksum])
	if err != nil {
		return nil, 0, false, fmt.Errorf("tar: malformed checksum field: %w", err)
	}
	if computeChecksum(b) != chk {
		return nil, 0, false, fmt.Errorf("tar: header checksum mismatch")
	}

	h = &Header{}
	h.Typeflag = Typeflag(b[offTypeflag])
	h.Name = parseString(b[offName : offName+lenName])
	h.Linkname = parseString(b[offLinkname : offLinkname+lenLinkname])

	mode, err := parseNumeric(b[offMode : offMode+lenMode])
	if err != nil {
		return nil, 0, false, err
	}
	h.Mode = mode

	uid, _ := parseNumeric(b[offUid : offUid+lenUid])
	gid, _ := parseNumeric(b[offGid : offGid+lenGid])
	h.Uid, h.Gid = int(uid), int(gid)

	size, err = parseNumeric(b[offSize : offSize+lenSize])
	if err != nil {
		return nil, 0, false, err
	}
	h.Size = size

	mtime, _ := parseNumeric(b[offMtime : offMtime+lenMtime])
	h.ModTime = unixTime(mtime)

	magic := string(b[offMagic : offMagic+lenMagic])
	if magic == magicUSTAR || magic == magicGNU {
		h.Uname = parseString(b[offUname : offUname+lenUname])
		h.Gname = parseString(b[offGname : offGname+lenGname])
		devmajor, _ := parseNumeric(b[offDevmajor : offDevmajor+lenDevmajor])
		devminor, _ := parseNumeric(b[offDevminor : offDevminor+lenDevminor])
		h.Devmajor, h.Devminor = devmajor, devminor
	}
	if magic == magicUSTAR {
		prefix := parseString(b[offPrefix : offPrefix+lenPrefix])
		if prefix != "" {
			h.Name = prefix + "/" + h.Name
		}
	}
	if magic == magicGNU {
		atime, _ := parseNumeric(b[offGNUAtime : offGNUAtime+12])
		ctime, _ := parseNumeric(b[offGNUCtime : offGNUCtime+12])
		h.AccessTime, h.ChangeTime = unixTime(atime), unixTime(ctime)

		if h.Typeflag == TypeReg || h.Typeflag == TypeGNUSparse {
			realSize, _ := parseNumeric(b[offGNURealSz : offGNURealSz+12])
			region := b[offGNUSparse : offGNUSparse+lenGNUSparse]
			if hasNonZeroSparseElem(region) {
				sp := appendSparseElems(nil, region[:4*sparseElemLen])
				if len(sp) > 0 {
					h.Sparse = sp
					if realSize > 0 {
						h.Size = realSize
					}
					h.Typeflag = TypeReg
					extended = region[4*sparseElemLen] != 0
				}
			}
		}
	}

	return h, size, extended, nil
}

// decodeSparseExtension decodes one 512-byte GNU sparse continuation
// block: up to 21 (offset,length) pairs plus a trailing isExtended byte.
func decodeSparseExtension(b []byte) (entries []SparseEntry, extended bool) {
	const perBlock = 21
	entries = appendSparseElems(nil, b[:perBlock*sparseElemLen])
	extended = b[perBlock*sparseElemLen] != 0
	return entries, extended
}

func hasNonZeroSparseElem(region []byte) bool {
	for i := 0; i+sparseElemLen <= 4*sparseElemLen; i += sparseElemLen {
		if off, _ := parseNumeric(region[i : i+12]); off != 0 {
			return true
		}
		if ln, _ := parseNumeric(region[i+12 : i+24]); ln != 0 {
			return true
		}
	}
	return false
}
