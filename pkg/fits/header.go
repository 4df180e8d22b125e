package fits

import (
	"fmt"
	"strings"
)

// Header is the ordered record collection of one HDU. Records keep their
// insertion order; lookup by keyword returns the first match. Commentary
// and CONTINUE records may repeat. The END sentinel is implicit: it is
// stripped on parse and appended on serialization.
type Header struct {
	records []Record
}

// NewHeader returns an empty header.
func NewHeader() *Header { return &Header{} }

// Len returns the number of records, excluding the END sentinel.
func (h *Header) Len() int { return len(h.records) }

// Records returns the underlying record sequence. The slice is shared;
// treat it as read-only.
func (h *Header) Records() []Record { return h.records }

// Get returns the first record with the given keyword.
func (h *Header) Get(name string) (Record, bool) {
	i := h.find(name)
	if i < 0 {
		return Record{}, false
	}
	return h.records[i], true
}

// Has reports whether a record with the given keyword exists.
func (h *Header) Has(name string) bool { return h.find(name) >= 0 }

func (h *Header) find(name string) int {
	for i := range h.records {
		if h.records[i].Name == name {
			return i
		}
	}
	return -1
}

// Logical returns the value of a logical keyword.
func (h *Header) Logical(name string) (bool, error) {
	r, ok := h.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingKeyword, name)
	}
	v, err := r.Value.AsLogical()
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// Integer returns the value of an integer keyword.
func (h *Header) Integer(name string) (int64, error) {
	r, ok := h.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKeyword, name)
	}
	v, err := r.Value.AsInteger()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// Real returns the value of a real keyword. Integer values widen.
func (h *Header) Real(name string) (float64, error) {
	r, ok := h.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKeyword, name)
	}
	v, err := r.Value.AsReal()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// String returns the value of a string keyword. If the stored string ends
// with the '&' continuation marker, the following CONTINUE records are
// joined into the logical long-string value.
func (h *Header) String(name string) (string, error) {
	i := h.find(name)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingKeyword, name)
	}
	s, err := h.records[i].Value.AsString()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	for strings.HasSuffix(s, "&") {
		i++
		if i >= len(h.records) || !h.records[i].IsContinue() {
			break
		}
		s = s[:len(s)-1] + h.records[i].Text
	}
	return s, nil
}

// Comments returns all COMMENT record texts in file order.
func (h *Header) Comments() []string { return h.commentary(kwComment) }

// History returns all HISTORY record texts in file order.
func (h *Header) History() []string { return h.commentary(kwHistory) }

func (h *Header) commentary(name string) []string {
	var out []string
	for _, r := range h.records {
		if r.Name == name && r.IsCommentary() {
			out = append(out, r.Text)
		}
	}
	return out
}

// Append adds a record at the end of the header.
func (h *Header) Append(r Record) { h.records = append(h.records, r) }

// Set replaces the first record with the same keyword, or appends when
// none exists. Continuation chains of a replaced string record are removed.
func (h *Header) Set(r Record) {
	i := h.find(r.Name)
	if i < 0 {
		h.records = append(h.records, r)
		return
	}
	h.records[i] = r
	h.dropContinues(i + 1)
}

// SetString sets a string keyword, splitting values too long for a single
// record into '&'-linked CONTINUE records.
func (h *Header) SetString(name, value, comment string) {
	chunks := splitLongString(value)
	rec := KeywordRecord(name, Str(chunks[0]), comment)
	i := h.find(name)
	if i < 0 {
		i = len(h.records)
		h.records = append(h.records, rec)
	} else {
		h.records[i] = rec
		h.dropContinues(i + 1)
	}
	for n, frag := range chunks[1:] {
		h.insertAt(i+1+n, Record{Name: kwContinue, Text: frag})
	}
}

// InsertBefore places a record immediately before the first record with the
// given keyword. FITS fixes the position of some structural keywords
// (BITPIX directly after SIMPLE or XTENSION, and so on).
func (h *Header) InsertBefore(name string, r Record) error {
	i := h.find(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrMissingKeyword, name)
	}
	h.insertAt(i, r)
	return nil
}

// InsertAfter places a record immediately after the first record with the
// given keyword.
func (h *Header) InsertAfter(name string, r Record) error {
	i := h.find(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrMissingKeyword, name)
	}
	h.insertAt(i+1, r)
	return nil
}

func (h *Header) insertAt(i int, r Record) {
	h.records = append(h.records, Record{})
	copy(h.records[i+1:], h.records[i:])
	h.records[i] = r
}

// Remove deletes the first record with the given keyword, along with any
// continuation chain that follows a removed string record. It reports
// whether a record was removed.
func (h *Header) Remove(name string) bool {
	i := h.find(name)
	if i < 0 {
		return false
	}
	h.records = append(h.records[:i], h.records[i+1:]...)
	h.dropContinues(i)
	return true
}

func (h *Header) dropContinues(i int) {
	j := i
	for j < len(h.records) && h.records[j].IsContinue() {
		j++
	}
	if j > i {
		h.records = append(h.records[:i], h.records[j:]...)
	}
}

// Blocks returns the number of 2880-byte blocks the serialized header
// occupies, END included.
func (h *Header) Blocks() int {
	n := len(h.records) + 1
	return (n + recordsPerBlock - 1) / recordsPerBlock
}

// Encode serializes the header: every record, the END sentinel, then space
// fill to the block boundary.
func (h *Header) Encode() ([]byte, error) {
	out := make([]byte, 0, h.Blocks()*BlockSize)
	for i, r := range h.records {
		enc, err := r.encode()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, enc...)
	}
	end := make([]byte, RecordSize)
	for i := range end {
		end[i] = ' '
	}
	copy(end, kwEnd)
	out = append(out, end...)

	for len(out)%BlockSize != 0 {
		out = append(out, headerFill)
	}
	return out, nil
}

// parseHeader consumes whole blocks from data until the END sentinel. base
// is the absolute file offset of data[0], used in error messages. It
// returns the header and the number of blocks consumed.
func parseHeader(data []byte, base int64) (*Header, int, error) {
	h := NewHeader()
	for block := 0; ; block++ {
		lo := block * BlockSize
		if lo+BlockSize > len(data) {
			return nil, 0, fmt.Errorf("%w: header without END at offset %d", ErrTruncated, base+int64(lo))
		}
		for rec := 0; rec < recordsPerBlock; rec++ {
			off := lo + rec*RecordSize
			r, end, err := parseRecord(data[off:off+RecordSize], base+int64(off))
			if err != nil {
				return nil, 0, err
			}
			if end {
				return h, block + 1, nil
			}
			h.Append(r)
		}
	}
}

// splitLongString cuts a string value into record-sized fragments, each
// ending with '&' except the last. Chunk boundaries account for quote
// escaping so every fragment fits a single record.
func splitLongString(s string) []string {
	const fieldLen = 67 // 70-byte value field minus quotes and '&'
	var chunks []string
	for {
		room := fieldLen
		i := 0
		for i < len(s) && room > 0 {
			cost := 1
			if s[i] == '\'' {
				cost = 2
			}
			if cost > room {
				break
			}
			room -= cost
			i++
		}
		if i == len(s) {
			chunks = append(chunks, s)
			return chunks
		}
		chunks = append(chunks, s[:i]+"&")
		s = s[i:]
	}
}
