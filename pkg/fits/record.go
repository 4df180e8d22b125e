package fits

import (
	"fmt"
	"strings"
)

// Record is the parsed form of one 80-byte header line. Exactly one shape
// applies:
//
//   - value record: Name plus a typed Value, optionally a Comment
//   - commentary record (COMMENT, HISTORY or a blank name): free Text
//   - continuation record (CONTINUE): a string fragment in Text
//   - bare keyword record (no value indicator): trailing bytes in Text
type Record struct {
	Name    string
	Value   Value
	Comment string
	Text    string
}

// IsCommentary reports whether the record carries commentary rather than a
// typed value.
func (r Record) IsCommentary() bool {
	return (r.Name == kwComment || r.Name == kwHistory || r.Name == "") &&
		r.Value.Kind == EmptyValue
}

// IsContinue reports whether the record is a long-string continuation.
func (r Record) IsContinue() bool { return r.Name == kwContinue }

// Comment and History build commentary records.
func Comment(text string) Record { return Record{Name: kwComment, Text: text} }
func History(text string) Record { return Record{Name: kwHistory, Text: text} }

// KeywordRecord builds a value record.
func KeywordRecord(name string, value Value, comment string) Record {
	return Record{Name: name, Value: value, Comment: comment}
}

// parseRecord parses one 80-byte line. The second result is true for the
// END sentinel. off is the absolute byte offset of the record, used in
// error messages only.
func parseRecord(raw []byte, off int64) (Record, bool, error) {
	if len(raw) != RecordSize {
		return Record{}, false, fmt.Errorf("%w: %d bytes at offset %d", ErrInvalidRecord, len(raw), off)
	}
	for i, b := range raw {
		if b < 0x20 || b > 0x7e {
			return Record{}, false, fmt.Errorf("%w: non-ASCII byte 0x%02x at offset %d",
				ErrInvalidRecord, b, off+int64(i))
		}
	}

	name := strings.TrimRight(string(raw[:8]), " ")
	if err := checkKeyword(raw[:8], name); err != nil {
		return Record{}, false, fmt.Errorf("%w at offset %d", err, off)
	}

	switch {
	case name == kwEnd:
		if !allSpaces(raw[3:]) {
			return Record{}, false, fmt.Errorf("%w: text after END at offset %d", ErrInvalidRecord, off)
		}
		return Record{}, true, nil

	case name == kwComment || name == kwHistory:
		return Record{Name: name, Text: strings.TrimRight(string(raw[8:]), " ")}, false, nil

	case name == kwContinue:
		frag, comment, err := parseStringField(raw[8:], off)
		if err != nil {
			return Record{}, false, fmt.Errorf("%s: %w", name, err)
		}
		return Record{Name: name, Text: frag, Comment: comment}, false, nil

	case raw[8] == '=' && raw[9] == ' ':
		value, comment, err := parseValueField(raw[10:], off)
		if err != nil {
			return Record{}, false, fmt.Errorf("%s: %w", name, err)
		}
		return Record{Name: name, Value: value, Comment: comment}, false, nil

	case name == "":
		return Record{Text: strings.TrimRight(string(raw[8:]), " ")}, false, nil

	default:
		// Keyword without a value indicator. The trailing bytes are
		// uninterpreted text.
		return Record{Name: name, Text: strings.TrimRight(string(raw[8:]), " ")}, false, nil
	}
}

// checkKeyword enforces the FITS keyword grammar on the raw name field:
// uppercase letters, digits, hyphen and underscore, left-justified.
func checkKeyword(field []byte, name string) error {
	for _, c := range []byte(name) {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return fmt.Errorf("%w: bad keyword %q", ErrInvalidRecord, name)
		}
	}
	// No embedded blanks: the field must be the name padded on the right.
	for i := len(name); i < len(field); i++ {
		if field[i] != ' ' {
			return fmt.Errorf("%w: embedded blank in keyword %q", ErrInvalidRecord, string(field))
		}
	}
	return nil
}

// parseValueField types the value portion of a record (bytes 11..80) and
// splits off the '/'-introduced comment.
func parseValueField(field []byte, off int64) (Value, string, error) {
	i := 0
	for i < len(field) && field[i] == ' ' {
		i++
	}
	if i == len(field) {
		return Value{Kind: EmptyValue}, "", nil
	}

	if field[i] == '\'' {
		return parseQuoted(field, i, off)
	}

	rest := string(field[i:])
	tok := rest
	comment := ""
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		tok = rest[:slash]
		comment = strings.TrimSpace(rest[slash+1:])
	}
	v, err := parseValueToken(strings.TrimSpace(tok))
	if err != nil {
		return Value{}, "", fmt.Errorf("%w at offset %d", err, off)
	}
	return v, comment, nil
}

// parseStringField is parseValueField restricted to quoted strings; it is
// used for CONTINUE records, which carry a string without the '= '
// indicator.
func parseStringField(field []byte, off int64) (string, string, error) {
	i := 0
	for i < len(field) && field[i] == ' ' {
		i++
	}
	if i == len(field) {
		return "", "", nil
	}
	if field[i] != '\'' {
		// Orphaned continuation text; carry it verbatim.
		return strings.TrimRight(string(field[i:]), " "), "", nil
	}
	v, comment, err := parseQuoted(field, i, off)
	if err != nil {
		return "", "", err
	}
	s, _ := v.AsString()
	return s, comment, nil
}

// parseQuoted scans a single-quoted string starting at field[i]. A doubled
// quote is an embedded quote; trailing blanks before the closing quote are
// not significant.
func parseQuoted(field []byte, i int, off int64) (Value, string, error) {
	var sb strings.Builder
	i++
	for {
		if i >= len(field) {
			return Value{}, "", fmt.Errorf("%w: unterminated string at offset %d", ErrInvalidRecord, off)
		}
		c := field[i]
		if c == '\'' {
			if i+1 < len(field) && field[i+1] == '\'' {
				sb.WriteByte('\'')
				i += 2
				continue
			}
			i++
			break
		}
		sb.WriteByte(c)
		i++
	}

	comment := ""
	rest := strings.TrimSpace(string(field[i:]))
	switch {
	case rest == "":
	case rest[0] == '/':
		comment = strings.TrimSpace(rest[1:])
	default:
		return Value{}, "", fmt.Errorf("%w: text after closing quote at offset %d", ErrInvalidRecord, off)
	}
	return Str(strings.TrimRight(sb.String(), " ")), comment, nil
}

func allSpaces(b []byte) bool {
	for _, c := range b {
		if c != ' ' {
			return false
		}
	}
	return true
}
