package fits

import (
	"fmt"
	"strings"
)

// Fixed-form layout columns (0-based byte indexes).
const (
	valueFieldStart = 10 // column 11
	valueFieldEnd   = 30 // numerics and logicals end at column 30
	minStringLen    = 8  // quoted strings pad to at least 8 chars
)

// encode renders the record as exactly 80 bytes, space padded.
func (r Record) encode() ([]byte, error) {
	out := make([]byte, RecordSize)
	for i := range out {
		out[i] = ' '
	}

	if len(r.Name) > 8 {
		return nil, fmt.Errorf("%w: keyword %q longer than 8 bytes", ErrInvalidRecord, r.Name)
	}
	if err := checkKeyword([]byte(r.Name), r.Name); err != nil {
		return nil, err
	}
	copy(out, r.Name)

	switch {
	case r.IsCommentary():
		if err := putText(out[8:], r.Text); err != nil {
			return nil, err
		}
		return out, nil

	case r.IsContinue():
		return out, r.encodeContinue(out)

	case r.Value.Kind == EmptyValue && r.Text != "":
		// Bare keyword record: no value indicator, uninterpreted text.
		if err := putText(out[8:], r.Text); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return out, r.encodeValue(out)
	}
}

func (r Record) encodeValue(out []byte) error {
	out[8] = '='
	out[9] = ' '

	var end int
	if r.Value.Kind == StringValue {
		s, _ := r.Value.AsString()
		quoted, err := quoteString(s)
		if err != nil {
			return err
		}
		if valueFieldStart+len(quoted) > RecordSize {
			return fmt.Errorf("%w: string value for %q overflows record", ErrInvalidRecord, r.Name)
		}
		copy(out[valueFieldStart:], quoted)
		end = valueFieldStart + len(quoted)
	} else {
		text := r.Value.String()
		if err := checkPrintable(text); err != nil {
			return err
		}
		switch {
		case len(text) <= valueFieldEnd-valueFieldStart:
			// Fixed form: right-justified, ending at column 30.
			copy(out[valueFieldEnd-len(text):], text)
			end = valueFieldEnd
		case valueFieldStart+len(text) <= RecordSize:
			copy(out[valueFieldStart:], text)
			end = valueFieldStart + len(text)
		default:
			return fmt.Errorf("%w: value for %q overflows record", ErrInvalidRecord, r.Name)
		}
	}

	return putComment(out, end, r.Comment)
}

func (r Record) encodeContinue(out []byte) error {
	quoted, err := quoteString(r.Text)
	if err != nil {
		return err
	}
	if valueFieldStart+len(quoted) > RecordSize {
		return fmt.Errorf("%w: CONTINUE fragment overflows record", ErrInvalidRecord)
	}
	copy(out[valueFieldStart:], quoted)
	return putComment(out, valueFieldStart+len(quoted), r.Comment)
}

// quoteString renders a FITS quoted string: embedded quotes doubled and the
// content right-padded to at least 8 characters.
func quoteString(s string) ([]byte, error) {
	if err := checkPrintable(s); err != nil {
		return nil, err
	}
	escaped := strings.ReplaceAll(s, "'", "''")
	if len(escaped) < minStringLen {
		escaped += strings.Repeat(" ", minStringLen-len(escaped))
	}
	return []byte("'" + escaped + "'"), nil
}

func putComment(out []byte, end int, comment string) error {
	if comment == "" {
		return nil
	}
	if err := checkPrintable(comment); err != nil {
		return err
	}
	if end+3+len(comment) > RecordSize {
		return fmt.Errorf("%w: comment %q overflows record", ErrInvalidRecord, comment)
	}
	copy(out[end:], " / ")
	copy(out[end+3:], comment)
	return nil
}

func putText(out []byte, text string) error {
	if err := checkPrintable(text); err != nil {
		return err
	}
	if len(text) > len(out) {
		return fmt.Errorf("%w: commentary text overflows record", ErrInvalidRecord)
	}
	copy(out, text)
	return nil
}

// checkPrintable rejects anything outside ASCII 0x20..0x7E, the only bytes
// a header record may contain.
func checkPrintable(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return fmt.Errorf("%w: non-printable byte 0x%02x", ErrInvalidRecord, s[i])
		}
	}
	return nil
}
