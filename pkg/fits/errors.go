package fits

import "errors"

var (
	// ErrNotFits is returned when the primary header is absent or does
	// not open with SIMPLE = T.
	ErrNotFits = errors.New("fits: not a FITS file")

	// ErrTruncated is returned when the file ends mid-block or mid-HDU.
	ErrTruncated = errors.New("fits: truncated file")

	// ErrInvalidRecord is returned when an 80-byte header record
	// violates the FITS record grammar.
	ErrInvalidRecord = errors.New("fits: invalid header record")

	// ErrMissingKeyword is returned when a structural keyword required
	// for the HDU kind is absent.
	ErrMissingKeyword = errors.New("fits: missing keyword")

	// ErrWrongValueKind is returned when a typed accessor cannot coerce
	// the stored value, or a payload is accessed as the wrong kind.
	ErrWrongValueKind = errors.New("fits: wrong value kind")

	// ErrUnsupportedBitpix is returned for BITPIX values outside
	// {8, 16, 32, 64, -32, -64}.
	ErrUnsupportedBitpix = errors.New("fits: unsupported BITPIX")

	// ErrUnsupportedConversion is returned when an image cannot be
	// represented losslessly at the requested element type.
	ErrUnsupportedConversion = errors.New("fits: unsupported conversion")

	// ErrInvalidPrimary is returned when a mutation leaves the container
	// without a valid primary HDU at index 0.
	ErrInvalidPrimary = errors.New("fits: invalid primary HDU")
)
