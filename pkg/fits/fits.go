// Package fits reads and writes FITS (Flexible Image Transport System)
// container files.
//
// FITS is the standard archival format for astronomical data. A file is a
// sequence of Header-Data-Units (HDUs); each HDU carries a textual header of
// 80-byte keyword records followed by an optional typed payload, with both
// padded out to 2880-byte blocks. This package implements the container
// codec itself: block framing, record parsing, header modelling, HDU
// classification, and the big-endian image decoder/encoder. Image payloads
// decode into row-major ndarray values; ASCII tables, binary tables and
// random-group payloads are classified and carried as raw blocks.
//
// The package follows version 4.0 of the FITS standard:
//
//	Definition of the Flexible Image Transport System (FITS), version 4.0,
//	A&A 524, A42 (2010), https://fits.gsfc.nasa.gov/fits_standard.html
//
// Typical use:
//
//	f, err := fits.Open("m31.fits")
//	if err != nil { ... }
//	defer f.Close()
//	img, err := f.HDU(1).Payload().Image()
//	arr, err := img.F32()
package fits

// FITS framing constants. These never change.
const (
	// BlockSize is the FITS alignment unit. Headers and payloads are
	// always padded to a whole number of blocks.
	BlockSize = 2880

	// RecordSize is the length of one header keyword record.
	RecordSize = 80

	recordsPerBlock = BlockSize / RecordSize // 36
)

// Header pads with ASCII space, binary payloads with NUL.
const (
	headerFill  = 0x20
	payloadFill = 0x00
)

// Kind discriminates the payload class of an HDU, derived from its header.
type Kind uint8

const (
	// KindNoData marks an HDU whose header declares no payload (NAXIS=0
	// or a zero-length axis).
	KindNoData Kind = iota
	KindImage
	KindAsciiTable
	KindBinaryTable
	KindRandomGroups
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNoData:
		return "nodata"
	case KindImage:
		return "image"
	case KindAsciiTable:
		return "table"
	case KindBinaryTable:
		return "bintable"
	case KindRandomGroups:
		return "randomgroups"
	default:
		return "other"
	}
}

// Structural keywords referenced throughout the codec.
const (
	kwSimple   = "SIMPLE"
	kwXtension = "XTENSION"
	kwBitpix   = "BITPIX"
	kwNaxis    = "NAXIS"
	kwPcount   = "PCOUNT"
	kwGcount   = "GCOUNT"
	kwGroups   = "GROUPS"
	kwBzero    = "BZERO"
	kwBscale   = "BSCALE"
	kwBlank    = "BLANK"
	kwExtname  = "EXTNAME"
	kwEnd      = "END"
	kwComment  = "COMMENT"
	kwHistory  = "HISTORY"
	kwContinue = "CONTINUE"
)
