package fits

import "fmt"

// Bitpix is the value of the BITPIX keyword: the element type and width of
// an HDU payload. Positive codes are big-endian integers (unsigned for 8,
// two's complement otherwise), negative codes are big-endian IEEE-754 floats.
type Bitpix int

const (
	BitpixU8  Bitpix = 8
	BitpixI16 Bitpix = 16
	BitpixI32 Bitpix = 32
	BitpixI64 Bitpix = 64
	BitpixF32 Bitpix = -32
	BitpixF64 Bitpix = -64
)

// ParseBitpix validates a raw BITPIX code.
func ParseBitpix(code int64) (Bitpix, error) {
	switch Bitpix(code) {
	case BitpixU8, BitpixI16, BitpixI32, BitpixI64, BitpixF32, BitpixF64:
		return Bitpix(code), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitpix, code)
	}
}

// ByteWidth returns the on-disk element width in bytes.
func (b Bitpix) ByteWidth() int {
	w := int(b)
	if w < 0 {
		w = -w
	}
	return w / 8
}

func (b Bitpix) String() string {
	switch b {
	case BitpixU8:
		return "u8"
	case BitpixI16:
		return "i16"
	case BitpixI32:
		return "i32"
	case BitpixI64:
		return "i64"
	case BitpixF32:
		return "f32"
	case BitpixF64:
		return "f64"
	default:
		return fmt.Sprintf("bitpix(%d)", int(b))
	}
}
