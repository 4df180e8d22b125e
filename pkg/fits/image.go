package fits

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/samcharles93/fitskit/pkg/ndarray"
)

// DType is the in-memory element type of a decoded image. The set is
// closed: the six native BITPIX types plus the two unsigned types reachable
// through the BZERO shift convention.
type DType uint8

const (
	DTypeU8 DType = iota
	DTypeI16
	DTypeI32
	DTypeI64
	DTypeU16
	DTypeU32
	DTypeF32
	DTypeF64
)

func (d DType) String() string {
	switch d {
	case DTypeU8:
		return "u8"
	case DTypeI16:
		return "i16"
	case DTypeI32:
		return "i32"
	case DTypeI64:
		return "i64"
	case DTypeU16:
		return "u16"
	case DTypeU32:
		return "u32"
	case DTypeF32:
		return "f32"
	case DTypeF64:
		return "f64"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Image is a decoded image payload: one typed row-major buffer plus its
// shape. FITS stores axis 1 fastest, so the row-major shape is the NAXIS
// list reversed and the last dimension corresponds to NAXIS1.
type Image struct {
	dtype DType
	shape []int
	data  any // []uint8 | []int16 | ... matching dtype

	// BLANK sentinel from the header. Raw bits pass through the decoder
	// untouched; only Stats consults this.
	blank    int64
	blankSet bool
}

// NewImage wraps an ndarray as an image payload.
func NewImage[T ndarray.Elem](arr *ndarray.Array[T]) (*Image, error) {
	var dtype DType
	switch any(arr.Data()).(type) {
	case []uint8:
		dtype = DTypeU8
	case []int16:
		dtype = DTypeI16
	case []int32:
		dtype = DTypeI32
	case []int64:
		dtype = DTypeI64
	case []uint16:
		dtype = DTypeU16
	case []uint32:
		dtype = DTypeU32
	case []float32:
		dtype = DTypeF32
	case []float64:
		dtype = DTypeF64
	default:
		return nil, fmt.Errorf("%w: element type %T", ErrUnsupportedConversion, arr.Data())
	}
	return &Image{dtype: dtype, shape: arr.Shape(), data: arr.Data()}, nil
}

// DType returns the element type of the image.
func (im *Image) DType() DType { return im.dtype }

// Shape returns the row-major dimensions; the last entry is FITS axis 1.
func (im *Image) Shape() []int { return append([]int(nil), im.shape...) }

// Len returns the element count.
func (im *Image) Len() int {
	n := 1
	for _, s := range im.shape {
		n *= s
	}
	return n
}

func (im *Image) U8() (*ndarray.Array[uint8], error)   { return imageArray[uint8](im, DTypeU8) }
func (im *Image) I16() (*ndarray.Array[int16], error)  { return imageArray[int16](im, DTypeI16) }
func (im *Image) I32() (*ndarray.Array[int32], error)  { return imageArray[int32](im, DTypeI32) }
func (im *Image) I64() (*ndarray.Array[int64], error)  { return imageArray[int64](im, DTypeI64) }
func (im *Image) U16() (*ndarray.Array[uint16], error) { return imageArray[uint16](im, DTypeU16) }
func (im *Image) U32() (*ndarray.Array[uint32], error) { return imageArray[uint32](im, DTypeU32) }
func (im *Image) F32() (*ndarray.Array[float32], error) {
	return imageArray[float32](im, DTypeF32)
}
func (im *Image) F64() (*ndarray.Array[float64], error) {
	return imageArray[float64](im, DTypeF64)
}

func imageArray[T ndarray.Elem](im *Image, want DType) (*ndarray.Array[T], error) {
	if im.dtype != want {
		return nil, fmt.Errorf("%w: image is %s, want %s", ErrUnsupportedConversion, im.dtype, want)
	}
	return ndarray.New(im.data.([]T), im.shape...)
}

// Stats scans the image and returns its minimum and maximum. NaN pixels
// and, for integer images decoded without BZERO/BSCALE scaling,
// BLANK-valued pixels are skipped; u16/u32 and rescaled images do not
// consult BLANK. ok is false when no valid pixel exists.
func (im *Image) Stats() (minv, maxv float64, ok bool) {
	minv, maxv = math.Inf(1), math.Inf(-1)
	consider := func(v float64, isBlank bool) {
		if isBlank || math.IsNaN(v) {
			return
		}
		ok = true
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
	}
	switch data := im.data.(type) {
	case []uint8:
		for _, v := range data {
			consider(float64(v), im.blankSet && int64(v) == im.blank)
		}
	case []int16:
		for _, v := range data {
			consider(float64(v), im.blankSet && int64(v) == im.blank)
		}
	case []int32:
		for _, v := range data {
			consider(float64(v), im.blankSet && int64(v) == im.blank)
		}
	case []int64:
		for _, v := range data {
			consider(float64(v), im.blankSet && v == im.blank)
		}
	case []uint16:
		for _, v := range data {
			consider(float64(v), false)
		}
	case []uint32:
		for _, v := range data {
			consider(float64(v), false)
		}
	case []float32:
		for _, v := range data {
			consider(float64(v), false)
		}
	case []float64:
		for _, v := range data {
			consider(v, false)
		}
	}
	if !ok {
		return 0, 0, false
	}
	return minv, maxv, true
}

// rowMajorShape reverses the FITS axis list (axis 1 varies fastest on
// disk) into row-major order.
func rowMajorShape(axes []int) []int {
	out := make([]int, len(axes))
	for i, ax := range axes {
		out[len(axes)-1-i] = ax
	}
	return out
}

// Unsigned-shift constants: an integer image whose BZERO offsets the signed
// range by exactly half is the FITS convention for unsigned storage.
const (
	u16Shift = 32768
	u32Shift = 2147483648
)

type scaleMode uint8

const (
	scaleNone scaleMode = iota
	scaleU16
	scaleU32
	scaleFloat
)

func (inf *hduInfo) scaleMode() scaleMode {
	switch {
	case !inf.scaled():
		return scaleNone
	case inf.bitpix == BitpixI16 && inf.bzero == u16Shift && inf.bscale == 1:
		return scaleU16
	case inf.bitpix == BitpixI32 && inf.bzero == u32Shift && inf.bscale == 1:
		return scaleU32
	default:
		return scaleFloat
	}
}

// floatTarget picks the element type of a rescaled image: f64 when either
// constant is non-integral, otherwise the natural float width of the raw
// type.
func (inf *hduInfo) floatTarget() DType {
	if inf.bzero != math.Trunc(inf.bzero) || inf.bscale != math.Trunc(inf.bscale) {
		return DTypeF64
	}
	switch inf.bitpix {
	case BitpixU8, BitpixI16, BitpixF32:
		return DTypeF32
	default:
		return DTypeF64
	}
}

// decodeImage converts the big-endian payload region into a typed image.
// raw may extend past the element data into block padding; the tail is
// ignored.
func decodeImage(raw []byte, inf *hduInfo) (*Image, error) {
	n := int(inf.elementCount())
	width := inf.bitpix.ByteWidth()
	if len(raw) < n*width {
		return nil, fmt.Errorf("%w: payload has %d bytes, need %d", ErrTruncated, len(raw), n*width)
	}
	shape := rowMajorShape(inf.axes)
	im := &Image{shape: shape}

	switch inf.bitpix {
	case BitpixU8:
		data := make([]uint8, n)
		copy(data, raw[:n])
		im.dtype, im.data = DTypeU8, data
	case BitpixI16:
		data := make([]int16, n)
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				data[i] = int16(binary.BigEndian.Uint16(raw[i*2:]))
			}
		})
		im.dtype, im.data = DTypeI16, data
	case BitpixI32:
		data := make([]int32, n)
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				data[i] = int32(binary.BigEndian.Uint32(raw[i*4:]))
			}
		})
		im.dtype, im.data = DTypeI32, data
	case BitpixI64:
		data := make([]int64, n)
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				data[i] = int64(binary.BigEndian.Uint64(raw[i*8:]))
			}
		})
		im.dtype, im.data = DTypeI64, data
	case BitpixF32:
		data := make([]float32, n)
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				data[i] = math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))
			}
		})
		im.dtype, im.data = DTypeF32, data
	case BitpixF64:
		data := make([]float64, n)
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				data[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
			}
		})
		im.dtype, im.data = DTypeF64, data
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitpix, inf.bitpix)
	}

	switch inf.scaleMode() {
	case scaleNone:
		if inf.bitpix > 0 && inf.blankSet {
			im.blank, im.blankSet = inf.blank, true
		}
		return im, nil
	case scaleU16:
		src := im.data.([]int16)
		data := make([]uint16, n)
		for i, v := range src {
			data[i] = uint16(int32(v) + u16Shift)
		}
		im.dtype, im.data = DTypeU16, data
		return im, nil
	case scaleU32:
		src := im.data.([]int32)
		data := make([]uint32, n)
		for i, v := range src {
			data[i] = uint32(int64(v) + u32Shift)
		}
		im.dtype, im.data = DTypeU32, data
		return im, nil
	default:
		return rescaleFloat(im, inf)
	}
}

// rescaleFloat applies physical = BZERO + BSCALE * raw.
func rescaleFloat(im *Image, inf *hduInfo) (*Image, error) {
	target := inf.floatTarget()
	n := im.Len()
	at := rawAt(im)

	if target == DTypeF32 {
		z, s := float32(inf.bzero), float32(inf.bscale)
		data := make([]float32, n)
		for i := range data {
			data[i] = z + s*float32(at(i))
		}
		im.dtype, im.data = DTypeF32, data
		return im, nil
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = inf.bzero + inf.bscale*at(i)
	}
	im.dtype, im.data = DTypeF64, data
	return im, nil
}

// rawAt returns an indexed float64 view over the image's raw buffer.
func rawAt(im *Image) func(int) float64 {
	switch data := im.data.(type) {
	case []uint8:
		return func(i int) float64 { return float64(data[i]) }
	case []int16:
		return func(i int) float64 { return float64(data[i]) }
	case []int32:
		return func(i int) float64 { return float64(data[i]) }
	case []int64:
		return func(i int) float64 { return float64(data[i]) }
	case []float32:
		return func(i int) float64 { return float64(data[i]) }
	default:
		d := im.data.([]float64)
		return func(i int) float64 { return d[i] }
	}
}

// encodeImage renders the image as big-endian payload bytes for the given
// classification, padded to a block boundary with NUL. The element type
// must map losslessly onto the header's BITPIX and scaling; anything else
// is an unsupported conversion.
func encodeImage(im *Image, inf *hduInfo) ([]byte, error) {
	n := im.Len()
	if int64(n) != inf.elementCount() {
		return nil, fmt.Errorf("%w: image has %d elements, header declares %d",
			ErrUnsupportedConversion, n, inf.elementCount())
	}
	width := inf.bitpix.ByteWidth()
	padded := int((int64(n)*int64(width) + BlockSize - 1) / BlockSize * BlockSize)
	out := make([]byte, padded)

	mode := inf.scaleMode()
	ok := false
	switch im.dtype {
	case DTypeU8:
		ok = inf.bitpix == BitpixU8 && mode == scaleNone
	case DTypeI16:
		ok = inf.bitpix == BitpixI16 && mode == scaleNone
	case DTypeI32:
		ok = inf.bitpix == BitpixI32 && mode == scaleNone
	case DTypeI64:
		ok = inf.bitpix == BitpixI64 && mode == scaleNone
	case DTypeU16:
		ok = mode == scaleU16
	case DTypeU32:
		ok = mode == scaleU32
	case DTypeF32:
		ok = inf.bitpix == BitpixF32 && mode == scaleNone
	case DTypeF64:
		ok = inf.bitpix == BitpixF64 && mode == scaleNone
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot store %s at BITPIX %d with BZERO=%g BSCALE=%g",
			ErrUnsupportedConversion, im.dtype, inf.bitpix, inf.bzero, inf.bscale)
	}

	switch data := im.data.(type) {
	case []uint8:
		copy(out, data)
	case []int16:
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				binary.BigEndian.PutUint16(out[i*2:], uint16(data[i]))
			}
		})
	case []int32:
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				binary.BigEndian.PutUint32(out[i*4:], uint32(data[i]))
			}
		})
	case []int64:
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				binary.BigEndian.PutUint64(out[i*8:], uint64(data[i]))
			}
		})
	case []uint16:
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				binary.BigEndian.PutUint16(out[i*2:], uint16(int32(data[i])-u16Shift))
			}
		})
	case []uint32:
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				binary.BigEndian.PutUint32(out[i*4:], uint32(int64(data[i])-u32Shift))
			}
		})
	case []float32:
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(data[i]))
			}
		})
	case []float64:
		forRanges(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				binary.BigEndian.PutUint64(out[i*8:], math.Float64bits(data[i]))
			}
		})
	}
	return out, nil
}

// parallelThreshold is the element count above which byte-order conversion
// fans out across goroutines.
const parallelThreshold = 1 << 16

// forRanges splits [0, n) across the available CPUs. Chunks are whole
// element ranges, so conversions never straddle a boundary.
func forRanges(n int, fn func(lo, hi int)) {
	workers := runtime.GOMAXPROCS(0)
	if n < parallelThreshold || workers < 2 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(lo, hi)
		}()
	}
	wg.Wait()
}
