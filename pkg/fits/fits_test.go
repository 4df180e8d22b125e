package fits

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func primaryHeader(bitpix Bitpix, axes ...int) *Header {
	h := NewHeader()
	h.Append(KeywordRecord("SIMPLE", Logical(true), "conforms to FITS standard"))
	h.Append(KeywordRecord("BITPIX", Integer(int64(bitpix)), ""))
	h.Append(KeywordRecord("NAXIS", Integer(int64(len(axes))), ""))
	for i, ax := range axes {
		h.Append(KeywordRecord(fmt.Sprintf("NAXIS%d", i+1), Integer(int64(ax)), ""))
	}
	return h
}

func imageExtHeader(bitpix Bitpix, name string, axes ...int) *Header {
	h := NewHeader()
	h.Append(KeywordRecord("XTENSION", Str("IMAGE"), "image extension"))
	h.Append(KeywordRecord("BITPIX", Integer(int64(bitpix)), ""))
	h.Append(KeywordRecord("NAXIS", Integer(int64(len(axes))), ""))
	for i, ax := range axes {
		h.Append(KeywordRecord(fmt.Sprintf("NAXIS%d", i+1), Integer(int64(ax)), ""))
	}
	h.Append(KeywordRecord("PCOUNT", Integer(0), ""))
	h.Append(KeywordRecord("GCOUNT", Integer(1), ""))
	if name != "" {
		h.Append(KeywordRecord("EXTNAME", Str(name), ""))
	}
	return h
}

// segment renders one HDU: encoded header plus the payload padded to a
// block boundary.
func segment(t *testing.T, h *Header, payload []byte) []byte {
	t.Helper()
	out, err := h.Encode()
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	out = append(out, payload...)
	for len(out)%BlockSize != 0 {
		out = append(out, payloadFill)
	}
	return out
}

func i16Payload(vals []int16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.BigEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func f32Payload(vals []float32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.fits")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestOpenSixHDUs(t *testing.T) {
	t.Parallel()

	const nx, ny = 270, 263
	n := nx * ny
	f32data := make([]float32, n)
	i16data := make([]int16, n)
	for i := range f32data {
		f32data[i] = float32(i % 1000)
		i16data[i] = int16(i % 1000)
	}

	var file []byte
	file = append(file, segment(t, primaryHeader(BitpixU8), nil)...)
	for _, bp := range []Bitpix{BitpixF32, BitpixF32, BitpixI16, BitpixI16, BitpixF32} {
		if bp == BitpixI16 {
			file = append(file, segment(t, imageExtHeader(bp, "SCI", nx, ny), i16Payload(i16data))...)
		} else {
			file = append(file, segment(t, imageExtHeader(bp, "SCI", nx, ny), f32Payload(f32data))...)
		}
	}

	f, err := Open(writeTemp(t, file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.NHDUs() != 6 {
		t.Fatalf("NHDUs: got %d want 6", f.NHDUs())
	}
	if f.HDU(0).Kind() != KindNoData {
		t.Fatalf("primary kind: got %s", f.HDU(0).Kind())
	}
	if f.HDU(1).Name() != "SCI" {
		t.Fatalf("EXTNAME: got %q", f.HDU(1).Name())
	}

	img, err := f.HDU(3).Payload().Image()
	if err != nil {
		t.Fatalf("decode HDU 3: %v", err)
	}
	arr, err := img.I16()
	if err != nil {
		t.Fatalf("I16: %v", err)
	}
	if s := arr.Shape(); s[0] != ny || s[1] != nx {
		t.Fatalf("shape: got %v want [%d %d]", s, ny, nx)
	}
	if arr.At(0, 5) != i16data[5] || arr.At(1, 0) != i16data[nx] {
		t.Fatalf("element order wrong")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	vals := make([]int16, 100)
	for i := range vals {
		vals[i] = int16(i - 50)
	}
	var file []byte
	file = append(file, segment(t, primaryHeader(BitpixU8), nil)...)
	file = append(file, segment(t, imageExtHeader(BitpixI16, "", 10, 10), i16Payload(vals))...)

	f, err := Open(writeTemp(t, file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(len(file)) || !bytes.Equal(buf.Bytes(), file) {
		t.Fatalf("write is not byte-exact: %d bytes vs %d", n, len(file))
	}

	// Through the atomic path too.
	out := filepath.Join(t.TempDir(), "copy.fits")
	if err := f.Write(out); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, file) {
		t.Fatalf("file write is not byte-exact")
	}
	if len(got)%BlockSize != 0 {
		t.Fatalf("written size %d not a block multiple", len(got))
	}
}

func TestRemoveHDU(t *testing.T) {
	t.Parallel()

	segs := [][]byte{
		segment(t, primaryHeader(BitpixU8), nil),
		segment(t, imageExtHeader(BitpixI16, "A", 4), i16Payload([]int16{1, 2, 3, 4})),
		segment(t, imageExtHeader(BitpixI16, "B", 4), i16Payload([]int16{5, 6, 7, 8})),
		segment(t, imageExtHeader(BitpixI16, "C", 4), i16Payload([]int16{9, 10, 11, 12})),
	}
	var file []byte
	for _, s := range segs {
		file = append(file, s...)
	}

	f, err := Open(writeTemp(t, file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	removed, err := f.RemoveHDU(2)
	if err != nil {
		t.Fatalf("RemoveHDU: %v", err)
	}
	if removed.Name() != "B" {
		t.Fatalf("removed wrong HDU: %q", removed.Name())
	}
	if f.NHDUs() != 3 || f.HDU(2).Name() != "C" {
		t.Fatalf("indices did not shift: n=%d hdu2=%q", f.NHDUs(), f.HDU(2).Name())
	}

	out := filepath.Join(t.TempDir(), "pruned.fits")
	if err := f.Write(out); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := append(append(append([]byte(nil), segs[0]...), segs[1]...), segs[3]...)
	if !bytes.Equal(got, want) {
		t.Fatalf("pruned file differs from original minus removed blocks")
	}

	re, err := Open(out)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = re.Close() }()
	if re.NHDUs() != 3 {
		t.Fatalf("reopened NHDUs: got %d want 3", re.NHDUs())
	}
}

func TestRemovePrimaryGuard(t *testing.T) {
	t.Parallel()

	var file []byte
	file = append(file, segment(t, primaryHeader(BitpixU8), nil)...)
	file = append(file, segment(t, imageExtHeader(BitpixI16, "", 2), i16Payload([]int16{1, 2}))...)

	f, err := Open(writeTemp(t, file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.RemoveHDU(0); !errors.Is(err, ErrInvalidPrimary) {
		t.Fatalf("remove primary: %v", err)
	}
	if f.NHDUs() != 2 {
		t.Fatalf("failed removal mutated the container")
	}
}

func TestTruncatedPayload(t *testing.T) {
	t.Parallel()

	vals := make([]int16, 2000) // two payload blocks
	var file []byte
	file = append(file, segment(t, primaryHeader(BitpixU8), nil)...)
	file = append(file, segment(t, imageExtHeader(BitpixI16, "", 2000), i16Payload(vals))...)
	file = file[:len(file)-BlockSize]

	_, err := Open(writeTemp(t, file))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("got %v want ErrTruncated", err)
	}
	if !strings.Contains(err.Error(), "HDU 1") {
		t.Fatalf("error should name the HDU: %v", err)
	}
}

func TestNotAFits(t *testing.T) {
	t.Parallel()

	junk := bytes.Repeat([]byte("not a fits file "), BlockSize/16)
	if _, err := Open(writeTemp(t, junk)); !errors.Is(err, ErrNotFits) {
		t.Fatalf("junk: got %v want ErrNotFits", err)
	}

	// A conforming extension header in first position is not a primary.
	ext := segment(t, imageExtHeader(BitpixU8, ""), nil)
	if _, err := Open(writeTemp(t, ext)); !errors.Is(err, ErrNotFits) {
		t.Fatalf("extension first: got %v want ErrNotFits", err)
	}

	// SIMPLE = F is rejected outright.
	h := primaryHeader(BitpixU8)
	h.Set(KeywordRecord("SIMPLE", Logical(false), ""))
	if _, err := Open(writeTemp(t, segment(t, h, nil))); !errors.Is(err, ErrNotFits) {
		t.Fatalf("SIMPLE=F: got %v want ErrNotFits", err)
	}
}

func TestWrongKindAccess(t *testing.T) {
	t.Parallel()

	file := segment(t, primaryHeader(BitpixU8), nil)
	f, err := Open(writeTemp(t, file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.HDU(0).Payload().Image(); !errors.Is(err, ErrWrongValueKind) {
		t.Fatalf("image access on nodata HDU: %v", err)
	}
}

func TestTableSkippedStructurally(t *testing.T) {
	t.Parallel()

	// A binary table sits between two images; its payload is carried as
	// raw blocks and everything after it stays reachable.
	tbl := NewHeader()
	tbl.Append(KeywordRecord("XTENSION", Str("BINTABLE"), ""))
	tbl.Append(KeywordRecord("BITPIX", Integer(8), ""))
	tbl.Append(KeywordRecord("NAXIS", Integer(2), ""))
	tbl.Append(KeywordRecord("NAXIS1", Integer(12), "bytes per row"))
	tbl.Append(KeywordRecord("NAXIS2", Integer(3), "rows"))
	tbl.Append(KeywordRecord("PCOUNT", Integer(0), ""))
	tbl.Append(KeywordRecord("GCOUNT", Integer(1), ""))
	tbl.Append(KeywordRecord("TFIELDS", Integer(1), ""))

	rows := bytes.Repeat([]byte{0xAB}, 36)
	var file []byte
	file = append(file, segment(t, primaryHeader(BitpixU8), nil)...)
	file = append(file, segment(t, tbl, rows)...)
	file = append(file, segment(t, imageExtHeader(BitpixI16, "AFTER", 2), i16Payload([]int16{7, 8}))...)

	f, err := Open(writeTemp(t, file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.NHDUs() != 3 {
		t.Fatalf("NHDUs: got %d", f.NHDUs())
	}
	if f.HDU(1).Kind() != KindBinaryTable {
		t.Fatalf("table kind: got %s", f.HDU(1).Kind())
	}
	if _, err := f.HDU(1).Payload().Image(); !errors.Is(err, ErrWrongValueKind) {
		t.Fatalf("image access on table: %v", err)
	}
	raw := f.HDU(1).Payload().Raw()
	if len(raw) != BlockSize || !bytes.Equal(raw[:36], rows) {
		t.Fatalf("raw table payload not carried")
	}
	if f.HDU(2).Name() != "AFTER" {
		t.Fatalf("HDU after table: %q", f.HDU(2).Name())
	}
}

func TestF32SequenceRoundTrip(t *testing.T) {
	t.Parallel()

	// 3-axis image, NAXIS = (4, 5, 6), pixels 0..119 in disk order.
	vals := make([]float32, 120)
	for i := range vals {
		vals[i] = float32(i)
	}
	file := segment(t, primaryHeader(BitpixF32, 4, 5, 6), f32Payload(vals))

	f, err := Open(writeTemp(t, file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	img, err := f.HDU(0).Payload().Image()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr, err := img.F32()
	if err != nil {
		t.Fatalf("F32: %v", err)
	}
	if s := arr.Shape(); s[0] != 6 || s[1] != 5 || s[2] != 4 {
		t.Fatalf("shape: got %v want [6 5 4]", s)
	}
	for i, v := range arr.Data() {
		if v != float32(i) {
			t.Fatalf("element %d: got %g", i, v)
		}
	}
	// Axis 1 varies fastest: element (z, y, x) holds z*20 + y*4 + x.
	if arr.At(2, 3, 1) != 2*20+3*4+1 {
		t.Fatalf("At(2,3,1): got %g", arr.At(2, 3, 1))
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), file) {
		t.Fatalf("re-encoded bytes differ from input")
	}
}

func TestOpenGzip(t *testing.T) {
	t.Parallel()

	file := segment(t, primaryHeader(BitpixI16, 3), i16Payload([]int16{1, 2, 3}))

	path := filepath.Join(t.TempDir(), "test.fits.gz")
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := gzip.NewWriter(out)
	if _, err := zw.Write(file); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("open gz: %v", err)
	}
	defer func() { _ = f.Close() }()
	img, err := f.HDU(0).Payload().Image()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr, err := img.I16()
	if err != nil {
		t.Fatalf("I16: %v", err)
	}
	if d := arr.Data(); d[0] != 1 || d[2] != 3 {
		t.Fatalf("values: %v", d)
	}
}

func TestOpenReader(t *testing.T) {
	t.Parallel()

	file := segment(t, primaryHeader(BitpixU8, 4), []byte{9, 8, 7, 6})
	f, err := OpenReader(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer func() { _ = f.Close() }()
	img, err := f.HDU(0).Payload().Image()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr, err := img.U8()
	if err != nil {
		t.Fatalf("U8: %v", err)
	}
	if d := arr.Data(); d[0] != 9 || d[3] != 6 {
		t.Fatalf("values: %v", d)
	}
}

func TestLazyDecodeOneShot(t *testing.T) {
	t.Parallel()

	vals := make([]int16, 500)
	for i := range vals {
		vals[i] = int16(i)
	}
	file := segment(t, primaryHeader(BitpixI16, 500), i16Payload(vals))
	f, err := Open(writeTemp(t, file))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	p := f.HDU(0).Payload()
	results := make([]*Image, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := p.Image()
			if err != nil {
				t.Errorf("concurrent decode: %v", err)
				return
			}
			results[i] = img
		}()
	}
	wg.Wait()
	for _, img := range results[1:] {
		if img != results[0] {
			t.Fatalf("materialization ran more than once")
		}
	}
}

func TestFileSizeInvariant(t *testing.T) {
	t.Parallel()

	file := segment(t, primaryHeader(BitpixU8), nil)
	file = append(file, make([]byte, 100)...) // trailing partial block
	if _, err := Open(writeTemp(t, file)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("partial block: %v", err)
	}
}
