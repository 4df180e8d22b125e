package fits

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sys/unix"
)

// Fits is an open container: the ordered HDU sequence of one file over a
// shared byte view. A Fits value owns its backing mapping and buffers;
// slices handed out by Payload.Raw must not be retained after Close.
//
// Mutations require exclusive access. Read-only use of distinct HDUs may
// proceed concurrently; image materialization is one-shot per payload.
type Fits struct {
	data    []byte
	mmapped bool
	hdus    []*HDU
}

var gzipMagic = []byte{0x1f, 0x8b}

// Open reads a FITS file from disk. The file is mapped read-only where
// mmap is available, with a ReadAt fallback otherwise. Gzip-compressed
// files (.fits.gz) are detected by magic and inflated into memory.
func Open(path string) (*Fits, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := st.Size()
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("fits: %s does not fit in memory", path)
	}
	size := int(size64)

	var magic [2]byte
	if n, _ := f.ReadAt(magic[:], 0); n == 2 && bytes.Equal(magic[:], gzipMagic) {
		return openGzip(f)
	}

	// Prefer mmap: header walks and deferred payload decodes then touch
	// only the pages they need.
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		ff, perr := parseData(data, true)
		if perr != nil {
			_ = unix.Munmap(data)
			return nil, perr
		}
		return ff, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parseData(data, false)
}

func openGzip(f *os.File) (*Fits, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return parseData(data, false)
}

// OpenReader buffers an entire stream in memory and parses it. This is the
// path for non-seekable inputs; gzip input is detected here as well.
func OpenReader(r io.Reader) (*Fits, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) >= 2 && bytes.Equal(data[:2], gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		if data, err = io.ReadAll(zr); err != nil {
			return nil, err
		}
	}
	return parseData(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

// parseData walks the block sequence: header, classification, payload
// region, next HDU. The HDU spans must tile the file exactly.
func parseData(data []byte, mmapped bool) (*Fits, error) {
	if len(data) < BlockSize {
		return nil, ErrNotFits
	}
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of %d", ErrTruncated, len(data), BlockSize)
	}

	f := &Fits{data: data, mmapped: mmapped}
	view := blockView{data: data}
	cursor := 0
	for cursor < view.count() {
		idx := len(f.hdus)
		tail, err := view.tail(cursor)
		if err != nil {
			return nil, err
		}
		h, hblocks, err := parseHeader(tail, int64(cursor)*BlockSize)
		if err != nil {
			if idx == 0 {
				return nil, fmt.Errorf("%w: %w", ErrNotFits, err)
			}
			return nil, fmt.Errorf("fits: HDU %d: %w", idx, err)
		}
		if idx == 0 && !h.Has(kwSimple) {
			return nil, ErrNotFits
		}
		if idx > 0 && !h.Has(kwXtension) {
			return nil, fmt.Errorf("%w: HDU %d: XTENSION", ErrMissingKeyword, idx)
		}

		inf, err := classify(h, idx == 0)
		if err != nil {
			return nil, fmt.Errorf("fits: HDU %d: %w", idx, err)
		}
		cursor += hblocks

		pblocks := int(inf.blocks())
		raw, err := view.slice(cursor, pblocks)
		if err != nil {
			return nil, fmt.Errorf("fits: HDU %d: %w", idx, err)
		}
		if pblocks == 0 {
			raw = nil
		}
		f.hdus = append(f.hdus, &HDU{header: h, payload: newPayload(inf, raw, idx)})
		cursor += pblocks
	}
	return f, nil
}

// NHDUs returns the number of HDUs.
func (f *Fits) NHDUs() int { return len(f.hdus) }

// HDU returns the i-th HDU, or nil when out of range. Index 0 is the
// primary HDU.
func (f *Fits) HDU(i int) *HDU {
	if i < 0 || i >= len(f.hdus) {
		return nil
	}
	return f.hdus[i]
}

// HDUs returns the HDU sequence. The slice is shared; treat it as
// read-only.
func (f *Fits) HDUs() []*HDU { return f.hdus }

// RemoveHDU detaches the i-th HDU, shifting later indices down by one. The
// detached HDU's buffers stay valid until Close. Removing index 0 requires
// the following HDU to qualify as a primary (SIMPLE = T), which extension
// HDUs do not.
func (f *Fits) RemoveHDU(i int) (*HDU, error) {
	if i < 0 || i >= len(f.hdus) {
		return nil, fmt.Errorf("fits: HDU %d out of range", i)
	}
	if i == 0 {
		if len(f.hdus) == 1 {
			return nil, fmt.Errorf("%w: cannot remove the only HDU", ErrInvalidPrimary)
		}
		if ok, err := f.hdus[1].header.Logical(kwSimple); err != nil || !ok {
			return nil, fmt.Errorf("%w: HDU 1 cannot serve as primary", ErrInvalidPrimary)
		}
	}
	hdu := f.hdus[i]
	f.hdus = append(f.hdus[:i], f.hdus[i+1:]...)
	return hdu, nil
}

// Close releases the mapping and drops all HDUs. Using payloads or raw
// slices after Close is invalid.
func (f *Fits) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data = nil
	f.hdus = nil
	f.mmapped = false
	return err
}
