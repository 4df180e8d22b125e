package fits

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteTo serializes the container: per HDU the header blocks (space
// filled) followed by the payload blocks (NUL filled). The result is
// always a whole number of 2880-byte blocks.
func (f *Fits) WriteTo(w io.Writer) (int64, error) {
	bw := &blockWriter{w: w}
	for i, hdu := range f.hdus {
		hb, err := hdu.header.Encode()
		if err != nil {
			return bw.n, fmt.Errorf("fits: HDU %d: %w", i, err)
		}
		if err := bw.write(hb); err != nil {
			return bw.n, err
		}
		if err := bw.pad(headerFill); err != nil {
			return bw.n, err
		}

		pb, err := hdu.payload.encode()
		if err != nil {
			return bw.n, err
		}
		if len(pb) > 0 {
			if err := bw.write(pb); err != nil {
				return bw.n, err
			}
			if err := bw.pad(payloadFill); err != nil {
				return bw.n, err
			}
		}
	}
	return bw.n, nil
}

// Write serializes the container to path. The write is atomic at the file
// level: bytes go to a uniquely named temp file in the target directory
// which is renamed over path only after a successful sync, so a failed
// write never leaves a half-written FITS file behind.
func (f *Fits) Write(path string) error {
	if len(f.hdus) == 0 {
		return fmt.Errorf("%w: empty container", ErrInvalidPrimary)
	}

	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.WriteTo(out); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
