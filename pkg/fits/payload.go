package fits

import (
	"fmt"
	"sync"
)

// Payload is the data region of one HDU. The raw block range is captured at
// read time; image decoding is deferred until first access and runs at most
// once. Concurrent readers observe the completed result through the
// sync.Once barrier.
type Payload struct {
	info     *hduInfo
	hduIndex int

	raw []byte // block-aligned payload region; nil when the HDU has no data

	once sync.Once
	img  *Image
	err  error
}

func newPayload(info *hduInfo, raw []byte, hduIndex int) *Payload {
	return &Payload{info: info, raw: raw, hduIndex: hduIndex}
}

// Kind returns the payload class.
func (p *Payload) Kind() Kind { return p.info.kind }

// Raw returns the undecoded block-aligned payload bytes, padding included.
// For kinds this package does not decode (tables, random groups, unknown
// extensions) this is the only access path.
func (p *Payload) Raw() []byte { return p.raw }

// Image decodes the payload as a typed image. The first call materializes
// the array; later calls return the same value. Non-image payloads fail
// with ErrWrongValueKind.
func (p *Payload) Image() (*Image, error) {
	if p.info.kind != KindImage {
		return nil, fmt.Errorf("%w: HDU %d payload is %s, not an image",
			ErrWrongValueKind, p.hduIndex, p.info.kind)
	}
	p.once.Do(func() {
		img, err := decodeImage(p.raw, p.info)
		if err != nil {
			p.err = fmt.Errorf("fits: HDU %d: %w", p.hduIndex, err)
			return
		}
		p.img = img
	})
	return p.img, p.err
}

// SetImage replaces the payload with a caller-supplied image. The raw block
// range is discarded; a later write re-encodes the image against the
// BITPIX, axes and scaling classified from the header when the file was
// read. Header edits made after reading are not consulted.
func (p *Payload) SetImage(im *Image) {
	p.info.kind = KindImage
	p.raw = nil
	p.once.Do(func() {}) // consume the one-shot slot
	p.img, p.err = im, nil
}

// encode renders the payload region, block padding included.
func (p *Payload) encode() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	if p.img == nil {
		return nil, nil
	}
	out, err := encodeImage(p.img, p.info)
	if err != nil {
		return nil, fmt.Errorf("fits: HDU %d: %w", p.hduIndex, err)
	}
	return out, nil
}
