package fits

import (
	"errors"
	"fmt"
	"math"
)

// hduInfo is the classification of one header: payload kind, element
// geometry, and the scaling constants that apply to image decode.
type hduInfo struct {
	kind         Kind
	bitpix       Bitpix
	axes         []int // FITS axis order: NAXIS1 first
	pcount       int64
	gcount       int64
	bzero        float64
	bscale       float64
	blank        int64
	blankSet     bool
	payloadBytes int64
}

// blocks returns the block count of the payload region.
func (inf *hduInfo) blocks() int64 {
	return (inf.payloadBytes + BlockSize - 1) / BlockSize
}

func (inf *hduInfo) elementCount() int64 {
	if len(inf.axes) == 0 {
		return 0
	}
	n := int64(1)
	for _, ax := range inf.axes {
		n *= int64(ax)
	}
	return n
}

// scaled reports whether BZERO/BSCALE deviate from the identity (0, 1).
func (inf *hduInfo) scaled() bool {
	return inf.bzero != 0 || inf.bscale != 1
}

// classify derives the payload kind and geometry from a parsed header.
// primary selects the primary-HDU rules (SIMPLE instead of XTENSION).
func classify(h *Header, primary bool) (*hduInfo, error) {
	inf := &hduInfo{bscale: 1, gcount: 1}

	if primary {
		simple, err := h.Logical(kwSimple)
		if err != nil {
			return nil, err
		}
		if !simple {
			return nil, fmt.Errorf("%w: SIMPLE = F", ErrNotFits)
		}
		inf.kind = KindImage
	} else {
		xt, err := h.String(kwXtension)
		if err != nil {
			return nil, err
		}
		switch xt {
		case "IMAGE":
			inf.kind = KindImage
		case "TABLE":
			inf.kind = KindAsciiTable
		case "BINTABLE":
			inf.kind = KindBinaryTable
		default:
			inf.kind = KindOther
		}
	}

	code, err := h.Integer(kwBitpix)
	if err != nil {
		return nil, err
	}
	inf.bitpix, err = ParseBitpix(code)
	if err != nil {
		return nil, err
	}

	naxis, err := h.Integer(kwNaxis)
	if err != nil {
		return nil, err
	}
	if naxis < 0 || naxis > 999 {
		return nil, fmt.Errorf("%w: NAXIS = %d", ErrInvalidRecord, naxis)
	}
	inf.axes = make([]int, naxis)
	for i := range inf.axes {
		ax, err := h.Integer(fmt.Sprintf("%s%d", kwNaxis, i+1))
		if err != nil {
			return nil, err
		}
		if ax < 0 {
			return nil, fmt.Errorf("%w: NAXIS%d = %d", ErrInvalidRecord, i+1, ax)
		}
		inf.axes[i] = int(ax)
	}

	if v, err := h.Integer(kwPcount); err == nil {
		inf.pcount = v
	} else if !errors.Is(err, ErrMissingKeyword) {
		return nil, err
	}
	if v, err := h.Integer(kwGcount); err == nil {
		inf.gcount = v
	} else if !errors.Is(err, ErrMissingKeyword) {
		return nil, err
	}
	if v, err := h.Real(kwBzero); err == nil {
		inf.bzero = v
	} else if !errors.Is(err, ErrMissingKeyword) {
		return nil, err
	}
	if v, err := h.Real(kwBscale); err == nil {
		inf.bscale = v
	} else if !errors.Is(err, ErrMissingKeyword) {
		return nil, err
	}
	if v, err := h.Integer(kwBlank); err == nil {
		inf.blank = v
		inf.blankSet = true
	}

	// Random groups declare GROUPS = T with a zero first axis; their
	// element count skips that axis.
	groups, _ := h.Logical(kwGroups)
	elems := inf.elementCount()
	if groups && len(inf.axes) > 0 && inf.axes[0] == 0 {
		inf.kind = KindRandomGroups
		elems = 1
		for _, ax := range inf.axes[1:] {
			elems *= int64(ax)
		}
	}

	if inf.kind == KindImage && elems == 0 {
		inf.kind = KindNoData
	}

	width := int64(inf.bitpix.ByteWidth())
	inf.payloadBytes = width * inf.gcount * (inf.pcount + elems)
	if elems == 0 && inf.kind == KindNoData {
		inf.payloadBytes = 0
	}
	if inf.payloadBytes < 0 || inf.payloadBytes > math.MaxInt64/2 {
		return nil, fmt.Errorf("%w: implausible payload size", ErrInvalidRecord)
	}
	return inf, nil
}
