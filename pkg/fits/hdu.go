package fits

// HDU is one Header-Data-Unit: a header bound to its (possibly deferred)
// payload.
type HDU struct {
	header  *Header
	payload *Payload
}

// Header returns the HDU header.
func (h *HDU) Header() *Header { return h.header }

// Payload returns the HDU payload. Accessing an image through it triggers
// the deferred decode.
func (h *HDU) Payload() *Payload { return h.payload }

// Kind returns the payload class determined from the header.
func (h *HDU) Kind() Kind { return h.payload.info.kind }

// Name returns the EXTNAME of the HDU, or "" when unset.
func (h *HDU) Name() string {
	s, err := h.header.String(kwExtname)
	if err != nil {
		return ""
	}
	return s
}

// Bitpix returns the declared element code of the payload.
func (h *HDU) Bitpix() Bitpix { return h.payload.info.bitpix }

// Axes returns the NAXIS list in FITS order (axis 1 first).
func (h *HDU) Axes() []int {
	return append([]int(nil), h.payload.info.axes...)
}
