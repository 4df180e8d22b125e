package fits

import (
	"fmt"
	"io"
)

// blockView provides block-indexed access over a whole-file byte view.
// Centralizing the 2880-byte discipline here keeps the rest of the codec
// oblivious to alignment.
type blockView struct {
	data []byte
}

func (v blockView) count() int { return len(v.data) / BlockSize }

// tail returns everything from the given block onward.
func (v blockView) tail(idx int) ([]byte, error) {
	lo := idx * BlockSize
	if lo < 0 || lo > len(v.data) {
		return nil, fmt.Errorf("%w: block %d beyond end of file", ErrTruncated, idx)
	}
	return v.data[lo:], nil
}

// slice returns count contiguous blocks starting at start.
func (v blockView) slice(start, count int) ([]byte, error) {
	lo := start * BlockSize
	hi := lo + count*BlockSize
	if lo < 0 || count < 0 || hi > len(v.data) {
		return nil, fmt.Errorf("%w: blocks [%d, %d) beyond end of file",
			ErrTruncated, start, start+count)
	}
	return v.data[lo:hi], nil
}

// blockWriter counts written bytes so output can be padded to the block
// grid.
type blockWriter struct {
	w io.Writer
	n int64
}

func (bw *blockWriter) write(p []byte) error {
	n, err := bw.w.Write(p)
	bw.n += int64(n)
	return err
}

// pad fills to the next block boundary with the given byte.
func (bw *blockWriter) pad(fill byte) error {
	rem := int(bw.n % BlockSize)
	if rem == 0 {
		return nil
	}
	buf := make([]byte, BlockSize-rem)
	for i := range buf {
		buf[i] = fill
	}
	return bw.write(buf)
}
