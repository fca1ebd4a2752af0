package wire

import "golang.org/x/xerrors"

type reader struct {
	buffer []byte
	offset int
}

func newReader(buffer []byte) *reader {
	return &reader{buffer, 0}
}

func (r *reader) readUint32() uint32 {
	v := networkOrder.Uint32(r.buffer[r.offset:])
	r.offset += 4
	return v
}

func (r *reader) readSlice(n int) []byte {
	v := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return v
}

// Return the number of bytes left in the buffer.
func (r *reader) remaining() int {
	return len(r.buffer) - r.offset
}

func (r *reader) checkRemaining(needed int) error {
	if r.remaining() < needed {
		return xerrors.Errorf("%d bytes remaining, %d needed: %w", r.remaining(), needed, ErrShortFrame)
	}
	return nil
}
