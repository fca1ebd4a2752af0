package wire

import "encoding/binary"

// Header fields are sent in network byte order.
var networkOrder = binary.BigEndian

type writer struct {
	buffer []byte
	offset int
}

func newWriter(buffer []byte) *writer {
	return &writer{buffer, 0}
}

func (w *writer) writeUint32(v uint32) {
	networkOrder.PutUint32(w.buffer[w.offset:], v)
	w.offset += 4
}

func (w *writer) writeSlice(p []byte) {
	w.offset += copy(w.buffer[w.offset:], p)
}

// Return a slice of the bytes written so far.
func (w *writer) bytes() []byte {
	return w.buffer[0:w.offset]
}
