// Package wire frames outbound payloads.
//
// A framed payload is an 8-byte header followed by the frame bytes:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                            frame_id                           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           frame_len                           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                   frame_len bytes of payload                  |
//	|                             ....                              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// Both fields are big-endian. frame_id increases by one per published frame
// so the receiver can reorder or detect gaps.
package wire

import (
	"math"

	"golang.org/x/xerrors"
)

const HeaderSize = 8

var ErrShortFrame = xerrors.New("short frame")

type Header struct {
	ID     uint32
	Length uint32
}

// Frame returns a new slice holding the header for id followed by a copy of
// payload.
func Frame(id uint32, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, xerrors.Errorf("payload of %d bytes does not fit frame_len", len(payload))
	}
	w := newWriter(make([]byte, HeaderSize+len(payload)))
	w.writeUint32(id)
	w.writeUint32(uint32(len(payload)))
	w.writeSlice(payload)
	return w.bytes(), nil
}

// Parse splits a framed payload. The returned payload aliases b.
func Parse(b []byte) (Header, []byte, error) {
	r := newReader(b)
	if err := r.checkRemaining(HeaderSize); err != nil {
		return Header{}, nil, err
	}
	h := Header{ID: r.readUint32(), Length: r.readUint32()}
	// Compared unsigned: int(h.Length) is negative on 32-bit platforms once
	// the top bit is set.
	if uint64(h.Length) > uint64(r.remaining()) {
		return h, nil, xerrors.Errorf("frame %d: %d bytes remaining, %d needed: %w",
			h.ID, r.remaining(), h.Length, ErrShortFrame)
	}
	return h, r.readSlice(int(h.Length)), nil
}
