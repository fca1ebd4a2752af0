package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestFrameLayout(t *testing.T) {
	b, err := Frame(0x01020304, []byte{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01, 0x02, 0x03, 0x04,
		0x00, 0x00, 0x00, 0x03,
		0xAA, 0xBB, 0xCC,
	}, b)
}

func TestFrameSizeFor240x240(t *testing.T) {
	b, err := Frame(7, make([]byte, 240*240*2))
	require.NoError(t, err)
	assert.Len(t, b, 115208)

	h, payload, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, Header{ID: 7, Length: 115200}, h)
	assert.Len(t, payload, 115200)
}

func TestParseShort(t *testing.T) {
	_, _, err := Parse([]byte{0, 0, 0, 1})
	assert.True(t, xerrors.Is(err, ErrShortFrame))

	_, _, err = Parse([]byte{0, 0, 0, 1, 0, 0, 0, 9, 1, 2})
	assert.True(t, xerrors.Is(err, ErrShortFrame))

	// frame_len with the top bit set must not wrap to a negative int.
	h, payload, err := Parse([]byte{0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff, 1, 2})
	assert.True(t, xerrors.Is(err, ErrShortFrame))
	assert.Nil(t, payload)
	assert.Equal(t, uint32(0xffffffff), h.Length)
}
