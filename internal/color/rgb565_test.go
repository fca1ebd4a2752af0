package color

import (
	"bytes"
	"encoding/binary"
	"image"
	stdcolor "image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/framelink/internal/v4l2"
)

func TestPack(t *testing.T) {
	assert.Equal(t, uint16(0xF800), Pack(0xFF, 0, 0))
	assert.Equal(t, uint16(0x07E0), Pack(0, 0xFF, 0))
	assert.Equal(t, uint16(0x001F), Pack(0, 0, 0xFF))
	assert.Equal(t, uint16(0xFFFF), Pack(0xFF, 0xFF, 0xFF))
	// Low bits of each channel are discarded.
	assert.Equal(t, uint16(0x11AA), Pack(0x12, 0x34, 0x56))
	assert.Equal(t, uint16(0x0000), Pack(0x07, 0x03, 0x07))
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pixelAt(out []byte, width, x, y int) uint16 {
	return binary.LittleEndian.Uint16(out[2*(y*width+x):])
}

// A 2x2 source with known corner colours scaled to 4x4: every output pixel
// maps to source (x*2/4, y*2/4).
func TestDecodeAndConvertNearestNeighbour(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, stdcolor.RGBA{0xFF, 0x00, 0x00, 0xFF})
	src.Set(1, 0, stdcolor.RGBA{0x00, 0xFF, 0x00, 0xFF})
	src.Set(0, 1, stdcolor.RGBA{0x00, 0x00, 0xFF, 0xFF})
	src.Set(1, 1, stdcolor.RGBA{0x12, 0x34, 0x56, 0xFF})

	out, err := DecodeAndConvert(encodePNG(t, src), 4, 4)
	require.NoError(t, err)
	require.Len(t, out, 4*4*2)

	want := [4][4]uint16{
		{0xF800, 0xF800, 0x07E0, 0x07E0},
		{0xF800, 0xF800, 0x07E0, 0x07E0},
		{0x001F, 0x001F, 0x11AA, 0x11AA},
		{0x001F, 0x001F, 0x11AA, 0x11AA},
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, want[y][x], pixelAt(out, 4, x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestDecodeAndConvertDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 1))
	for x := 0; x < 4; x++ {
		src.Set(x, 0, stdcolor.RGBA{uint8(x * 0x40), 0, 0, 0xFF})
	}

	out, err := DecodeAndConvert(encodePNG(t, src), 2, 1)
	require.NoError(t, err)
	// Samples source columns 0 and 2.
	assert.Equal(t, Pack(0x00, 0, 0), pixelAt(out, 2, 0, 0))
	assert.Equal(t, Pack(0x80, 0, 0), pixelAt(out, 2, 1, 0))
}

func TestDecodeAndConvertJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src.Set(x, y, stdcolor.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}))

	out, err := DecodeAndConvert(buf.Bytes(), 240, 240)
	require.NoError(t, err)
	assert.Len(t, out, 240*240*2)
	// Solid white survives JPEG exactly enough to saturate every channel's
	// top bits.
	assert.Equal(t, uint16(0xFFFF), pixelAt(out, 240, 120, 120))
}

func TestDecodeAndConvertRejectsGrayscale(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))

	_, err := DecodeAndConvert(buf.Bytes(), 4, 4)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestDecodeAndConvertRejectsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, stdcolor.NRGBA{0xFF, 0, 0, 0x80})

	_, err := DecodeAndConvert(encodePNG(t, src), 4, 4)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestDecodeAndConvertGarbage(t *testing.T) {
	_, err := DecodeAndConvert([]byte("not an image"), 4, 4)
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = DecodeAndConvert(nil, 0, 4)
	assert.Error(t, err)
}

func TestRGB24ToRGB565(t *testing.T) {
	// 2x1 source: red, blue. Upscale to 4x2.
	src := []byte{0xFF, 0, 0, 0, 0, 0xFF}
	out, err := RGB24ToRGB565(src, 2, 1, 4, 2)
	require.NoError(t, err)
	require.Len(t, out, 4*2*2)

	for y := 0; y < 2; y++ {
		assert.Equal(t, uint16(0xF800), pixelAt(out, 4, 0, y))
		assert.Equal(t, uint16(0xF800), pixelAt(out, 4, 1, y))
		assert.Equal(t, uint16(0x001F), pixelAt(out, 4, 2, y))
		assert.Equal(t, uint16(0x001F), pixelAt(out, 4, 3, y))
	}

	_, err = RGB24ToRGB565(src[:5], 2, 1, 4, 2)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestForFormat(t *testing.T) {
	f, err := ForFormat(v4l2.PixelFormatRGB565, 240, 240, 240, 240)
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = ForFormat(v4l2.PixelFormatRGB565, 320, 240, 240, 240)
	assert.Error(t, err)

	f, err = ForFormat(v4l2.PixelFormatRGB24, 1, 1, 2, 2)
	require.NoError(t, err)
	out, err := f([]byte{0, 0xFF, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE0, 0x07, 0xE0, 0x07, 0xE0, 0x07, 0xE0, 0x07}, out)

	f, err = ForFormat(v4l2.PixelFormatMJPEG, 640, 480, 240, 240)
	require.NoError(t, err)
	assert.NotNil(t, f)

	_, err = ForFormat(v4l2.PixelFormat(0x56595559), 1, 1, 1, 1)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
