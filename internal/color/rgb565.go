// Copyright 2019 Lanikai Labs. All rights reserved.

// Package color converts captured frames to packed RGB565, the wire pixel
// format. Resizing is nearest-neighbour only.
package color

import (
	"bytes"
	"encoding/binary"
	"image"
	stdcolor "image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrDecode            = errors.New("image decode failed")
)

// Two bytes per pixel, row-major. The byte order matches what the receiving
// display expects.
var byteOrder = binary.LittleEndian

// BytesPerPixel of the packed output.
const BytesPerPixel = 2

// Pack an 8-bit-per-channel colour into RGB565: red in bits 15-11, green in
// bits 10-5, blue in bits 4-0, each taken from the channel's top bits.
func Pack(r, g, b uint8) uint16 {
	return uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b>>3)
}

// DecodeAndConvert decodes a compressed frame (JPEG or PNG), resizes it to
// width x height and packs it as RGB565. The source must have exactly three
// colour components.
func DecodeAndConvert(compressed []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid target size %dx%d", width, height)
	}

	img, format, err := image.Decode(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "%v", err)
	}
	if n := components(img); n != 3 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s with %d components", format, n)
	}

	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 {
		return nil, errors.Wrap(ErrUnsupportedFormat, "empty image")
	}

	var sample func(x, y int) (r, g, b uint8)
	switch m := img.(type) {
	case *image.RGBA:
		sample = func(x, y int) (uint8, uint8, uint8) {
			i := m.PixOffset(x, y)
			return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
		}
	case *image.YCbCr:
		sample = func(x, y int) (uint8, uint8, uint8) {
			yi, ci := m.YOffset(x, y), m.COffset(x, y)
			return stdcolor.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
		}
	}

	out := make([]byte, width*height*BytesPerPixel)
	o := 0
	for y := 0; y < height; y++ {
		sy := b.Min.Y + y*sh/height
		for x := 0; x < width; x++ {
			sx := b.Min.X + x*sw/width
			r, g, bl := sample(sx, sy)
			byteOrder.PutUint16(out[o:], Pack(r, g, bl))
			o += BytesPerPixel
		}
	}
	return out, nil
}

// RGB24ToRGB565 resizes a raw RGB24 frame of srcW x srcH to dstW x dstH and
// packs it as RGB565.
func RGB24ToRGB565(src []byte, srcW, srcH, dstW, dstH int) ([]byte, error) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return nil, errors.Errorf("invalid size %dx%d -> %dx%d", srcW, srcH, dstW, dstH)
	}
	if len(src) < srcW*srcH*3 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "RGB24 frame is %d bytes, want %d", len(src), srcW*srcH*3)
	}

	out := make([]byte, dstW*dstH*BytesPerPixel)
	o := 0
	for y := 0; y < dstH; y++ {
		row := (y * srcH / dstH) * srcW
		for x := 0; x < dstW; x++ {
			i := (row + x*srcW/dstW) * 3
			byteOrder.PutUint16(out[o:], Pack(src[i], src[i+1], src[i+2]))
			o += BytesPerPixel
		}
	}
	return out, nil
}

// Number of colour components, as a JPEG decoder would report them.
// PNG truecolour without alpha decodes to *image.RGBA.
func components(img image.Image) int {
	switch img.(type) {
	case *image.YCbCr, *image.RGBA:
		return 3
	case *image.Gray, *image.Gray16, *image.Paletted:
		return 1
	case *image.CMYK, *image.NRGBA, *image.NRGBA64, *image.RGBA64:
		return 4
	default:
		return 0
	}
}
