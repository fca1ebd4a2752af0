// Copyright 2019 Lanikai Labs. All rights reserved.

package color

import (
	"github.com/pkg/errors"

	"github.com/lanikai/framelink/internal/v4l2"
)

// A ConvertFunc turns one captured frame into the wire payload. The result
// never aliases src.
type ConvertFunc func(src []byte) ([]byte, error)

// ForFormat picks the conversion for frames captured in the given pixel
// format. RGB565 capture at the output size needs no conversion and returns
// nil.
func ForFormat(format v4l2.PixelFormat, srcW, srcH, dstW, dstH int) (ConvertFunc, error) {
	switch format {
	case v4l2.PixelFormatMJPEG, v4l2.PixelFormatJPEG:
		return func(src []byte) ([]byte, error) {
			return DecodeAndConvert(src, dstW, dstH)
		}, nil
	case v4l2.PixelFormatRGB24:
		return func(src []byte) ([]byte, error) {
			return RGB24ToRGB565(src, srcW, srcH, dstW, dstH)
		}, nil
	case v4l2.PixelFormatRGB565:
		if srcW != dstW || srcH != dstH {
			return nil, errors.Errorf("RGB565 capture must match output size (%dx%d != %dx%d)", srcW, srcH, dstW, dstH)
		}
		return nil, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "pixel format %v", format)
}
