package v4l2

import (
	"strings"

	"github.com/pkg/errors"
)

// PixelFormat is a V4L2 FourCC code.
type PixelFormat uint32

func fourcc(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	PixelFormatMJPEG  = fourcc('M', 'J', 'P', 'G')
	PixelFormatJPEG   = fourcc('J', 'P', 'E', 'G')
	PixelFormatRGB565 = fourcc('R', 'G', 'B', 'P')
	PixelFormatRGB24  = fourcc('R', 'G', 'B', '3')
)

func (f PixelFormat) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// ParsePixelFormat accepts a FourCC ("MJPG") or one of the aliases "mjpeg",
// "jpeg", "rgb565" and "rgb24".
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "mjpeg", "mjpg":
		return PixelFormatMJPEG, nil
	case "jpeg":
		return PixelFormatJPEG, nil
	case "rgb565", "rgbp":
		return PixelFormatRGB565, nil
	case "rgb24", "rgb3":
		return PixelFormatRGB24, nil
	}
	if len(s) == 4 {
		return fourcc(s[0], s[1], s[2], s[3]), nil
	}
	return 0, errors.Errorf("unknown pixel format %q", s)
}

type Config struct {
	Format PixelFormat // Capture pixel format
	Width  int         // Video width in pixels
	Height int         // Video height in pixels

	// Number of mmap'd buffers to request. The driver may grant more or
	// fewer; fewer than two is treated as a failure.
	Buffers int

	HFlip bool // Flip video horizontally
	VFlip bool // Flip video vertically
}

const defaultBuffers = 4
