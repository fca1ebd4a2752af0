//go:build linux
// +build linux

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Layouts mirror <linux/videodev2.h>. Field alignment matches the C ABI on
// both 32-bit and 64-bit targets; see the comments on unions.

type v4l2_capability struct {
	driver       [16]uint8
	card         [32]uint8
	bus_info     [32]uint8
	version      uint32
	capabilities uint32
	device_caps  uint32
	reserved     [3]uint32
}

type v4l2_pix_format struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcr_enc    uint32
	quantization uint32
	xfer_func    uint32
}

type v4l2_format struct {
	typ uint32
	// 200-byte union. The C union contains pointers, so it is 8-byte
	// aligned on 64-bit targets; uint64 gets the same alignment from Go.
	fmt [25]uint64
}

func (f *v4l2_format) pix() *v4l2_pix_format {
	return (*v4l2_pix_format)(unsafe.Pointer(&f.fmt[0]))
}

type v4l2_requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type v4l2_timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

type v4l2_buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp unix.Timeval
	timecode  v4l2_timecode
	sequence  uint32
	memory    uint32
	// Union of offset (u32), userptr (unsigned long), planes (pointer) and
	// fd (s32). Pointer-sized; the preceding fields leave it aligned.
	m         [unsafe.Sizeof(uintptr(0))]byte
	length    uint32
	reserved2 uint32
	request   uint32
}

func (b *v4l2_buffer) offset() uint32 {
	return nativeEndian.Uint32(b.m[0:4])
}

type v4l2_control struct {
	id    uint32
	value int32
}

const (
	V4L2_CAP_DEVICE_CAPS = 0x80000000

	V4L2_BUF_TYPE_VIDEO_CAPTURE = 1
	V4L2_MEMORY_MMAP            = 1
	V4L2_FIELD_ANY              = 0
)

// Encoding from <asm-generic/ioctl.h>.
const (
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | size<<iocSizeShift | uintptr('V')<<iocTypeShift | nr<<iocNRShift
}

var (
	VIDIOC_QUERYCAP  = ioc(iocRead, 0, unsafe.Sizeof(v4l2_capability{}))
	VIDIOC_S_FMT     = ioc(iocRead|iocWrite, 5, unsafe.Sizeof(v4l2_format{}))
	VIDIOC_REQBUFS   = ioc(iocRead|iocWrite, 8, unsafe.Sizeof(v4l2_requestbuffers{}))
	VIDIOC_QUERYBUF  = ioc(iocRead|iocWrite, 9, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_QBUF      = ioc(iocRead|iocWrite, 15, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_DQBUF     = ioc(iocRead|iocWrite, 17, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_STREAMON  = ioc(iocWrite, 18, unsafe.Sizeof(int32(0)))
	VIDIOC_STREAMOFF = ioc(iocWrite, 19, unsafe.Sizeof(int32(0)))
	VIDIOC_S_CTRL    = ioc(iocRead|iocWrite, 28, unsafe.Sizeof(v4l2_control{}))
)
