//go:build linux
// +build linux

package v4l2

import (
	"encoding/binary"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

var nativeEndian = binary.NativeEndian

// A V4L2 character device.
type device struct {
	// Device path, usually "/dev/video0".
	path string

	// File descriptor of v4l2 device, opened non-blocking so DQBUF never
	// blocks; waiting happens in poll(2).
	fd int
}

func openDevice(path string) (driver, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &device{path: path, fd: fd}, nil
}

func (dev *device) ioctl(request uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(dev.fd), request, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func (dev *device) capabilities() (uint32, error) {
	var cap v4l2_capability
	if err := dev.ioctl(VIDIOC_QUERYCAP, unsafe.Pointer(&cap)); err != nil {
		return 0, err
	}
	if cap.capabilities&V4L2_CAP_DEVICE_CAPS != 0 {
		return cap.device_caps, nil
	}
	return cap.capabilities, nil
}

func (dev *device) setFormat(width, height, pixfmt uint32) (uint32, uint32, uint32, error) {
	f := v4l2_format{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}
	pix := f.pix()
	pix.width = width
	pix.height = height
	pix.pixelformat = pixfmt
	pix.field = V4L2_FIELD_ANY
	if err := dev.ioctl(VIDIOC_S_FMT, unsafe.Pointer(&f)); err != nil {
		return 0, 0, 0, err
	}
	return pix.width, pix.height, pix.pixelformat, nil
}

func (dev *device) setControl(id uint32, value int32) error {
	ctrl := v4l2_control{id: id, value: value}
	return dev.ioctl(VIDIOC_S_CTRL, unsafe.Pointer(&ctrl))
}

// Request n kernel buffers memory-mapped to user-space. Returns the count the
// driver actually granted.
func (dev *device) requestBuffers(n int) (int, error) {
	rb := v4l2_requestbuffers{
		count:  uint32(n),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	err := dev.ioctl(VIDIOC_REQBUFS, unsafe.Pointer(&rb))
	return int(rb.count), err
}

func (dev *device) mapBuffer(i int) ([]byte, error) {
	qb := v4l2_buffer{
		index:  uint32(i),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := dev.ioctl(VIDIOC_QUERYBUF, unsafe.Pointer(&qb)); err != nil {
		return nil, err
	}
	return unix.Mmap(
		dev.fd,
		int64(qb.offset()),
		int(qb.length),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
}

func (dev *device) unmap(mem []byte) error {
	return unix.Munmap(mem)
}

func (dev *device) enqueue(i int) error {
	qb := v4l2_buffer{
		index:  uint32(i),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	return dev.ioctl(VIDIOC_QBUF, unsafe.Pointer(&qb))
}

func (dev *device) dequeue() (index, bytesused int, err error) {
	qb := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err = dev.ioctl(VIDIOC_DQBUF, unsafe.Pointer(&qb)); err != nil {
		if err == unix.EAGAIN {
			err = errNotReady
		}
		return -1, 0, err
	}
	return int(qb.index), int(qb.bytesused), nil
}

// Block in poll(2) until a filled buffer can be dequeued or the timeout
// expires.
func (dev *device) wait(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(dev.fd), Events: unix.POLLIN}}
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		ms := int((remaining + time.Millisecond - 1) / time.Millisecond)
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return false, errPollHangup
		}
		return true, nil
	}
}

func (dev *device) streamOn() error {
	typ := int32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	return dev.ioctl(VIDIOC_STREAMON, unsafe.Pointer(&typ))
}

// Disable stream. The driver drops all outstanding buffers as well.
func (dev *device) streamOff() error {
	typ := int32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	return dev.ioctl(VIDIOC_STREAMOFF, unsafe.Pointer(&typ))
}

func (dev *device) close() error {
	return unix.Close(dev.fd)
}
