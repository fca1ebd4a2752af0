//go:build !linux
// +build !linux

package v4l2

import "github.com/pkg/errors"

func openDevice(path string) (driver, error) {
	return nil, errors.New("V4L2 is only available on Linux")
}
