package framelink

import "github.com/pkg/errors"

var (
	ErrClosed  = errors.New("framelink: agent closed")
	ErrRunning = errors.New("framelink: agent already running")
)
