package v4l2

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/framelink/internal/frame"
	"github.com/lanikai/framelink/internal/logging"
)

var log = logging.DefaultLogger.WithTag("v4l2")

var (
	ErrDevice            = errors.New("v4l2 device error")
	ErrFormatNegotiation = errors.New("v4l2 format negotiation failed")
	ErrBufferMap         = errors.New("v4l2 buffer map failed")

	errNotReady   = errors.New("no buffer ready")
	errPollHangup = errors.New("device hung up")
)

// Wrap err so that errors.Is matches both the kind and the cause.
func wrap(kind, err error, format string, args ...interface{}) error {
	return errors.Wrapf(&kindError{kind, err}, format, args...)
}

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string        { return e.kind.Error() + ": " + e.cause.Error() }
func (e *kindError) Is(target error) bool { return target == e.kind }
func (e *kindError) Unwrap() error        { return e.cause }

// The subset of V4L2 operations a Source relies on. The Linux implementation
// is *device; tests substitute a fake.
type driver interface {
	capabilities() (uint32, error)
	setFormat(width, height, pixfmt uint32) (w, h, f uint32, err error)
	setControl(id uint32, value int32) error
	requestBuffers(n int) (granted int, err error)
	mapBuffer(i int) ([]byte, error)
	unmap(mem []byte) error
	enqueue(i int) error
	dequeue() (index, bytesused int, err error)
	wait(timeout time.Duration) (ready bool, err error)
	streamOn() error
	streamOff() error
	close() error
}

const (
	capVideoCapture = 0x00000001
	capStreaming    = 0x04000000

	cidHFlip = 0x00980900 + 20
	cidVFlip = 0x00980900 + 21
)

// Source captures frames from a V4L2 device into a fixed pool of mmap'd
// buffers. Frames are lent to the caller by Acquire and handed back to the
// device by Release; a buffer is never requeued while the caller holds it.
type Source struct {
	cfg  Config
	path string

	// Serializes device access between Acquire, Release and Close.
	mu     sync.Mutex
	drv    driver
	pool   *frame.Pool
	closed bool
}

// Open a V4L2 video device (usually /dev/video0), negotiate the format, map
// the buffer pool and start streaming.
func Open(path string, cfg Config) (*Source, error) {
	drv, err := openDevice(path)
	if err != nil {
		return nil, wrap(ErrDevice, err, "open %s", path)
	}
	return newSource(drv, path, cfg)
}

func newSource(drv driver, path string, cfg Config) (s *Source, err error) {
	if cfg.Buffers <= 0 {
		cfg.Buffers = defaultBuffers
	}

	var regions [][]byte
	granted := 0
	defer func() {
		if err == nil {
			return
		}
		// Unwind in reverse: mappings, buffer allocation, descriptor.
		for _, mem := range regions {
			if uerr := drv.unmap(mem); uerr != nil {
				log.Warn("%s: munmap during unwind: %v", path, uerr)
			}
		}
		if granted > 0 {
			drv.requestBuffers(0)
		}
		drv.close()
	}()

	caps, err := drv.capabilities()
	if err != nil {
		return nil, wrap(ErrDevice, err, "%s: query capabilities", path)
	}
	if caps&capVideoCapture == 0 || caps&capStreaming == 0 {
		return nil, errors.Wrapf(ErrDevice, "%s: not a streaming capture device (caps %#x)", path, caps)
	}

	w, h, f, err := drv.setFormat(uint32(cfg.Width), uint32(cfg.Height), uint32(cfg.Format))
	if err != nil {
		return nil, wrap(ErrFormatNegotiation, err, "%s: set format %dx%d %v", path, cfg.Width, cfg.Height, cfg.Format)
	}
	if int(w) != cfg.Width || int(h) != cfg.Height || PixelFormat(f) != cfg.Format {
		return nil, errors.Wrapf(ErrFormatNegotiation, "%s: requested %dx%d %v, driver offered %dx%d %v",
			path, cfg.Width, cfg.Height, cfg.Format, w, h, PixelFormat(f))
	}

	if cfg.HFlip {
		if err := drv.setControl(cidHFlip, 1); err != nil {
			log.Warn("%s: horizontal flip not supported: %v", path, err)
		}
	}
	if cfg.VFlip {
		if err := drv.setControl(cidVFlip, 1); err != nil {
			log.Warn("%s: vertical flip not supported: %v", path, err)
		}
	}

	granted, err = drv.requestBuffers(cfg.Buffers)
	if err != nil {
		return nil, wrap(ErrDevice, err, "%s: request %d buffers", path, cfg.Buffers)
	}
	if granted < 2 {
		return nil, errors.Wrapf(ErrDevice, "%s: driver granted %d buffers", path, granted)
	}
	if granted != cfg.Buffers {
		log.Info("%s: requested %d buffers, driver granted %d", path, cfg.Buffers, granted)
	}

	for i := 0; i < granted; i++ {
		mem, err := drv.mapBuffer(i)
		if err != nil {
			return nil, wrap(ErrBufferMap, err, "%s: buffer %d", path, i)
		}
		regions = append(regions, mem)
	}

	for i := range regions {
		if err := drv.enqueue(i); err != nil {
			return nil, wrap(ErrDevice, err, "%s: enqueue buffer %d", path, i)
		}
	}

	if err := drv.streamOn(); err != nil {
		return nil, wrap(ErrDevice, err, "%s: stream on", path)
	}

	log.Info("%s: streaming %dx%d %v with %d buffers", path, cfg.Width, cfg.Height, cfg.Format, granted)
	cfg.Buffers = granted
	return &Source{
		cfg:  cfg,
		path: path,
		drv:  drv,
		pool: frame.NewPool(regions),
	}, nil
}

// Config returns the negotiated configuration.
func (s *Source) Config() Config {
	return s.cfg
}

// Acquire waits up to timeout for the device to fill a buffer, dequeues it
// and lends it to the caller. frame.ErrTimeout means no frame this cycle.
// The buffer stays with the caller until Release.
func (s *Source) Acquire(timeout time.Duration) (*frame.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Wrap(ErrDevice, "source closed")
	}

	ready, err := s.drv.wait(timeout)
	if err != nil {
		return nil, wrap(ErrDevice, err, "%s: wait", s.path)
	}
	if !ready {
		return nil, frame.ErrTimeout
	}

	index, n, err := s.drv.dequeue()
	if err == errNotReady {
		return nil, frame.ErrTimeout
	}
	if err != nil {
		return nil, wrap(ErrDevice, err, "%s: dequeue", s.path)
	}

	if err := s.pool.MarkFilled(index, n); err != nil {
		// A buffer the application already holds cannot go back to the
		// device. Anything else is returned so the pool does not shrink.
		if !errors.Is(err, frame.ErrNotQueued) {
			s.requeue(index)
		}
		return nil, wrap(ErrDevice, err, "%s: dequeued buffer %d", s.path, index)
	}
	d, err := s.pool.Acquire(index, n, time.Now())
	if err != nil {
		if s.pool.Requeue(index) == nil {
			s.requeue(index)
		}
		return nil, wrap(ErrDevice, err, "%s: dequeued buffer %d", s.path, index)
	}
	log.Trace(5, "acquired buffer %d, frame %d, %d bytes", index, d.Sequence, n)
	return d, nil
}

// Release hands the descriptor's buffer back to the device. If the device
// refuses it the descriptor stays held and Release may be retried. Releasing
// the same descriptor twice returns frame.ErrAlreadyReleased and leaves the
// pool untouched.
func (s *Source) Release(d *frame.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.pool.Index(d)
	if err != nil {
		return err
	}
	if err := s.drv.enqueue(index); err != nil {
		return wrap(ErrDevice, err, "%s: requeue buffer %d", s.path, index)
	}
	_, err = s.pool.Release(d)
	return err
}

func (s *Source) requeue(index int) {
	if err := s.drv.enqueue(index); err != nil {
		log.Warn("%s: requeue rejected buffer %d: %v", s.path, index, err)
	}
}

// Held reports how many buffers the application currently holds.
func (s *Source) Held() int {
	_, held := s.pool.Counts()
	return held
}

// Pool exposes the buffer bookkeeping, read-only use intended.
func (s *Source) Pool() *frame.Pool {
	return s.pool
}

// Close stops streaming, unmaps every buffer (including any the caller still
// holds) and closes the device. It is safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if err := s.drv.streamOff(); err != nil {
		log.Warn("%s: stream off: %v", s.path, err)
		keep(wrap(ErrDevice, err, "%s: stream off", s.path))
	}
	if _, held := s.pool.Counts(); held > 0 {
		log.Warn("%s: closing with %d buffers still held", s.path, held)
	}
	for i, mem := range s.pool.Close() {
		if err := s.drv.unmap(mem); err != nil {
			keep(wrap(ErrDevice, err, "%s: munmap buffer %d", s.path, i))
		}
	}
	if _, err := s.drv.requestBuffers(0); err != nil {
		log.Debug("%s: release buffers: %v", s.path, err)
	}
	keep(s.drv.close())
	return first
}
