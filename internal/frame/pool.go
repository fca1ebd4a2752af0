// Package frame tracks ownership of a fixed set of capture buffers shared
// between a device and the application.
//
// A buffer is owned by the device while it is QueuedToDevice or
// FilledPendingDequeue, and by the application while it is HeldByApplication.
// Ownership crosses to the application only through Pool.Acquire and back
// only through Pool.Release.
package frame

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout reports that no frame became ready within the capture
	// window. It is a miss, not a failure.
	ErrTimeout = errors.New("no frame within capture window")

	ErrAlreadyReleased   = errors.New("descriptor already released")
	ErrForeignDescriptor = errors.New("descriptor does not belong to this pool")
	ErrNotQueued         = errors.New("buffer is not owned by the device")
	ErrPoolClosed        = errors.New("buffer pool closed")
)

type State int

const (
	QueuedToDevice State = iota
	FilledPendingDequeue
	HeldByApplication
)

func (s State) String() string {
	switch s {
	case QueuedToDevice:
		return "QueuedToDevice"
	case FilledPendingDequeue:
		return "FilledPendingDequeue"
	case HeldByApplication:
		return "HeldByApplication"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type slot struct {
	mem   []byte
	state State
	held  *Descriptor
}

// Pool is the bookkeeping half of a capture source. It does not talk to the
// device itself; the owner calls Acquire after a successful dequeue and
// enqueues the index returned by Release.
type Pool struct {
	mu     sync.Mutex
	slots  []slot
	seq    uint64
	closed bool
}

// NewPool takes ownership of the given mapped regions. All buffers start
// QueuedToDevice.
func NewPool(regions [][]byte) *Pool {
	p := &Pool{slots: make([]slot, len(regions))}
	for i, mem := range regions {
		p.slots[i].mem = mem
	}
	return p
}

// Size returns N, the number of buffers in the pool.
func (p *Pool) Size() int {
	return len(p.slots)
}

// MarkFilled records that the device returned buffer i with n bytes used.
// V4L2 only reports readiness per index at dequeue time, so the owner calls
// this right after DQBUF and before Acquire.
func (p *Pool) MarkFilled(i, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.slots) {
		return errors.Errorf("buffer index %d out of range", i)
	}
	s := &p.slots[i]
	if s.state != QueuedToDevice {
		return errors.Wrapf(ErrNotQueued, "buffer %d is %v", i, s.state)
	}
	if n < 0 || n > len(s.mem) {
		return errors.Errorf("buffer %d: %d bytes used exceeds length %d", i, n, len(s.mem))
	}
	s.state = FilledPendingDequeue
	return nil
}

// Requeue undoes MarkFilled for a buffer the owner handed straight back to
// the device.
func (p *Pool) Requeue(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.slots) {
		return errors.Errorf("buffer index %d out of range", i)
	}
	if p.slots[i].state != FilledPendingDequeue {
		return errors.Errorf("buffer %d is %v", i, p.slots[i].state)
	}
	p.slots[i].state = QueuedToDevice
	return nil
}

// Acquire hands buffer i to the application and returns a descriptor over
// its first n bytes.
func (p *Pool) Acquire(i, n int, timestamp time.Time) (*Descriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if i < 0 || i >= len(p.slots) {
		return nil, errors.Errorf("buffer index %d out of range", i)
	}
	s := &p.slots[i]
	if s.state == HeldByApplication {
		return nil, errors.Wrapf(ErrNotQueued, "buffer %d is %v", i, s.state)
	}
	if n < 0 || n > len(s.mem) {
		return nil, errors.Errorf("buffer %d: %d bytes used exceeds length %d", i, n, len(s.mem))
	}

	p.seq++
	d := &Descriptor{
		pool:      p,
		index:     i,
		data:      s.mem[:n:n],
		Timestamp: timestamp,
		Sequence:  p.seq,
	}
	s.state = HeldByApplication
	s.held = d
	return d, nil
}

// Index reports the buffer index behind d if d is still held, without
// changing any state. Owners use it to hand the buffer to the device before
// committing the Release.
func (p *Pool) Index(d *Descriptor) (int, error) {
	if d == nil || d.pool != p {
		return -1, ErrForeignDescriptor
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkHeld(d); err != nil {
		return -1, err
	}
	return d.index, nil
}

// Release returns the descriptor's buffer to the device side and reports the
// index the caller must enqueue. A descriptor can be released once.
func (p *Pool) Release(d *Descriptor) (int, error) {
	if d == nil || d.pool != p {
		return -1, ErrForeignDescriptor
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkHeld(d); err != nil {
		return -1, err
	}
	s := &p.slots[d.index]
	d.released = true
	d.data = nil
	s.held = nil
	s.state = QueuedToDevice
	return d.index, nil
}

func (p *Pool) checkHeld(d *Descriptor) error {
	if d.released || p.slots[d.index].held != d {
		return errors.Wrapf(ErrAlreadyReleased, "buffer %d, frame %d", d.index, d.Sequence)
	}
	return nil
}

// Close invalidates all outstanding descriptors and returns the mapped
// regions so the owner can unmap them. Held buffers are force-released.
func (p *Pool) Close() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	regions := make([][]byte, len(p.slots))
	for i := range p.slots {
		s := &p.slots[i]
		if s.held != nil {
			s.held.released = true
			s.held.data = nil
			s.held = nil
		}
		s.state = QueuedToDevice
		regions[i] = s.mem
		s.mem = nil
	}
	return regions
}

// Counts returns how many buffers the device and the application own.
func (p *Pool) Counts() (device, application int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		if s.state == HeldByApplication {
			application++
		} else {
			device++
		}
	}
	return
}

// States returns a snapshot of every buffer's state, indexed by buffer.
func (p *Pool) States() []State {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make([]State, len(p.slots))
	for i, s := range p.slots {
		states[i] = s.state
	}
	return states
}
