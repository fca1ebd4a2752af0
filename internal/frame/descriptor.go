package frame

import "time"

// A Descriptor is a borrowed view of one capture buffer. It is valid from
// the Acquire that produced it until it is released; the bytes must not be
// retained past that point.
type Descriptor struct {
	pool     *Pool
	index    int
	data     []byte
	released bool

	// Capture time reported by the driver, or the dequeue time if the
	// driver does not report one.
	Timestamp time.Time

	// Monotonically increasing per pool, starting at 1.
	Sequence uint64
}

// Index of the underlying buffer.
func (d *Descriptor) Index() int {
	return d.index
}

// Bytes returns the frame contents. It returns nil once the descriptor has
// been released.
func (d *Descriptor) Bytes() []byte {
	d.pool.mu.Lock()
	defer d.pool.mu.Unlock()
	return d.data
}

// Len is the number of bytes the device wrote.
func (d *Descriptor) Len() int {
	return len(d.Bytes())
}

// Released reports whether the descriptor has been returned to its pool.
func (d *Descriptor) Released() bool {
	d.pool.mu.Lock()
	defer d.pool.mu.Unlock()
	return d.released
}
