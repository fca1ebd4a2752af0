package link

import (
	"sync"
)

// A Handler consumes one inbound command payload. The payload is owned by the
// handler.
type Handler func(payload []byte)

// Inbox hands inbound payloads to a fixed number of worker goroutines through
// a bounded queue. Offer never blocks, so it is safe to call from a transport
// callback.
type Inbox struct {
	handler Handler
	queue   chan []byte
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewInbox(workers, depth int, handler Handler) *Inbox {
	if workers <= 0 {
		workers = 1
	}
	if depth < 0 {
		depth = 0
	}
	in := &Inbox{
		handler: handler,
		queue:   make(chan []byte, depth),
	}
	in.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go in.work()
	}
	return in
}

func (in *Inbox) work() {
	defer in.wg.Done()
	for payload := range in.queue {
		in.dispatch(payload)
	}
}

func (in *Inbox) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("command handler panicked: %v", r)
		}
	}()
	in.handler(payload)
}

// Offer queues payload for a worker. It returns false, dropping the payload,
// if the queue is full or the inbox is closed.
func (in *Inbox) Offer(payload []byte) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.closed {
		return false
	}
	select {
	case in.queue <- payload:
		return true
	default:
		return false
	}
}

// Close stops accepting payloads and waits for the workers to drain the
// queue.
func (in *Inbox) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	close(in.queue)
	in.mu.Unlock()

	in.wg.Wait()
}
