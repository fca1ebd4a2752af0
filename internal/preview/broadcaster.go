//////////////////////////////////////////////////////////////////////////////
//
// Broadcast frames from one writer to multiple subscribers.
//
// Each subscriber has its own bounded queue. Write copies the frame once and
// hands the copy to every queue. A subscriber that falls behind loses its
// oldest queued frame for each new one, so a slow viewer never stalls the
// writer.
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package preview

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("preview: no such subscriber")
	ErrClosed   = errors.New("preview: broadcaster closed")
)

type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[<-chan []byte]chan []byte
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[<-chan []byte]chan []byte),
	}
}

// Subscribe to broadcasts, queueing up to n frames for the subscriber.
func (b *Broadcaster) Subscribe(n int) (<-chan []byte, error) {
	if n < 1 {
		n = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	ch := make(chan []byte, n)
	b.subscribers[ch] = ch
	return ch, nil
}

// Unsubscribe by providing the channel returned by Subscribe. The channel is
// closed.
func (b *Broadcaster) Unsubscribe(s <-chan []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[s]
	if !ok {
		return ErrNotFound
	}
	delete(b.subscribers, s)
	close(ch)
	return nil
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Write a copy of p to every subscriber.
func (b *Broadcaster) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if len(b.subscribers) == 0 {
		return len(p), nil
	}

	frame := make([]byte, len(p))
	copy(frame, p)
	for _, ch := range b.subscribers {
		select {
		case ch <- frame:
		default:
			// Backlogged. Drop the oldest frame, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
	return len(p), nil
}

// Close the broadcaster. Every subscriber channel is closed; later writes
// fail with ErrClosed.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for key, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, key)
	}
	return nil
}
