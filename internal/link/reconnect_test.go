package link

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectTimer(t *testing.T) {
	t0 := time.Unix(1000, 0)
	timer := ReconnectTimer{Interval: 5 * time.Second, MaxAttempts: 2}

	assert.True(t, timer.Due(t0), "fresh timer should allow an attempt")

	timer.Lost(t0)
	assert.False(t, timer.Due(t0.Add(4*time.Second)))
	assert.True(t, timer.Due(t0.Add(5*time.Second)))

	timer.Record(t0.Add(5 * time.Second))
	assert.False(t, timer.Due(t0.Add(9*time.Second)))
	timer.Record(t0.Add(10 * time.Second))
	assert.True(t, timer.Exhausted())
	assert.False(t, timer.Due(t0.Add(time.Hour)))

	timer.Reset()
	assert.Equal(t, 0, timer.Attempts())
	assert.True(t, timer.Due(t0))
}

func TestInboxDeliversInOrderWithOneWorker(t *testing.T) {
	var (
		mu  sync.Mutex
		got []byte
	)
	in := NewInbox(1, 16, func(p []byte) {
		mu.Lock()
		got = append(got, p...)
		mu.Unlock()
	})
	for i := byte(0); i < 10; i++ {
		require.True(t, in.Offer([]byte{i}))
	}
	in.Close()

	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.False(t, in.Offer([]byte{10}), "closed inbox accepted a payload")
}

func TestInboxSurvivesHandlerPanic(t *testing.T) {
	done := make(chan struct{})
	in := NewInbox(1, 2, func(p []byte) {
		if p[0] == 0 {
			panic("bad command")
		}
		close(done)
	})
	defer in.Close()

	in.Offer([]byte{0})
	in.Offer([]byte{1})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}
