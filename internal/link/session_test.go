package link

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/framelink/internal/metrics"
)

type fakeTransport struct {
	events transportEvents

	mu           sync.Mutex
	connectErr   error
	subscribeErr error
	publishErr   error
	connected    bool
	subscribed   []string
	published    [][]byte
	disconnects  int
}

func (t *fakeTransport) connect(time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) subscribe(topic string, qos byte, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribeErr != nil {
		return t.subscribeErr
	}
	t.subscribed = append(t.subscribed, topic)
	return nil
}

func (t *fakeTransport) publish(topic string, qos byte, payload []byte, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.publishErr != nil {
		return t.publishErr
	}
	t.published = append(t.published, payload)
	return nil
}

func (t *fakeTransport) isConnectionOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) disconnect(time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.disconnects++
}

// drop simulates the broker going away. The loss callback fires if notify
// is set; otherwise the connection just silently closes.
func (t *fakeTransport) drop(notify bool) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	if notify {
		t.events.onLost(errors.New("connection reset by peer"))
	}
}

// A broker hands out fake transports and records every one it created.
type fakeBroker struct {
	mu           sync.Mutex
	connectErr   error
	subscribeErr error
	transports   []*fakeTransport
}

func (b *fakeBroker) factory(cfg Config, events transportEvents) transport {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := &fakeTransport{
		events:       events,
		connectErr:   b.connectErr,
		subscribeErr: b.subscribeErr,
	}
	b.transports = append(b.transports, t)
	return t
}

func (b *fakeBroker) setConnectErr(err error) {
	b.mu.Lock()
	b.connectErr = err
	b.mu.Unlock()
}

func (b *fakeBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.transports)
}

func (b *fakeBroker) last() *fakeTransport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transports[len(b.transports)-1]
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Broker = "tcp://broker.test:1883"
	cfg.ClientID = "test"
	return cfg
}

func dialTest(t *testing.T, cfg Config, handler Handler, opts ...Option) (*Session, *fakeBroker, *fakeClock) {
	t.Helper()
	b := &fakeBroker{}
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := dial(cfg, handler, b.factory, clk.now, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	return s, b, clk
}

func TestDialConnectsAndSubscribes(t *testing.T) {
	s, b, _ := dialTest(t, testConfig(), nil)

	assert.Equal(t, Connected, s.State())
	require.Equal(t, 1, b.count())
	assert.Equal(t, []string{"6050_date"}, b.last().subscribed)
}

func TestDialFailureReleasesTransport(t *testing.T) {
	for name, b := range map[string]*fakeBroker{
		"connect":   {connectErr: errors.New("connection refused")},
		"subscribe": {subscribeErr: errors.New("not authorized")},
	} {
		t.Run(name, func(t *testing.T) {
			s, err := dial(testConfig(), nil, b.factory, time.Now)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, ErrConnect))
			require.Equal(t, 1, b.count())
			assert.Equal(t, 1, b.last().disconnects)
		})
	}
}

func TestDialRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SubscribeTopic = ""
	b := &fakeBroker{}
	_, err := dial(cfg, nil, b.factory, time.Now)
	assert.Error(t, err)
	assert.Equal(t, 0, b.count())
}

func TestPublish(t *testing.T) {
	m := metrics.New()
	s, b, _ := dialTest(t, testConfig(), nil, WithMetrics(m))

	require.NoError(t, s.Publish("6818_image", []byte("frame"), 1))
	assert.Equal(t, [][]byte{[]byte("frame")}, b.last().published)
	assert.Equal(t, uint64(1), s.Stats().Published)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.PublishBytes))
}

func TestPublishRejectedWhenNotConnected(t *testing.T) {
	s, b, _ := dialTest(t, testConfig(), nil)
	b.last().drop(true)

	err := s.Publish("6818_image", []byte("frame"), 1)
	assert.Equal(t, ErrNotConnected, err)
	assert.Empty(t, b.last().published)
	assert.Equal(t, uint64(1), s.Stats().Rejected)
}

func TestPublishErrorWhileConnectionOpen(t *testing.T) {
	s, b, _ := dialTest(t, testConfig(), nil)
	b.last().publishErr = errTokenTimeout

	err := s.Publish("6818_image", []byte("frame"), 1)
	assert.True(t, errors.Is(err, ErrPublish))
	assert.True(t, errors.Is(err, errTokenTimeout))
	assert.Equal(t, Connected, s.State())
}

func TestPublishErrorOnClosedConnection(t *testing.T) {
	s, b, clk := dialTest(t, testConfig(), nil)
	tr := b.last()
	tr.publishErr = errors.New("broken pipe")
	tr.drop(false)

	err := s.Publish("6818_image", []byte("frame"), 1)
	assert.True(t, errors.Is(err, ErrPublish))
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, clk.now(), s.timer.Last())
}

func TestReconnectWaitsIntervalAfterLoss(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectInterval = 5 * time.Second
	s, b, clk := dialTest(t, cfg, nil)

	clk.advance(time.Minute)
	first := b.last()
	first.drop(true)
	assert.Equal(t, Disconnected, s.State())

	clk.advance(4900 * time.Millisecond)
	s.Maintain()
	assert.Equal(t, 1, b.count(), "reconnected before the interval elapsed")

	clk.advance(100 * time.Millisecond)
	s.Maintain()
	assert.Equal(t, 2, b.count())
	assert.Equal(t, Connected, s.State())
	assert.Equal(t, 0, s.Stats().ReconnectAttempts)

	// A late loss report from the old transport changes nothing.
	first.events.onLost(errors.New("late"))
	assert.Equal(t, Connected, s.State())
	require.NoError(t, s.Publish("6818_image", []byte{1}, 1))
	assert.Len(t, b.last().published, 1)
}

func TestFailedReconnectIsIntervalGated(t *testing.T) {
	m := metrics.New()
	cfg := testConfig()
	cfg.ReconnectInterval = 5 * time.Second
	cfg.MaxReconnectAttempts = 0
	s, b, clk := dialTest(t, cfg, nil, WithMetrics(m))

	b.setConnectErr(errors.New("connection refused"))
	b.last().drop(true)

	// 10 ms maintenance cadence over 20 s.
	for i := 0; i < 2000; i++ {
		clk.advance(10 * time.Millisecond)
		s.Maintain()
	}
	assert.Equal(t, 4, s.Stats().ReconnectAttempts)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ReconnectAttempts))
	assert.Equal(t, 1+4, b.count())
	assert.Equal(t, Disconnected, s.State())

	for _, tr := range b.transports[1:] {
		assert.Equal(t, 1, tr.disconnects, "failed transport not released")
	}
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectInterval = time.Second
	cfg.MaxReconnectAttempts = 3
	s, b, clk := dialTest(t, cfg, nil)

	b.setConnectErr(errors.New("connection refused"))
	b.last().drop(true)

	for i := 0; i < 10; i++ {
		clk.advance(time.Second)
		s.Maintain()
	}
	assert.Equal(t, 3, s.Stats().ReconnectAttempts)
	assert.Equal(t, 4, b.count())
	assert.True(t, s.timer.Exhausted())
}

func TestMaintainDetectsSilentClose(t *testing.T) {
	s, b, _ := dialTest(t, testConfig(), nil)
	b.last().drop(false)

	s.Maintain()
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, uint64(1), s.Stats().Losses)
}

func TestInboundPayloadIsCopied(t *testing.T) {
	got := make(chan []byte, 1)
	s, b, _ := dialTest(t, testConfig(), func(p []byte) { got <- p })

	buf := []byte("2024-01-01")
	b.last().events.onMessage("6050_date", buf)
	copy(buf, "XXXXXXXXXX")

	select {
	case p := <-got:
		assert.Equal(t, "2024-01-01", string(p))
	case <-time.After(time.Second):
		t.Fatal("command not delivered")
	}
	assert.Equal(t, uint64(1), s.Stats().Received)
}

func TestInboundWrongTopicDropped(t *testing.T) {
	called := make(chan struct{}, 1)
	s, b, _ := dialTest(t, testConfig(), func([]byte) { called <- struct{}{} })

	b.last().events.onMessage("other", []byte("x"))
	s.Disconnect()

	assert.Len(t, called, 0)
	assert.Equal(t, uint64(1), s.Stats().Dropped)
}

func TestInboundFullQueueDoesNotBlock(t *testing.T) {
	cfg := testConfig()
	cfg.InboxWorkers = 1
	cfg.InboxDepth = 1

	unblock := make(chan struct{})
	s, b, _ := dialTest(t, cfg, func([]byte) { <-unblock })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.last().events.onMessage("6050_date", []byte{byte(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("inbound callback blocked")
	}

	st := s.Stats()
	assert.Equal(t, uint64(10), st.Received+st.Dropped)
	assert.True(t, st.Dropped >= 8, "dropped %d", st.Dropped)
	close(unblock)
}

func TestDisconnectIdempotent(t *testing.T) {
	s, b, _ := dialTest(t, testConfig(), nil)

	s.Disconnect()
	s.Disconnect()
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, 1, b.last().disconnects)

	// No reconnects once torn down.
	s.Maintain()
	assert.Equal(t, 1, b.count())
	assert.Equal(t, ErrNotConnected, s.Publish("t", nil, 0))
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		filter, topic string
		match         bool
	}{
		{"6050_date", "6050_date", true},
		{"6050_date", "6050_dates", false},
		{"cmd/+", "cmd/reboot", true},
		{"cmd/+", "cmd/a/b", false},
		{"cmd/#", "cmd/a/b", true},
		{"cmd/#", "cmd", true},
		{"a/b", "a", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.match, matchTopic(c.filter, c.topic), "%s vs %s", c.filter, c.topic)
	}
}
