package link

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/framelink/internal/logging"
	"github.com/lanikai/framelink/internal/metrics"
)

var log = logging.DefaultLogger.WithTag("link")

var (
	ErrConnect      = errors.New("link: connect failed")
	ErrNotConnected = errors.New("link: not connected")
	ErrPublish      = errors.New("link: publish failed")
)

// Grace period for in-flight work when tearing down a transport.
const quiesce = 250 * time.Millisecond

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Stats is a point-in-time snapshot of a Session's counters.
type Stats struct {
	State             State
	Published         uint64
	PublishErrors     uint64
	Rejected          uint64 // publishes refused while not connected
	Received          uint64
	Dropped           uint64
	Losses            uint64
	ReconnectAttempts int
}

type Option func(*Session)

// WithMetrics reports session activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// A Session is a publish/subscribe link to a single broker. It is safe for
// concurrent use: typically one goroutine publishes frames while another
// calls Maintain on a fixed cadence.
type Session struct {
	cfg     Config
	factory transportFactory
	now     func() time.Time
	inbox   *Inbox
	metrics *metrics.Metrics

	// Guards everything below. Never held across a blocking transport call.
	mu     sync.Mutex
	state  State
	tr     transport
	timer  ReconnectTimer
	gaveUp bool
	closed bool

	published     atomic.Uint64
	publishErrors atomic.Uint64
	rejected      atomic.Uint64
	received      atomic.Uint64
	dropped       atomic.Uint64
	losses        atomic.Uint64
}

// Dial connects to cfg.Broker and subscribes to cfg.SubscribeTopic. Inbound
// messages on that topic are delivered to handler on a worker goroutine. On
// failure nothing is left running and the error matches ErrConnect.
func Dial(cfg Config, handler Handler, opts ...Option) (*Session, error) {
	return dial(cfg, handler, newPahoTransport, time.Now, opts...)
}

func dial(cfg Config, handler Handler, factory transportFactory, now func() time.Time, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid link config")
	}
	if handler == nil {
		handler = func(payload []byte) {
			log.Debug("discarding %d byte command", len(payload))
		}
	}

	s := &Session{
		cfg:     cfg,
		factory: factory,
		now:     now,
		state:   Connecting,
		timer: ReconnectTimer{
			Interval:    cfg.ReconnectInterval,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.inbox = NewInbox(cfg.InboxWorkers, cfg.InboxDepth, handler)
	s.report(Connecting)

	tr, err := s.open()
	if err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.closed = true
		s.mu.Unlock()
		s.report(Disconnected)
		s.inbox.Close()
		return nil, err
	}

	s.mu.Lock()
	s.tr = tr
	s.state = Connected
	s.mu.Unlock()
	s.report(Connected)

	log.Info("connected to %s as %s", cfg.Broker, cfg.ClientID)
	return s, nil
}

// Create a transport, connect it and subscribe. Any partially set up
// transport is torn down on failure.
func (s *Session) open() (transport, error) {
	var tr transport
	events := transportEvents{
		onMessage: s.receive,
		onLost: func(err error) {
			s.lost(tr, err)
		},
	}
	tr = s.factory(s.cfg, events)

	if err := tr.connect(s.cfg.Timeout); err != nil {
		tr.disconnect(0)
		return nil, wrap(ErrConnect, err, "connect to %s", s.cfg.Broker)
	}
	if err := tr.subscribe(s.cfg.SubscribeTopic, s.cfg.QoS, s.cfg.Timeout); err != nil {
		tr.disconnect(0)
		return nil, wrap(ErrConnect, err, "subscribe to %s", s.cfg.SubscribeTopic)
	}
	return tr, nil
}

// Publish sends payload to topic and waits up to the configured timeout for
// the broker's acknowledgment. The caller keeps ownership of payload, which
// is not retained after Publish returns.
func (s *Session) Publish(topic string, payload []byte, qos byte) error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		s.rejected.Add(1)
		return ErrNotConnected
	}
	tr := s.tr
	s.mu.Unlock()

	if err := tr.publish(topic, qos, payload, s.cfg.Timeout); err != nil {
		s.publishErrors.Add(1)
		if !tr.isConnectionOpen() {
			s.lost(tr, err)
		}
		return wrap(ErrPublish, err, "publish %d bytes to %s", len(payload), topic)
	}

	s.published.Add(1)
	s.metrics.PublishBytes.Add(float64(len(payload)))
	return nil
}

// Maintain must be called on a steady cadence. While disconnected it
// reconnects once the reconnect interval has passed; while connected it
// checks that the transport is still alive.
func (s *Session) Maintain() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case Connected:
		tr := s.tr
		s.mu.Unlock()
		if !tr.isConnectionOpen() {
			s.lost(tr, errors.New("transport reports connection closed"))
		}
		return
	case Connecting:
		s.mu.Unlock()
		return
	}

	now := s.now()
	if !s.timer.Due(now) {
		if s.timer.Exhausted() && !s.gaveUp {
			s.gaveUp = true
			log.Error("giving up on %s after %d reconnect attempts", s.cfg.Broker, s.timer.Attempts())
		}
		s.mu.Unlock()
		return
	}
	s.timer.Record(now)
	attempt := s.timer.Attempts()
	s.state = Connecting
	stale := s.tr
	s.tr = nil
	s.mu.Unlock()

	s.report(Connecting)
	s.metrics.ReconnectAttempts.Inc()
	if stale != nil {
		stale.disconnect(0)
	}

	log.Info("reconnecting to %s (attempt %d)", s.cfg.Broker, attempt)
	tr, err := s.open()

	s.mu.Lock()
	if s.closed {
		// Disconnect won the race.
		s.mu.Unlock()
		if tr != nil {
			tr.disconnect(0)
		}
		return
	}
	if err != nil {
		s.state = Disconnected
		s.mu.Unlock()
		s.report(Disconnected)
		log.Warn("reconnect failed: %v", err)
		return
	}
	s.tr = tr
	s.state = Connected
	s.timer.Reset()
	s.gaveUp = false
	s.mu.Unlock()

	s.report(Connected)
	log.Info("reconnected to %s", s.cfg.Broker)
}

// Handle a connection loss reported for tr. Reports for a transport that is
// no longer current are ignored.
func (s *Session) lost(tr transport, err error) {
	s.mu.Lock()
	if tr == nil || tr != s.tr || s.state != Connected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	s.timer.Lost(s.now())
	s.mu.Unlock()

	s.losses.Add(1)
	s.metrics.ConnectionLosses.Inc()
	s.report(Disconnected)
	log.Warn("connection to %s lost: %v", s.cfg.Broker, err)
}

// Disconnect marks the session disconnected, then tears down the transport
// and waits for queued commands to be handled. It may be called from any
// state, any number of times.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = Disconnected
	tr := s.tr
	s.tr = nil
	s.mu.Unlock()

	s.report(Disconnected)
	if tr != nil {
		tr.disconnect(quiesce)
	}
	s.inbox.Close()
	log.Info("disconnected from %s", s.cfg.Broker)
}

// Transport callback for inbound messages. Must not block.
func (s *Session) receive(topic string, payload []byte) {
	if !matchTopic(s.cfg.SubscribeTopic, topic) {
		s.drop()
		log.Warn("dropping message on unexpected topic %q", topic)
		return
	}

	// The transport may reuse its buffer once we return.
	owned := make([]byte, len(payload))
	copy(owned, payload)

	if !s.inbox.Offer(owned) {
		s.drop()
		log.Warn("command queue full, dropping %d byte message", len(payload))
		return
	}
	s.received.Add(1)
	s.metrics.InboundReceived.Inc()
}

func (s *Session) drop() {
	s.dropped.Add(1)
	s.metrics.InboundDropped.Inc()
}

func (s *Session) report(state State) {
	s.metrics.LinkState.Set(float64(state))
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		State:             s.state,
		ReconnectAttempts: s.timer.Attempts(),
	}
	s.mu.Unlock()

	st.Published = s.published.Load()
	st.PublishErrors = s.publishErrors.Load()
	st.Rejected = s.rejected.Load()
	st.Received = s.received.Load()
	st.Dropped = s.dropped.Load()
	st.Losses = s.losses.Load()
	return st
}

// matchTopic reports whether topic matches an MQTT subscription filter.
func matchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

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
