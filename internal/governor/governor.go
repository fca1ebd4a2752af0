// Package governor drives the capture, convert and publish cycle at a fixed
// rate.
//
// Each cycle acquires one frame, optionally converts it, publishes it and
// releases the buffer, in that order. A run of consecutive failures triggers
// a single cool-down pause. Cycles that overrun the period are not caught up.
package governor

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/framelink/internal/frame"
	"github.com/lanikai/framelink/internal/logging"
	"github.com/lanikai/framelink/internal/metrics"
	"github.com/lanikai/framelink/internal/wire"
)

var log = logging.DefaultLogger.WithTag("governor")

// FrameSource hands out filled capture buffers. Every descriptor returned by
// Acquire must be passed back to Release until Release succeeds.
type FrameSource interface {
	Acquire(timeout time.Duration) (*frame.Descriptor, error)
	Release(d *frame.Descriptor) error
}

// Codec turns a captured frame into the wire payload. A nil Codec publishes
// the captured bytes unchanged.
type Codec func(raw []byte) ([]byte, error)

type Publisher interface {
	Publish(topic string, payload []byte, qos byte) error
}

type Config struct {
	// Target cycles per second.
	Rate int

	// How long a cycle waits for the next frame.
	CaptureTimeout time.Duration

	// Consecutive failed cycles that trigger a cool-down.
	MaxFailures int
	Cooldown    time.Duration

	Topic string
	QoS   byte

	// Prefix each payload with an 8-byte frame_id/frame_len header.
	Header bool

	// Stop after this many cycles. Zero runs until the context is done.
	MaxCycles int
}

func (cfg Config) period() time.Duration {
	if cfg.Rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(cfg.Rate)
}

// Outcome of a single cycle.
type Outcome int

const (
	// A frame was published.
	Published Outcome = iota

	// No frame arrived within the capture timeout. Not a failure.
	Missed

	// Capture, conversion or publish failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Published:
		return "published"
	case Missed:
		return "missed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// FailureCounter counts consecutive failures up to Threshold.
type FailureCounter struct {
	Threshold int
	count     int
}

// Fail records a failure and reports whether the threshold has been reached.
func (c *FailureCounter) Fail() bool {
	c.count++
	return c.Threshold > 0 && c.count >= c.Threshold
}

func (c *FailureCounter) Reset() { c.count = 0 }

func (c *FailureCounter) Count() int { return c.count }

type Option func(*Governor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Governor) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithClock substitutes the time source and sleep function.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(g *Governor) {
		g.now = now
		g.sleep = sleep
	}
}

type Governor struct {
	cfg      Config
	src      FrameSource
	codec    Codec
	pub      Publisher
	failures FailureCounter
	frameID  uint32
	metrics  *metrics.Metrics

	// A descriptor the source refused to take back, retried before the
	// next acquire.
	unreleased *frame.Descriptor

	now   func() time.Time
	sleep func(time.Duration)
}

func New(cfg Config, src FrameSource, codec Codec, pub Publisher, opts ...Option) *Governor {
	g := &Governor{
		cfg:      cfg,
		src:      src,
		codec:    codec,
		pub:      pub,
		failures: FailureCounter{Threshold: cfg.MaxFailures},
		now:      time.Now,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = metrics.New()
	}
	return g
}

// Run repeats Step at the configured rate until ctx is done or MaxCycles
// cycles have run. Cancellation is checked once per cycle.
func (g *Governor) Run(ctx context.Context) error {
	period := g.cfg.period()
	log.Info("publishing to %s at %d fps", g.cfg.Topic, g.cfg.Rate)

	for n := 0; g.cfg.MaxCycles <= 0 || n < g.cfg.MaxCycles; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := g.now()
		g.Step()
		if rest := period - g.now().Sub(start); rest > 0 {
			g.sleep(rest)
		}
	}
	return nil
}

// Step runs one cycle, including the cool-down if this cycle's failure
// reached the threshold.
func (g *Governor) Step() Outcome {
	start := g.now()
	outcome := g.cycle()
	g.metrics.CycleDuration.Observe(g.now().Sub(start).Seconds())

	switch outcome {
	case Published:
		g.failures.Reset()
	case Failed:
		g.metrics.CycleFailures.Inc()
		if g.failures.Fail() {
			log.Warn("%d consecutive failures, cooling down for %v", g.failures.Count(), g.cfg.Cooldown)
			g.metrics.Cooldowns.Inc()
			g.sleep(g.cfg.Cooldown)
			g.failures.Reset()
		}
	}
	return outcome
}

func (g *Governor) cycle() Outcome {
	if g.unreleased != nil && !g.release(g.unreleased) {
		return Failed
	}

	d, err := g.src.Acquire(g.cfg.CaptureTimeout)
	if errors.Is(err, frame.ErrTimeout) {
		g.metrics.CaptureTimeouts.Inc()
		log.Debug("no frame within %v", g.cfg.CaptureTimeout)
		return Missed
	} else if err != nil {
		g.complain("capture failed: %v", err)
		return Failed
	}
	g.metrics.FramesCaptured.Inc()
	g.metrics.HeldBuffers.Inc()

	outcome := g.deliver(d)
	if !g.release(d) {
		return Failed
	}
	return outcome
}

func (g *Governor) deliver(d *frame.Descriptor) Outcome {
	payload, err := g.encode(d.Bytes())
	if err != nil {
		g.metrics.FramesDropped.Inc()
		g.complain("dropping frame %d: %v", d.Sequence, err)
		return Failed
	}

	if err := g.pub.Publish(g.cfg.Topic, payload, g.cfg.QoS); err != nil {
		g.metrics.FramesDropped.Inc()
		g.complain("dropping frame %d: %v", d.Sequence, err)
		return Failed
	}
	g.frameID++
	g.metrics.FramesPublished.Inc()
	log.Trace(2, "published frame %d (%d bytes)", d.Sequence, len(payload))
	return Published
}

func (g *Governor) encode(raw []byte) ([]byte, error) {
	payload := raw
	if g.codec != nil {
		var err error
		if payload, err = g.codec(raw); err != nil {
			return nil, err
		}
	}
	if g.cfg.Header {
		return wire.Frame(g.frameID, payload)
	}
	return payload, nil
}

// release returns d to the source. A refused release keeps d for a retry on
// the next cycle; a descriptor the source no longer knows is dropped.
func (g *Governor) release(d *frame.Descriptor) bool {
	err := g.src.Release(d)
	if err != nil && !errors.Is(err, frame.ErrAlreadyReleased) && !errors.Is(err, frame.ErrForeignDescriptor) {
		g.complain("release frame %d: %v", d.Sequence, err)
		g.unreleased = d
		return false
	}
	if err != nil {
		log.Error("release frame %d: %v", d.Sequence, err)
	}
	g.unreleased = nil
	g.metrics.HeldBuffers.Dec()
	return true
}

// Log the first failure of a run loudly, the rest quietly.
func (g *Governor) complain(format string, args ...interface{}) {
	if g.failures.Count() == 0 {
		log.Warn(format, args...)
	} else {
		log.Debug(format, args...)
	}
}
