// Package framelink captures frames from a V4L2 camera, converts them to
// RGB565 and publishes them to an MQTT broker, while accepting short commands
// on a second topic.
//
// An Agent runs two loops over one link session: the capture/publish loop,
// paced at the configured frame rate, and a maintenance loop that reconnects
// the session after a loss.
package framelink

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/framelink/internal/color"
	"github.com/lanikai/framelink/internal/governor"
	"github.com/lanikai/framelink/internal/link"
	"github.com/lanikai/framelink/internal/logging"
	"github.com/lanikai/framelink/internal/metrics"
	"github.com/lanikai/framelink/internal/preview"
	"github.com/lanikai/framelink/internal/v4l2"
)

var log = logging.DefaultLogger.WithTag("framelink")

type frameSource interface {
	governor.FrameSource
	Close() error
}

type linkSession interface {
	governor.Publisher
	Maintain()
	Disconnect()
}

type Agent struct {
	cfg     Config
	src     frameSource
	sess    linkSession
	gov     *governor.Governor
	metrics *metrics.Metrics
	preview *preview.Broadcaster

	mu        sync.Mutex
	running   bool
	closed    bool
	closeOnce sync.Once
}

// NewAgent opens the capture device and connects to the broker. Commands
// arriving on the subscribe topic are passed to handler. Failure to open the
// device or reach the broker is fatal.
func NewAgent(cfg Config, handler link.Handler) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	capture := cfg.captureConfig()
	convert, err := color.ForFormat(capture.Format, cfg.Width, cfg.Height, cfg.OutputWidth, cfg.OutputHeight)
	if err != nil {
		return nil, err
	}

	src, err := v4l2.Open(cfg.Device, capture)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	sess, err := link.Dial(cfg.linkConfig(), handler, link.WithMetrics(m))
	if err != nil {
		src.Close()
		return nil, err
	}

	return newAgent(cfg, src, governor.Codec(convert), sess, m), nil
}

func newAgent(cfg Config, src frameSource, codec governor.Codec, sess linkSession, m *metrics.Metrics) *Agent {
	b := preview.NewBroadcaster()
	return &Agent{
		cfg:     cfg,
		src:     src,
		sess:    sess,
		metrics: m,
		preview: b,
		gov: governor.New(cfg.governorConfig(), src, codec, preview.NewTee(sess, b),
			governor.WithMetrics(m)),
	}
}

func (a *Agent) Metrics() *metrics.Metrics {
	return a.metrics
}

// Preview returns the broadcaster that receives a copy of every published
// frame.
func (a *Agent) Preview() *preview.Broadcaster {
	return a.preview
}

// Run captures and publishes until ctx is done or the configured number of
// cycles has run. It returns nil on a clean stop.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case a.running:
		a.mu.Unlock()
		return ErrRunning
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.maintain(ctx)
	}()

	err := a.gov.Run(ctx)
	cancel()
	wg.Wait()

	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// Drive the session's reconnect and liveness checks on a fixed cadence.
func (a *Agent) maintain(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.MaintainInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sess.Maintain()
		}
	}
}

// Close disconnects from the broker and releases the capture device. Call it
// after Run has returned.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()

		a.sess.Disconnect()
		a.preview.Close()
		err = a.src.Close()
		log.Info("agent closed")
	})
	return err
}
