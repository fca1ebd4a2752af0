//////////////////////////////////////////////////////////////////////////////
//
// Config contains configuration data for an Agent
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package framelink

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/framelink/internal/governor"
	"github.com/lanikai/framelink/internal/link"
	"github.com/lanikai/framelink/internal/v4l2"
)

// Duration is a time.Duration that reads and writes as a string such as
// "250ms" in JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Errorf("duration must be a string like \"1s\", got %s", b)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Config struct {
	// Video capture device
	Device      string `json:"device"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	PixelFormat string `json:"pixelFormat"`
	Buffers     int    `json:"buffers"`
	HFlip       bool   `json:"hflip"`
	VFlip       bool   `json:"vflip"`

	// Published RGB565 frame size
	OutputWidth  int `json:"outputWidth"`
	OutputHeight int `json:"outputHeight"`

	// Capture/publish cycle
	FPS            int      `json:"fps"`
	CaptureTimeout Duration `json:"captureTimeout"`
	MaxFailures    int      `json:"maxFailures"`
	Cooldown       Duration `json:"cooldown"`
	FrameHeader    bool     `json:"frameHeader"`

	// Stop after this many cycles. Zero runs until interrupted.
	MaxCycles int `json:"maxCycles"`

	// Broker link
	Broker               string   `json:"broker"`
	ClientID             string   `json:"clientId"`
	SubscribeTopic       string   `json:"subscribeTopic"`
	PublishTopic         string   `json:"publishTopic"`
	QoS                  byte     `json:"qos"`
	Timeout              Duration `json:"timeout"`
	KeepAlive            Duration `json:"keepAlive"`
	CleanSession         bool     `json:"cleanSession"`
	ReconnectInterval    Duration `json:"reconnectInterval"`
	MaxReconnectAttempts int      `json:"maxReconnectAttempts"`
	MaintainInterval     Duration `json:"maintainInterval"`
	InboxWorkers         int      `json:"inboxWorkers"`
	InboxDepth           int      `json:"inboxDepth"`

	// Serve /metrics and /preview here. Empty disables the HTTP server.
	HTTPAddr string `json:"httpAddr"`
}

func DefaultConfig() Config {
	return Config{
		Device:      "/dev/video0",
		Width:       640,
		Height:      480,
		PixelFormat: "MJPG",
		Buffers:     4,

		OutputWidth:  240,
		OutputHeight: 240,

		FPS:            10,
		CaptureTimeout: Duration{200 * time.Millisecond},
		MaxFailures:    5,
		Cooldown:       Duration{time.Second},

		Broker:               "tcp://192.168.1.95:1883",
		ClientID:             "s5p6818_Client",
		SubscribeTopic:       "6050_date",
		PublishTopic:         "6818_image",
		QoS:                  1,
		Timeout:              Duration{time.Second},
		KeepAlive:            Duration{20 * time.Second},
		CleanSession:         true,
		ReconnectInterval:    Duration{5 * time.Second},
		MaxReconnectAttempts: 10,
		MaintainInterval:     Duration{10 * time.Millisecond},
		InboxWorkers:         1,
		InboxDepth:           8,
	}
}

// LoadConfig reads a JSON file over the defaults. Fields absent from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Validate reports the first problem found with c.
func (c Config) Validate() error {
	switch {
	case c.Device == "":
		return errors.New("no capture device")
	case c.Width <= 0 || c.Height <= 0:
		return errors.Errorf("invalid capture size %dx%d", c.Width, c.Height)
	case c.OutputWidth <= 0 || c.OutputHeight <= 0:
		return errors.Errorf("invalid output size %dx%d", c.OutputWidth, c.OutputHeight)
	case c.Buffers < 2:
		return errors.Errorf("need at least 2 capture buffers, got %d", c.Buffers)
	case c.FPS <= 0:
		return errors.Errorf("invalid frame rate %d", c.FPS)
	case c.CaptureTimeout.Duration <= 0:
		return errors.New("capture timeout must be positive")
	case c.MaxFailures <= 0:
		return errors.New("max failures must be positive")
	case c.Cooldown.Duration < 0:
		return errors.New("cool-down must not be negative")
	case c.PublishTopic == "":
		return errors.New("no publish topic")
	case c.MaxCycles < 0:
		return errors.New("max cycles must not be negative")
	case c.MaintainInterval.Duration <= 0:
		return errors.New("maintain interval must be positive")
	}
	if _, err := v4l2.ParsePixelFormat(c.PixelFormat); err != nil {
		return err
	}
	return c.linkConfig().Validate()
}

func (c Config) captureConfig() v4l2.Config {
	// Validated already.
	format, _ := v4l2.ParsePixelFormat(c.PixelFormat)
	return v4l2.Config{
		Format:  format,
		Width:   c.Width,
		Height:  c.Height,
		Buffers: c.Buffers,
		HFlip:   c.HFlip,
		VFlip:   c.VFlip,
	}
}

func (c Config) linkConfig() link.Config {
	return link.Config{
		Broker:               c.Broker,
		ClientID:             c.ClientID,
		SubscribeTopic:       c.SubscribeTopic,
		QoS:                  c.QoS,
		Timeout:              c.Timeout.Duration,
		KeepAlive:            c.KeepAlive.Duration,
		CleanSession:         c.CleanSession,
		ReconnectInterval:    c.ReconnectInterval.Duration,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		InboxWorkers:         c.InboxWorkers,
		InboxDepth:           c.InboxDepth,
	}
}

func (c Config) governorConfig() governor.Config {
	return governor.Config{
		Rate:           c.FPS,
		CaptureTimeout: c.CaptureTimeout.Duration,
		MaxFailures:    c.MaxFailures,
		Cooldown:       c.Cooldown.Duration,
		Topic:          c.PublishTopic,
		QoS:            c.QoS,
		Header:         c.FrameHeader,
		MaxCycles:      c.MaxCycles,
	}
}
