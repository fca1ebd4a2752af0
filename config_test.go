package framelink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/framelink/internal/v4l2"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "6050_date", cfg.SubscribeTopic)
	assert.Equal(t, "6818_image", cfg.PublishTopic)
	assert.Equal(t, 10, cfg.FPS)
	assert.Equal(t, 5, cfg.MaxFailures)
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval.Duration)
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framelink.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"broker": "tcp://10.0.0.2:1883",
		"fps": 15,
		"cooldown": "2s",
		"frameHeader": true
	}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.2:1883", cfg.Broker)
	assert.Equal(t, 15, cfg.FPS)
	assert.Equal(t, 2*time.Second, cfg.Cooldown.Duration)
	assert.True(t, cfg.FrameHeader)

	// Untouched fields keep their defaults.
	assert.Equal(t, "/dev/video0", cfg.Device)
	assert.Equal(t, time.Second, cfg.Timeout.Duration)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framelink.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timeout": 1000}`), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero fps":           func(c *Config) { c.FPS = 0 },
		"zero output width":  func(c *Config) { c.OutputWidth = 0 },
		"negative height":    func(c *Config) { c.Height = -1 },
		"one buffer":         func(c *Config) { c.Buffers = 1 },
		"no broker":          func(c *Config) { c.Broker = "" },
		"qos 3":              func(c *Config) { c.QoS = 3 },
		"bad pixel format":   func(c *Config) { c.PixelFormat = "yuv420" },
		"no publish topic":   func(c *Config) { c.PublishTopic = "" },
		"zero maintain tick": func(c *Config) { c.MaintainInterval.Duration = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PixelFormat = "rgb565"
	cfg.FrameHeader = true

	assert.Equal(t, v4l2.PixelFormatRGB565, cfg.captureConfig().Format)
	assert.Equal(t, 20*time.Second, cfg.linkConfig().KeepAlive)

	g := cfg.governorConfig()
	assert.Equal(t, 10, g.Rate)
	assert.Equal(t, "6818_image", g.Topic)
	assert.True(t, g.Header)
}
