package link

import (
	"time"

	"github.com/pkg/errors"
)

// Config fixes the connect parameters for the lifetime of a Session.
type Config struct {
	// Broker URI, e.g. "tcp://192.168.1.95:1883".
	Broker string

	// Client identifier. Must be unique per broker.
	ClientID string

	// Topic carrying inbound commands. MQTT wildcards are allowed.
	SubscribeTopic string

	// QoS for the subscription. Publishes pass their own.
	QoS byte

	// Bound on connect, subscribe and publish acknowledgment.
	Timeout time.Duration

	KeepAlive    time.Duration
	CleanSession bool

	// Minimum spacing between reconnect attempts, measured from the last
	// attempt or from the connection loss.
	ReconnectInterval time.Duration

	// Give up after this many consecutive failed attempts. Zero means retry
	// forever.
	MaxReconnectAttempts int

	// Inbound commands are handed to a fixed pool of workers through a
	// bounded queue; when the queue is full new messages are dropped.
	InboxWorkers int
	InboxDepth   int
}

func DefaultConfig() Config {
	return Config{
		Broker:               "tcp://127.0.0.1:1883",
		ClientID:             "framelink",
		SubscribeTopic:       "6050_date",
		QoS:                  1,
		Timeout:              time.Second,
		KeepAlive:            20 * time.Second,
		CleanSession:         true,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
		InboxWorkers:         1,
		InboxDepth:           8,
	}
}

func (cfg Config) Validate() error {
	switch {
	case cfg.Broker == "":
		return errors.New("broker address is empty")
	case cfg.ClientID == "":
		return errors.New("client id is empty")
	case cfg.SubscribeTopic == "":
		return errors.New("subscribe topic is empty")
	case cfg.QoS > 2:
		return errors.Errorf("invalid QoS %d", cfg.QoS)
	case cfg.Timeout <= 0:
		return errors.New("timeout must be positive")
	case cfg.ReconnectInterval < 0:
		return errors.New("reconnect interval must not be negative")
	case cfg.MaxReconnectAttempts < 0:
		return errors.New("max reconnect attempts must not be negative")
	}
	return nil
}
