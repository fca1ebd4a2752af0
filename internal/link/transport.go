package link

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/lanikai/framelink/internal/logging"
)

var errTokenTimeout = errors.New("timed out waiting for acknowledgment")

// Route paho's internal logging through ours.
func init() {
	paho := logging.DefaultLogger.WithTag("paho")
	mqtt.CRITICAL = paho.AtLevel(logging.Error)
	mqtt.ERROR = paho.AtLevel(logging.Error)
	mqtt.WARN = paho.AtLevel(logging.Warn)
	mqtt.DEBUG = paho.AtLevel(logging.MaxLevel)
}

// The pub/sub operations a Session relies on. Every call is bounded by the
// timeout it is given.
type transport interface {
	connect(timeout time.Duration) error
	subscribe(topic string, qos byte, timeout time.Duration) error
	publish(topic string, qos byte, payload []byte, timeout time.Duration) error
	isConnectionOpen() bool
	disconnect(quiesce time.Duration)
}

// Callbacks a transport invokes from its own goroutines.
type transportEvents struct {
	onMessage func(topic string, payload []byte)
	onLost    func(err error)
}

type transportFactory func(cfg Config, events transportEvents) transport

// MQTT transport backed by the Eclipse Paho client. Paho's own reconnect
// logic is disabled; Session.Maintain decides when to reconnect.
type pahoTransport struct {
	client mqtt.Client
	events transportEvents
}

func newPahoTransport(cfg Config, events transportEvents) transport {
	t := &pahoTransport{events: events}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetWriteTimeout(cfg.Timeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		events.onLost(err)
	})
	// Messages that match no active subscription, e.g. left over from a
	// persistent session.
	opts.SetDefaultPublishHandler(t.deliver)

	t.client = mqtt.NewClient(opts)
	return t
}

func (t *pahoTransport) deliver(_ mqtt.Client, msg mqtt.Message) {
	t.events.onMessage(msg.Topic(), msg.Payload())
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errTokenTimeout
	}
	return token.Error()
}

func (t *pahoTransport) connect(timeout time.Duration) error {
	return wait(t.client.Connect(), timeout)
}

func (t *pahoTransport) subscribe(topic string, qos byte, timeout time.Duration) error {
	token := t.client.Subscribe(topic, qos, t.deliver)
	if err := wait(token, timeout); err != nil {
		return err
	}
	// A granted QoS of 0x80 means the broker refused the subscription.
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		if granted, ok := st.Result()[topic]; ok && granted == 0x80 {
			return errors.Errorf("broker refused subscription to %s", topic)
		}
	}
	return nil
}

func (t *pahoTransport) publish(topic string, qos byte, payload []byte, timeout time.Duration) error {
	return wait(t.client.Publish(topic, qos, false, payload), timeout)
}

func (t *pahoTransport) isConnectionOpen() bool {
	return t.client.IsConnectionOpen()
}

func (t *pahoTransport) disconnect(quiesce time.Duration) {
	t.client.Disconnect(uint(quiesce / time.Millisecond))
}
