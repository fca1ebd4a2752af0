package preview

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanikai/framelink/internal/logging"
)

var log = logging.DefaultLogger.WithTag("preview")

const (
	writeWait = 2 * time.Second

	// Frames queued per viewer.
	defaultDepth = 2
)

// Handler streams broadcast frames to websocket clients, one binary message
// per frame.
type Handler struct {
	b        *Broadcaster
	upgrader websocket.Upgrader
	depth    int
}

func NewHandler(b *Broadcaster) *Handler {
	return &Handler{
		b: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
		depth: defaultDepth,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	frames, err := h.b.Subscribe(h.depth)
	if err != nil {
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()))
		return
	}
	defer h.b.Unsubscribe(frames)

	log.Info("viewer %s connected", r.RemoteAddr)
	defer log.Info("viewer %s disconnected", r.RemoteAddr)

	// Viewers send nothing we care about, but reading is how we learn that
	// they went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Debug("write to %s: %v", r.RemoteAddr, err)
				return
			}
		case <-gone:
			return
		}
	}
}

// Publisher is the subset of a link session that Tee forwards to.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte) error
}

// Tee forwards publishes to the wrapped Publisher and, on success, writes a
// copy of the payload to the broadcaster.
type Tee struct {
	Publisher
	b *Broadcaster
}

func NewTee(p Publisher, b *Broadcaster) *Tee {
	return &Tee{Publisher: p, b: b}
}

func (t *Tee) Publish(topic string, payload []byte, qos byte) error {
	if err := t.Publisher.Publish(topic, payload, qos); err != nil {
		return err
	}
	t.b.Write(payload)
	return nil
}
