package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Conn wraps one websocket and serializes outbound writes through a
// buffered channel so no service ever blocks on a slow peer.
type Conn struct {
	id       port.ConnID
	identity domain.Identity

	ws     *websocket.Conn
	send   chan domain.Event
	once   sync.Once
	closed chan struct{}
}

func NewConn(identity domain.Identity, wsConn *websocket.Conn) *Conn {
	return &Conn{
		id:       port.ConnID(uuid.NewString()),
		identity: identity,
		ws:       wsConn,
		send:     make(chan domain.Event, sendBuffer),
		closed:   make(chan struct{}),
	}
}

func (c *Conn) ID() port.ConnID {
	return c.id
}

func (c *Conn) Identity() domain.Identity {
	return c.identity
}

// Send queues an event for delivery. A full buffer closes the
// connection to keep backpressure bounded.
func (c *Conn) Send(ev domain.Event) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.send <- ev:
		return nil
	default:
		c.Close()
		return errors.New("send buffer full")
	}
}

func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings. Started by the hub on registration.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("conn_id", string(c.id)).Msg("write failed, closing")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
