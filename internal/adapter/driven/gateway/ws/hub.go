package ws

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

// Hub implements port.RealTimeGateway. It tracks every live connection,
// groups them by owning user for multi-device fan-out, and keeps room
// membership by user id so a reconnect does not orphan a call room.
type Hub struct {
	mu        sync.RWMutex
	conns     map[port.ConnID]*Conn
	byUser    map[domain.UserID]map[port.ConnID]*Conn
	rooms     map[domain.RoomID]map[domain.UserID]struct{}
	userRooms map[domain.UserID]map[domain.RoomID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns:     make(map[port.ConnID]*Conn),
		byUser:    make(map[domain.UserID]map[port.ConnID]*Conn),
		rooms:     make(map[domain.RoomID]map[domain.UserID]struct{}),
		userRooms: make(map[domain.UserID]map[domain.RoomID]struct{}),
	}
}

// Register tracks the connection and starts its write pump.
func (h *Hub) Register(c *Conn) {
	userID := c.identity.UserID
	h.mu.Lock()
	h.conns[c.id] = c
	set := h.byUser[userID]
	if set == nil {
		set = make(map[port.ConnID]*Conn)
		h.byUser[userID] = set
	}
	set[c.id] = c
	h.mu.Unlock()

	go c.writePump()
	log.Info().Str("conn_id", string(c.id)).Str("user_id", userID.String()).Msg("connection registered")
}

// Unregister drops the connection; the user's room memberships are
// purged once their last connection is gone.
func (h *Hub) Unregister(c *Conn) {
	userID := c.identity.UserID
	h.mu.Lock()
	delete(h.conns, c.id)
	if set := h.byUser[userID]; set != nil {
		delete(set, c.id)
		if len(set) == 0 {
			delete(h.byUser, userID)
			for roomID := range h.userRooms[userID] {
				h.removeFromRoomLocked(roomID, userID)
			}
			delete(h.userRooms, userID)
		}
	}
	h.mu.Unlock()

	c.Close()
	log.Info().Str("conn_id", string(c.id)).Str("user_id", userID.String()).Msg("connection unregistered")
}

func (h *Hub) SendToUser(userID domain.UserID, ev domain.Event) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(ev); err != nil {
			log.Debug().Err(err).Str("conn_id", string(c.id)).Str("event", ev.Name).Msg("delivery dropped")
		}
	}
}

func (h *Hub) SendToConn(connID port.ConnID, ev domain.Event) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := c.Send(ev); err != nil {
		log.Debug().Err(err).Str("conn_id", string(connID)).Str("event", ev.Name).Msg("delivery dropped")
	}
}

func (h *Hub) SendToRoom(roomID domain.RoomID, exclude domain.UserID, ev domain.Event) int {
	h.mu.RLock()
	var conns []*Conn
	for userID := range h.rooms[roomID] {
		if userID == exclude {
			continue
		}
		for _, c := range h.byUser[userID] {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range conns {
		if err := c.Send(ev); err == nil {
			n++
		}
	}
	return n
}

func (h *Hub) Broadcast(exclude domain.UserID, ev domain.Event) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		if c.identity.UserID == exclude {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Send(ev)
	}
}

func (h *Hub) JoinRoom(roomID domain.RoomID, userID domain.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID]
	if room == nil {
		room = make(map[domain.UserID]struct{})
		h.rooms[roomID] = room
	}
	room[userID] = struct{}{}

	memberships := h.userRooms[userID]
	if memberships == nil {
		memberships = make(map[domain.RoomID]struct{})
		h.userRooms[userID] = memberships
	}
	memberships[roomID] = struct{}{}
}

func (h *Hub) LeaveRoom(roomID domain.RoomID, userID domain.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(roomID, userID)
	if memberships := h.userRooms[userID]; memberships != nil {
		delete(memberships, roomID)
	}
}

// removeFromRoomLocked drops the user from the room, discarding the
// room once its last member is gone. Caller holds h.mu.
func (h *Hub) removeFromRoomLocked(roomID domain.RoomID, userID domain.UserID) {
	room := h.rooms[roomID]
	if room == nil {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) CloseRoom(roomID domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID := range h.rooms[roomID] {
		if memberships := h.userRooms[userID]; memberships != nil {
			delete(memberships, roomID)
		}
	}
	delete(h.rooms, roomID)
}

// RoomMembers returns the user ids currently in the room.
func (h *Hub) RoomMembers(roomID domain.RoomID) []domain.UserID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.UserID, 0, len(h.rooms[roomID]))
	for userID := range h.rooms[roomID] {
		out = append(out, userID)
	}
	return out
}

// Stop closes every live connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[port.ConnID]*Conn)
	h.byUser = make(map[domain.UserID]map[port.ConnID]*Conn)
	h.rooms = make(map[domain.RoomID]map[domain.UserID]struct{})
	h.userRooms = make(map[domain.UserID]map[domain.RoomID]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
