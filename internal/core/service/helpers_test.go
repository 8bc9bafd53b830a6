package service

import (
	"sync"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

// recordedEvent captures one delivery attempt made through the fake
// gateway, tagged with where it was aimed.
type recordedEvent struct {
	Target string // "user:<id>", "conn:<id>", "room:<id>", "broadcast"
	Event  domain.Event
}

// fakeGateway implements port.RealTimeGateway for service tests. Room
// and reachability bookkeeping mirrors the real hub closely enough to
// exercise fan-out logic.
type fakeGateway struct {
	mu     sync.Mutex
	events []recordedEvent
	online map[domain.UserID]int // connection count per user
	rooms  map[domain.RoomID]map[domain.UserID]struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		online: make(map[domain.UserID]int),
		rooms:  make(map[domain.RoomID]map[domain.UserID]struct{}),
	}
}

func (g *fakeGateway) connect(userID domain.UserID)    { g.mu.Lock(); g.online[userID]++; g.mu.Unlock() }
func (g *fakeGateway) disconnect(userID domain.UserID) { g.mu.Lock(); g.online[userID]--; g.mu.Unlock() }

func (g *fakeGateway) SendToUser(userID domain.UserID, ev domain.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, recordedEvent{Target: "user:" + userID.String(), Event: ev})
}

func (g *fakeGateway) SendToConn(connID port.ConnID, ev domain.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, recordedEvent{Target: "conn:" + string(connID), Event: ev})
}

func (g *fakeGateway) SendToRoom(roomID domain.RoomID, exclude domain.UserID, ev domain.Event) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for userID := range g.rooms[roomID] {
		if userID == exclude {
			continue
		}
		if g.online[userID] > 0 {
			n += g.online[userID]
		}
		g.events = append(g.events, recordedEvent{Target: "room:" + roomID.String() + ":" + userID.String(), Event: ev})
	}
	return n
}

func (g *fakeGateway) Broadcast(exclude domain.UserID, ev domain.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, recordedEvent{Target: "broadcast", Event: ev})
}

func (g *fakeGateway) JoinRoom(roomID domain.RoomID, userID domain.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room := g.rooms[roomID]
	if room == nil {
		room = make(map[domain.UserID]struct{})
		g.rooms[roomID] = room
	}
	room[userID] = struct{}{}
}

func (g *fakeGateway) LeaveRoom(roomID domain.RoomID, userID domain.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms[roomID], userID)
}

func (g *fakeGateway) CloseRoom(roomID domain.RoomID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, roomID)
}

// byName returns every recorded event with the given name.
func (g *fakeGateway) byName(name string) []recordedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []recordedEvent
	for _, e := range g.events {
		if e.Event.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// forUser returns events aimed directly at the user.
func (g *fakeGateway) forUser(userID domain.UserID, name string) []recordedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []recordedEvent
	for _, e := range g.events {
		if e.Target == "user:"+userID.String() && e.Event.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (g *fakeGateway) reset() {
	g.mu.Lock()
	g.events = nil
	g.mu.Unlock()
}

var _ port.RealTimeGateway = (*fakeGateway)(nil)
