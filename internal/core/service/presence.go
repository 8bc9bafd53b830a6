package service

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

// DefaultOfflineGrace absorbs tab refreshes and network blips before a
// user is declared offline to everyone else.
const DefaultOfflineGrace = 30 * time.Second

type StatusChangePayload struct {
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type presenceEntry struct {
	identity     domain.Identity
	handles      map[port.ConnID]struct{}
	status       domain.PresenceStatus
	lastSeen     time.Time
	offlineTimer *clock.Timer
}

// Presence is the single source of truth for which users are reachable.
// Offline transitions are delayed by a grace window; a reconnect inside
// the window cancels the pending transition so other users never observe
// an offline/online flicker.
type Presence struct {
	gateway port.RealTimeGateway
	clock   clock.Clock
	grace   time.Duration

	mu      sync.Mutex
	entries map[domain.UserID]*presenceEntry

	hookMu     sync.RWMutex
	onLastGone []func(domain.UserID)
}

func NewPresence(gateway port.RealTimeGateway, clk clock.Clock, grace time.Duration) *Presence {
	if grace <= 0 {
		grace = DefaultOfflineGrace
	}
	return &Presence{
		gateway: gateway,
		clock:   clk,
		grace:   grace,
		entries: make(map[domain.UserID]*presenceEntry),
	}
}

// OnLastHandleGone registers a hook fired synchronously when a user's
// final connection drops, before the grace window runs. The call service
// uses it to force active sessions closed.
func (p *Presence) OnLastHandleGone(fn func(domain.UserID)) {
	p.hookMu.Lock()
	p.onLastGone = append(p.onLastGone, fn)
	p.hookMu.Unlock()
}

// Register adds a handle for the identity. The first handle of an
// offline user emits exactly one online broadcast; additional handles
// (multi-device) and reconnects inside the grace window emit nothing.
func (p *Presence) Register(id domain.Identity, handle port.ConnID) {
	p.mu.Lock()
	entry, ok := p.entries[id.UserID]
	if !ok {
		entry = &presenceEntry{
			identity: id,
			handles:  make(map[port.ConnID]struct{}),
			status:   domain.StatusOffline,
		}
		p.entries[id.UserID] = entry
	}
	entry.identity = id
	entry.handles[handle] = struct{}{}
	entry.lastSeen = p.clock.Now()

	if entry.offlineTimer != nil {
		entry.offlineTimer.Stop()
		entry.offlineTimer = nil
	}

	announce := entry.status == domain.StatusOffline
	entry.status = domain.StatusOnline
	p.mu.Unlock()

	if announce {
		log.Debug().Str("user_id", id.UserID.String()).Msg("user online")
		p.gateway.Broadcast(id.UserID, domain.Event{
			Name: domain.EventUserStatusChanged,
			Data: StatusChangePayload{
				UserID:   id.UserID.String(),
				UserName: id.Name,
				Status:   string(domain.StatusOnline),
			},
		})
	}
}

// Unregister removes a handle. Removing the user's last handle fires the
// last-handle-gone hooks immediately and schedules the offline broadcast
// after the grace window.
func (p *Presence) Unregister(userID domain.UserID, handle port.ConnID) {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(entry.handles, handle)
	entry.lastSeen = p.clock.Now()
	last := len(entry.handles) == 0
	if last && entry.offlineTimer == nil {
		entry.offlineTimer = p.clock.AfterFunc(p.grace, func() {
			p.declareOffline(userID)
		})
	}
	p.mu.Unlock()

	if last {
		p.hookMu.RLock()
		hooks := p.onLastGone
		p.hookMu.RUnlock()
		for _, fn := range hooks {
			fn(userID)
		}
	}
}

func (p *Presence) declareOffline(userID domain.UserID) {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	if !ok || len(entry.handles) > 0 {
		p.mu.Unlock()
		return
	}
	entry.status = domain.StatusOffline
	entry.offlineTimer = nil
	name := entry.identity.Name
	lastSeen := entry.lastSeen
	p.mu.Unlock()

	log.Debug().Str("user_id", userID.String()).Msg("user offline")
	p.gateway.Broadcast(userID, domain.Event{
		Name: domain.EventUserStatusChanged,
		Data: StatusChangePayload{
			UserID:   userID.String(),
			UserName: name,
			Status:   string(domain.StatusOffline),
			LastSeen: &lastSeen,
		},
	})
}

// IsReachable reports whether the user has at least one live connection.
func (p *Presence) IsReachable(userID domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	return ok && len(entry.handles) > 0
}

// HandlesFor returns the user's live connection handles.
func (p *Presence) HandlesFor(userID domain.UserID) []port.ConnID {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	if !ok {
		return nil
	}
	out := make([]port.ConnID, 0, len(entry.handles))
	for h := range entry.handles {
		out = append(out, h)
	}
	return out
}

// IdentityOf returns the verified identity last seen for the user.
func (p *Presence) IdentityOf(userID domain.UserID) (domain.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	if !ok {
		return domain.Identity{}, false
	}
	return entry.identity, true
}

// Snapshot lists every user currently considered online.
func (p *Presence) Snapshot() []domain.PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.PresenceEntry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.status != domain.StatusOnline {
			continue
		}
		out = append(out, domain.PresenceEntry{
			UserID:   e.identity.UserID,
			Name:     e.identity.Name,
			Role:     e.identity.Role,
			Status:   e.status,
			LastSeen: e.lastSeen,
		})
	}
	return out
}
