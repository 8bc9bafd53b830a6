// Package notify implements the client-side notification center: a
// bounded, auto-expiring list of user-visible alerts fed by relayed
// events. It never talks to the server; it only consumes events the
// connection already received.
package notify

import (
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/medconnect/rtcore/internal/core/domain"
)

type Kind string

const (
	KindMessage  Kind = "message"
	KindCall     Kind = "call"
	KindHelpline Kind = "helpline"
	KindError    Kind = "error"
)

const (
	DefaultCapacity = 10
	DefaultTTL      = 5 * time.Second
)

type Notification struct {
	ID        string
	Kind      Kind
	Title     string
	Body      string
	Payload   any
	SenderID  domain.UserID
	CreatedAt time.Time
}

// Center holds the viewing user's alerts, newest first. The list is
// capped (oldest dropped first) and every entry auto-expires after the
// TTL unless dismissed earlier.
type Center struct {
	viewer   domain.UserID
	capacity int
	ttl      time.Duration
	clock    clock.Clock

	mu     sync.Mutex
	items  []Notification
	timers map[string]*clock.Timer
	seq    uint64
}

func NewCenter(viewer domain.UserID, capacity int, ttl time.Duration, clk clock.Clock) *Center {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		viewer:   viewer,
		capacity: capacity,
		ttl:      ttl,
		clock:    clk,
		timers:   make(map[string]*clock.Timer),
	}
}

// Push prepends the notification, evicting the oldest entry past
// capacity. Message-kind notifications the viewer authored themselves
// are suppressed. Returns the assigned id, or "" when suppressed.
func (c *Center) Push(n Notification) string {
	if n.Kind == KindMessage && n.SenderID == c.viewer {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	n.ID = strconv.FormatUint(c.seq, 10)
	n.CreatedAt = c.clock.Now()

	c.items = append([]Notification{n}, c.items...)
	if len(c.items) > c.capacity {
		evicted := c.items[len(c.items)-1]
		c.items = c.items[:c.capacity]
		c.stopTimerLocked(evicted.ID)
	}

	id := n.ID
	c.timers[id] = c.clock.AfterFunc(c.ttl, func() {
		c.Dismiss(id)
	})
	return id
}

// Dismiss removes the notification immediately.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked(id)
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Clear empties the list and cancels all pending expirations.
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.timers {
		c.stopTimerLocked(id)
	}
	c.items = nil
}

// Items returns the current list, newest first.
func (c *Center) Items() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Center) stopTimerLocked(id string) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}
