package domain

import "time"

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// Identity is what the verifier hands this core per connection.
type Identity struct {
	UserID UserID
	Name   string
	Role   string
}

// PresenceEntry is the externally visible presence of one user: online
// iff the user has at least one live connection, with offline transitions
// absorbed by the grace window.
type PresenceEntry struct {
	UserID   UserID
	Name     string
	Role     string
	Status   PresenceStatus
	LastSeen time.Time
}
