package domain

import "time"

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallAudio || k == CallVideo
}

type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallAnswered  CallStatus = "answered"
	CallEnded     CallStatus = "ended"
	CallMissed    CallStatus = "missed"
	CallRejected  CallStatus = "rejected"
)

// Terminal states are final: no transition ever leaves them.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallEnded, CallMissed, CallRejected:
		return true
	}
	return false
}

// CanTransition validates the lifecycle:
// initiated -> ringing -> answered -> ended; reject from initiated/ringing;
// missed from initiated/ringing; ended from any non-terminal state.
func (s CallStatus) CanTransition(to CallStatus) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case CallRinging:
		return s == CallInitiated
	case CallAnswered:
		return s == CallRinging
	case CallRejected, CallMissed:
		return s == CallInitiated || s == CallRinging
	case CallEnded:
		return true
	}
	return false
}

type CallQuality string

const (
	QualityExcellent CallQuality = "excellent"
	QualityGood      CallQuality = "good"
	QualityFair      CallQuality = "fair"
	QualityPoor      CallQuality = "poor"
)

func (q CallQuality) Valid() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return true
	}
	return false
}

const MaxCallNotesLength = 500

// CallSession is the durable record for one call attempt. It references
// the two participants by user id, never by connection handle, so a
// reconnect cannot orphan it.
type CallSession struct {
	CallID        CallID
	RoomID        RoomID
	CallerID      UserID
	ReceiverID    UserID
	Kind          CallKind
	Status        CallStatus
	StartTime     *time.Time
	EndTime       *time.Time
	Duration      int // seconds, derived from start/end
	AppointmentID string
	Emergency     bool
	Quality       CallQuality
	Notes         string
	CreatedAt     time.Time
}

func (c *CallSession) Participant(id UserID) bool {
	return c.CallerID == id || c.ReceiverID == id
}

func (c *CallSession) Other(id UserID) UserID {
	if c.CallerID == id {
		return c.ReceiverID
	}
	return c.CallerID
}

// ComputeDuration derives the duration in whole seconds once both stamps
// exist. Repeated calls are idempotent.
func (c *CallSession) ComputeDuration() {
	if c.StartTime != nil && c.EndTime != nil {
		c.Duration = int(c.EndTime.Sub(*c.StartTime) / time.Second)
	}
}
