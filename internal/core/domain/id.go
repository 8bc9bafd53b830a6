package domain

import (
	"github.com/google/uuid"
)

// UserID is assigned by the identity verifier at connect time; this core
// never mints user ids itself.
type UserID string

func (id UserID) String() string {
	return string(id)
}

type MessageID string

func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}

func (id MessageID) String() string {
	return string(id)
}

type CallID string

func NewCallID() CallID {
	return CallID(uuid.NewString())
}

func (id CallID) String() string {
	return string(id)
}

// RoomID names a logical delivery group: a call room, a chat pairing,
// or the shared helpline channel.
type RoomID string

func NewCallRoomID(callID CallID) RoomID {
	return RoomID("call_" + callID.String())
}

// ChatRoomID is deterministic for a pair of users so both sides land in
// the same room regardless of who joined first.
func ChatRoomID(a, b UserID) RoomID {
	if b < a {
		a, b = b, a
	}
	return RoomID(a.String() + "_" + b.String())
}

const HelplineRoom RoomID = "helpline"

func (id RoomID) String() string {
	return string(id)
}
