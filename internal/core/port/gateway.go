package port

import (
	"github.com/medconnect/rtcore/internal/core/domain"
)

// ConnID identifies one live connection handle.
type ConnID string

// RealTimeGateway is the delivery surface the services push typed events
// through. Delivery is best-effort: an absent recipient is not an error.
type RealTimeGateway interface {
	// SendToUser delivers to every live connection owned by the user.
	SendToUser(userID domain.UserID, ev domain.Event)
	// SendToConn delivers to a single connection handle.
	SendToConn(connID ConnID, ev domain.Event)
	// SendToRoom delivers to every room member except the excluded user.
	// Returns the number of connections the event was queued for.
	SendToRoom(roomID domain.RoomID, exclude domain.UserID, ev domain.Event) int
	// Broadcast delivers to every connected user except the excluded one.
	Broadcast(exclude domain.UserID, ev domain.Event)

	JoinRoom(roomID domain.RoomID, userID domain.UserID)
	LeaveRoom(roomID domain.RoomID, userID domain.UserID)
	CloseRoom(roomID domain.RoomID)
}
