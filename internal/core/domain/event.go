package domain

// Event is one outbound frame pushed onto a connection's send queue.
// Data must be JSON-marshalable; the transport never inspects it.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Outbound event names.
const (
	EventNewMessage          = "new_message"
	EventMessageNotification = "message_notification"
	EventMessagesRead        = "messages_read"
	EventUserStatusChanged   = "user_status_changed"
	EventIncomingCall        = "incoming_call"
	EventCallInitiated       = "call_initiated"
	EventCallAnswered        = "call_answered"
	EventCallRejected        = "call_rejected"
	EventCallEnded           = "call_ended"
	EventCallFailed          = "call_failed"
	EventWebRTCOffer         = "webrtc_offer"
	EventWebRTCAnswer        = "webrtc_answer"
	EventWebRTCICECandidate  = "webrtc_ice_candidate"
	EventUserTyping          = "user_typing"
	EventUserStoppedTyping   = "user_stopped_typing"
	EventNewHelplineMessage  = "new_helpline_message"
	EventError               = "error"
)
