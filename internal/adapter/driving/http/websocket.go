package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medconnect/rtcore/internal/adapter/driven/gateway/ws"
	"github.com/medconnect/rtcore/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict to the portal origin before production
	CheckOrigin: func(r *http.Request) bool { return true },
}

const maxFrameSize = 1 << 20

// inboundFrame is the envelope every client event arrives in.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS authenticates the credential, upgrades the connection and
// pumps inbound events into the services until the client goes away.
// A bad credential refuses the connection before any event surface
// exists to report through.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	identity, err := h.Verifier.Verify(r.Context(), token)
	if err != nil {
		log.Warn().Err(err).Msg("websocket auth rejected")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameSize)

	client := ws.NewConn(identity, conn)
	l := log.With().
		Str("conn_id", string(client.ID())).
		Str("user_id", identity.UserID.String()).
		Logger()
	l.Info().Str("name", identity.Name).Msg("client connected")

	h.Hub.Register(client)
	h.Presence.Register(identity, client.ID())

	defer func() {
		l.Info().Msg("client disconnected")
		h.Hub.Unregister(client)
		h.Presence.Unregister(identity.UserID, client.ID())
	}()

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("unexpected close")
			}
			break
		}
		h.dispatch(r, client, identity, frame, l)
	}
}

func (h *Handler) dispatch(r *http.Request, client *ws.Conn, identity domain.Identity, frame inboundFrame, l zerolog.Logger) {
	ctx := r.Context()

	fail := func(err error) {
		if err == nil {
			return
		}
		code := "internal"
		switch {
		case domain.IsValidation(err):
			code = "validation"
		case errors.Is(err, domain.ErrInvalidTransition):
			code = "invalid_transition"
		case errors.Is(err, domain.ErrNotFound):
			code = "not_found"
		case errors.Is(err, domain.ErrForbidden):
			code = "forbidden"
		case errors.Is(err, domain.ErrUnreachablePeer):
			// The service already reported this through call_failed.
			return
		default:
			l.Error().Err(err).Str("event", frame.Event).Msg("event failed")
		}
		h.Hub.SendToConn(client.ID(), domain.Event{
			Name: domain.EventError,
			Data: errorPayload{Code: code, Message: err.Error()},
		})
	}

	switch frame.Event {
	case "join_chat":
		var d struct {
			ReceiverID string `json:"receiverId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		h.Chat.JoinChat(identity.UserID, domain.UserID(d.ReceiverID))

	case "leave_chat":
		var d struct {
			ReceiverID string `json:"receiverId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return
		}
		h.Chat.LeaveChat(identity.UserID, domain.UserID(d.ReceiverID))

	case "send_message":
		var d struct {
			ReceiverID    string `json:"receiverId"`
			Message       string `json:"message"`
			MessageType   string `json:"messageType"`
			AppointmentID string `json:"appointmentId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		_, err := h.Chat.Send(ctx, identity, domain.UserID(d.ReceiverID), d.Message, domain.MessageKind(d.MessageType), d.AppointmentID)
		fail(err)

	case "mark_messages_read":
		var d struct {
			SenderID string `json:"senderId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		fail(h.Chat.MarkRead(ctx, identity.UserID, domain.UserID(d.SenderID)))

	case "initiate_call":
		var d struct {
			ReceiverID    string `json:"receiverId"`
			CallType      string `json:"callType"`
			AppointmentID string `json:"appointmentId"`
			Emergency     bool   `json:"isEmergency"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		_, err := h.Call.Initiate(ctx, identity, domain.UserID(d.ReceiverID), domain.CallKind(d.CallType), d.AppointmentID, d.Emergency)
		fail(err)

	case "answer_call":
		var d struct {
			CallID string `json:"callId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		fail(h.Call.Answer(ctx, domain.CallID(d.CallID), identity.UserID))

	case "reject_call":
		var d struct {
			CallID string `json:"callId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		fail(h.Call.Reject(ctx, domain.CallID(d.CallID), identity.UserID))

	case "end_call":
		var d struct {
			CallID string `json:"callId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		fail(h.Call.End(ctx, domain.CallID(d.CallID), identity.UserID))

	case "webrtc_offer":
		var d struct {
			RoomID string          `json:"roomId"`
			Offer  json.RawMessage `json:"offer"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		h.Relay.RelayOffer(domain.RoomID(d.RoomID), identity.UserID, d.Offer)

	case "webrtc_answer":
		var d struct {
			RoomID string          `json:"roomId"`
			Answer json.RawMessage `json:"answer"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		h.Relay.RelayAnswer(domain.RoomID(d.RoomID), identity.UserID, d.Answer)

	case "webrtc_ice_candidate":
		var d struct {
			RoomID    string          `json:"roomId"`
			Candidate json.RawMessage `json:"candidate"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		h.Relay.RelayICECandidate(domain.RoomID(d.RoomID), identity.UserID, d.Candidate)

	case "typing_start":
		var d struct {
			ReceiverID string `json:"receiverId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return
		}
		h.Chat.TypingStart(identity, domain.UserID(d.ReceiverID))

	case "typing_stop":
		var d struct {
			ReceiverID string `json:"receiverId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return
		}
		h.Chat.TypingStop(identity, domain.UserID(d.ReceiverID))

	case "join_helpline":
		h.Hub.JoinRoom(domain.HelplineRoom, identity.UserID)

	case "helpline_message":
		var d struct {
			Message  string `json:"message"`
			TicketID string `json:"ticketId"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			fail(domain.NewValidationError("data", "malformed payload"))
			return
		}
		_, err := h.Chat.SendHelpline(ctx, identity, d.Message, d.TicketID)
		fail(err)

	default:
		l.Debug().Str("event", frame.Event).Msg("unknown event ignored")
	}
}
