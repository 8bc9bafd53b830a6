package service

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

type OfferPayload struct {
	Offer    json.RawMessage `json:"offer"`
	SenderID string          `json:"senderId"`
}

type AnswerPayload struct {
	Answer   json.RawMessage `json:"answer"`
	SenderID string          `json:"senderId"`
}

type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	SenderID  string          `json:"senderId"`
}

// Relay is a pure pass-through for WebRTC negotiation payloads: offers,
// answers and ICE candidates are forwarded to the other room members
// annotated with the sender, never parsed and never persisted. A room
// with no other member silently drops the payload; disconnect handling
// in the call service reconciles the session later.
type Relay struct {
	gateway port.RealTimeGateway
}

func NewRelay(gateway port.RealTimeGateway) *Relay {
	return &Relay{gateway: gateway}
}

func (r *Relay) RelayOffer(roomID domain.RoomID, sender domain.UserID, offer json.RawMessage) {
	r.forward(roomID, sender, domain.Event{
		Name: domain.EventWebRTCOffer,
		Data: OfferPayload{Offer: offer, SenderID: sender.String()},
	})
}

func (r *Relay) RelayAnswer(roomID domain.RoomID, sender domain.UserID, answer json.RawMessage) {
	r.forward(roomID, sender, domain.Event{
		Name: domain.EventWebRTCAnswer,
		Data: AnswerPayload{Answer: answer, SenderID: sender.String()},
	})
}

func (r *Relay) RelayICECandidate(roomID domain.RoomID, sender domain.UserID, candidate json.RawMessage) {
	r.forward(roomID, sender, domain.Event{
		Name: domain.EventWebRTCICECandidate,
		Data: CandidatePayload{Candidate: candidate, SenderID: sender.String()},
	})
}

func (r *Relay) forward(roomID domain.RoomID, sender domain.UserID, ev domain.Event) {
	if n := r.gateway.SendToRoom(roomID, sender, ev); n == 0 {
		// Fire-and-forget: the peer already left or never joined.
		log.Debug().Str("room_id", roomID.String()).Str("event", ev.Name).Msg("negotiation payload dropped")
	}
}
