package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

type CallEventPayload struct {
	CallID string `json:"callId"`
	RoomID string `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

type CallFailedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

type IncomingCallPayload struct {
	CallID        string  `json:"callId"`
	RoomID        string  `json:"roomId"`
	Caller        UserRef `json:"caller"`
	CallType      string  `json:"callType"`
	AppointmentID string  `json:"appointmentId,omitempty"`
	Emergency     bool    `json:"isEmergency,omitempty"`
}

type CallInitiatedPayload struct {
	CallID        string  `json:"callId"`
	RoomID        string  `json:"roomId"`
	Receiver      UserRef `json:"receiver"`
	CallType      string  `json:"callType"`
	AppointmentID string  `json:"appointmentId,omitempty"`
}

// activeCall serializes all transitions for one call attempt. Holding
// the per-call lock across check-and-set is what makes a concurrent
// answer/reject race resolve to exactly one winner.
type activeCall struct {
	mu   sync.Mutex
	sess *domain.CallSession
}

// Call owns the lifecycle of every call attempt and fans lifecycle
// events out to both participants.
type Call struct {
	repo     port.CallRepository
	gateway  port.RealTimeGateway
	presence *Presence
	clock    clock.Clock

	mu     sync.Mutex
	active map[domain.CallID]*activeCall
}

func NewCall(repo port.CallRepository, gateway port.RealTimeGateway, presence *Presence, clk clock.Clock) *Call {
	return &Call{
		repo:     repo,
		gateway:  gateway,
		presence: presence,
		clock:    clk,
		active:   make(map[domain.CallID]*activeCall),
	}
}

// Initiate creates the session and either rings the receiver or, when
// the receiver is unreachable, marks the attempt missed. The receiver is
// never notified of a missed attempt.
func (s *Call) Initiate(ctx context.Context, caller domain.Identity, receiverID domain.UserID, kind domain.CallKind, appointmentID string, emergency bool) (*domain.CallSession, error) {
	if receiverID == "" {
		return nil, domain.NewValidationError("receiverId", "receiver is required")
	}
	if !kind.Valid() {
		return nil, domain.NewValidationError("callType", "must be audio or video")
	}

	callID := domain.NewCallID()
	sess := &domain.CallSession{
		CallID:        callID,
		RoomID:        domain.NewCallRoomID(callID),
		CallerID:      caller.UserID,
		ReceiverID:    receiverID,
		Kind:          kind,
		Status:        domain.CallInitiated,
		AppointmentID: appointmentID,
		Emergency:     emergency,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist call session: %w", err)
	}

	if !s.presence.IsReachable(receiverID) {
		now := s.clock.Now()
		sess.Status = domain.CallMissed
		sess.EndTime = &now
		if err := s.repo.Update(ctx, sess); err != nil {
			return nil, fmt.Errorf("update call session: %w", err)
		}
		s.gateway.SendToUser(caller.UserID, domain.Event{
			Name: domain.EventCallFailed,
			Data: CallFailedPayload{CallID: callID.String(), Reason: "recipient offline"},
		})
		log.Info().Str("call_id", callID.String()).Msg("call missed, recipient offline")
		return sess, domain.ErrUnreachablePeer
	}

	sess.Status = domain.CallRinging
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update call session: %w", err)
	}

	ac := &activeCall{sess: sess}
	s.mu.Lock()
	s.active[callID] = ac
	s.mu.Unlock()

	// Both parties share the room so the negotiation relay can address
	// them collectively.
	s.gateway.JoinRoom(sess.RoomID, caller.UserID)
	s.gateway.JoinRoom(sess.RoomID, receiverID)

	receiverRef := UserRef{ID: receiverID.String()}
	if id, ok := s.presence.IdentityOf(receiverID); ok {
		receiverRef.Name = id.Name
		receiverRef.Role = id.Role
	}

	s.gateway.SendToUser(receiverID, domain.Event{
		Name: domain.EventIncomingCall,
		Data: IncomingCallPayload{
			CallID:        callID.String(),
			RoomID:        sess.RoomID.String(),
			Caller:        UserRef{ID: caller.UserID.String(), Name: caller.Name, Role: caller.Role},
			CallType:      string(kind),
			AppointmentID: appointmentID,
			Emergency:     emergency,
		},
	})
	s.gateway.SendToUser(caller.UserID, domain.Event{
		Name: domain.EventCallInitiated,
		Data: CallInitiatedPayload{
			CallID:        callID.String(),
			RoomID:        sess.RoomID.String(),
			Receiver:      receiverRef,
			CallType:      string(kind),
			AppointmentID: appointmentID,
		},
	})

	log.Info().
		Str("call_id", callID.String()).
		Str("caller", caller.UserID.String()).
		Str("receiver", receiverID.String()).
		Str("kind", string(kind)).
		Msg("call ringing")
	return sess, nil
}

// Answer is valid only from ringing and only for the receiver. It stamps
// the start time and tells both room members the call is live.
func (s *Call) Answer(ctx context.Context, callID domain.CallID, answererID domain.UserID) error {
	ac, ok := s.lookup(callID)
	if !ok {
		return domain.ErrNotFound
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()

	sess := ac.sess
	if sess.ReceiverID != answererID {
		return domain.ErrForbidden
	}
	if !sess.Status.CanTransition(domain.CallAnswered) {
		return domain.ErrInvalidTransition
	}
	now := s.clock.Now()
	sess.Status = domain.CallAnswered
	sess.StartTime = &now
	if err := s.repo.Update(ctx, sess); err != nil {
		// Roll the in-memory state back so a retry can succeed.
		sess.Status = domain.CallRinging
		sess.StartTime = nil
		return fmt.Errorf("update call session: %w", err)
	}

	s.gateway.SendToRoom(sess.RoomID, "", domain.Event{
		Name: domain.EventCallAnswered,
		Data: CallEventPayload{CallID: callID.String(), RoomID: sess.RoomID.String()},
	})
	log.Info().Str("call_id", callID.String()).Msg("call answered")
	return nil
}

// Reject is valid from initiated or ringing. Terminal: the room is torn
// down and the caller notified.
func (s *Call) Reject(ctx context.Context, callID domain.CallID, rejecterID domain.UserID) error {
	ac, ok := s.lookup(callID)
	if !ok {
		return domain.ErrNotFound
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()

	sess := ac.sess
	if !sess.Participant(rejecterID) {
		return domain.ErrForbidden
	}
	if !sess.Status.CanTransition(domain.CallRejected) {
		return domain.ErrInvalidTransition
	}
	prevStatus := sess.Status
	now := s.clock.Now()
	sess.Status = domain.CallRejected
	sess.EndTime = &now
	if err := s.repo.Update(ctx, sess); err != nil {
		sess.Status = prevStatus
		sess.EndTime = nil
		return fmt.Errorf("update call session: %w", err)
	}

	s.gateway.SendToRoom(sess.RoomID, rejecterID, domain.Event{
		Name: domain.EventCallRejected,
		Data: CallEventPayload{CallID: callID.String(), RoomID: sess.RoomID.String()},
	})
	s.teardown(callID, sess.RoomID)
	log.Info().Str("call_id", callID.String()).Msg("call rejected")
	return nil
}

// End moves any non-terminal session to ended, stamping the end time
// once and computing the duration. Delivering the same end twice is a
// no-op: terminal sessions are never re-stamped or re-notified.
func (s *Call) End(ctx context.Context, callID domain.CallID, enderID domain.UserID) error {
	return s.end(ctx, callID, enderID, "")
}

func (s *Call) end(ctx context.Context, callID domain.CallID, enderID domain.UserID, reason string) error {
	ac, ok := s.lookup(callID)
	if !ok {
		// Already torn down; swallow the duplicate if the stored
		// session is terminal.
		sess, err := s.repo.Get(ctx, callID)
		if err != nil {
			return err
		}
		if sess.Status.Terminal() {
			return nil
		}
		ac = &activeCall{sess: sess}
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()

	sess := ac.sess
	if enderID != "" && !sess.Participant(enderID) {
		return domain.ErrForbidden
	}
	if sess.Status.Terminal() {
		return nil
	}
	prevStatus, prevEnd := sess.Status, sess.EndTime
	now := s.clock.Now()
	sess.Status = domain.CallEnded
	if sess.EndTime == nil {
		sess.EndTime = &now
	}
	sess.ComputeDuration()
	if err := s.repo.Update(ctx, sess); err != nil {
		sess.Status = prevStatus
		sess.EndTime = prevEnd
		return fmt.Errorf("update call session: %w", err)
	}

	s.gateway.SendToRoom(sess.RoomID, "", domain.Event{
		Name: domain.EventCallEnded,
		Data: CallEventPayload{CallID: callID.String(), RoomID: sess.RoomID.String(), Reason: reason},
	})
	s.teardown(callID, sess.RoomID)
	log.Info().Str("call_id", callID.String()).Int("duration", sess.Duration).Msg("call ended")
	return nil
}

// HandleDisconnect forces every non-terminal session the user holds to
// ended once their last connection is gone, so no session dangles with
// both participants unreachable.
func (s *Call) HandleDisconnect(userID domain.UserID) {
	s.mu.Lock()
	var affected []domain.CallID
	for id, ac := range s.active {
		if ac.sess.Participant(userID) {
			affected = append(affected, id)
		}
	}
	s.mu.Unlock()

	for _, id := range affected {
		if err := s.end(context.Background(), id, "", "peer disconnected"); err != nil &&
			!errors.Is(err, domain.ErrInvalidTransition) {
			log.Error().Err(err).Str("call_id", id.String()).Msg("failed to end call on disconnect")
		}
	}
}

// Rate records a post-call quality rating from either participant.
func (s *Call) Rate(ctx context.Context, callID domain.CallID, raterID domain.UserID, quality domain.CallQuality, notes string) error {
	if !quality.Valid() {
		return domain.NewValidationError("quality", "must be excellent, good, fair or poor")
	}
	if len(notes) > domain.MaxCallNotesLength {
		return domain.NewValidationError("notes", "notes exceed maximum length")
	}
	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		return err
	}
	if !sess.Participant(raterID) {
		return domain.ErrForbidden
	}
	sess.Quality = quality
	if notes != "" {
		sess.Notes = notes
	}
	return s.repo.Update(ctx, sess)
}

// Get returns a session, gated to its participants.
func (s *Call) Get(ctx context.Context, callID domain.CallID, userID domain.UserID) (*domain.CallSession, error) {
	sess, err := s.repo.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !sess.Participant(userID) {
		return nil, domain.ErrForbidden
	}
	return sess, nil
}

// HistoryFor returns the user's call history, newest first.
func (s *Call) HistoryFor(ctx context.Context, userID domain.UserID, filter port.CallFilter, page, limit int) ([]*domain.CallSession, int, error) {
	return s.repo.HistoryFor(ctx, userID, filter, page, limit)
}

func (s *Call) lookup(callID domain.CallID) (*activeCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.active[callID]
	return ac, ok
}

// teardown unwinds room membership and the active entry together with
// the terminal transition; callers hold the per-call lock.
func (s *Call) teardown(callID domain.CallID, roomID domain.RoomID) {
	s.gateway.CloseRoom(roomID)
	s.mu.Lock()
	delete(s.active, callID)
	s.mu.Unlock()
}
