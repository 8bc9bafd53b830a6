package service

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

type MessagePayload struct {
	ID            string     `json:"_id"`
	Sender        UserRef    `json:"sender"`
	Receiver      UserRef    `json:"receiver,omitempty"`
	Message       string     `json:"message"`
	MessageType   string     `json:"messageType"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	TicketID      string     `json:"ticketId,omitempty"`
	IsRead        bool       `json:"isRead"`
	CreatedAt     time.Time  `json:"createdAt"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
}

type UserRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type MessageNotificationPayload struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type ReadReceiptPayload struct {
	ReadBy    string    `json:"readBy"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// Chat persists messages and relays them to whoever is reachable.
// Persistence is the durability boundary: it always precedes delivery,
// and delivery is strictly best-effort with no retries. An offline
// recipient catches up through the history queries.
type Chat struct {
	repo     port.MessageRepository
	gateway  port.RealTimeGateway
	presence *Presence
	clock    clock.Clock
}

func NewChat(repo port.MessageRepository, gateway port.RealTimeGateway, presence *Presence, clk clock.Clock) *Chat {
	return &Chat{repo: repo, gateway: gateway, presence: presence, clock: clk}
}

// Send validates, persists, then relays. A persistence failure is fatal
// to the operation; an unreachable receiver is not.
func (c *Chat) Send(ctx context.Context, sender domain.Identity, receiverID domain.UserID, body string, kind domain.MessageKind, appointmentID string) (*domain.Message, error) {
	if receiverID == "" {
		return nil, domain.NewValidationError("receiverId", "receiver is required")
	}
	msg, err := domain.NewMessage(sender.UserID, receiverID, body, kind, appointmentID, c.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := c.repo.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	payload := c.toPayload(msg, sender)
	// Confirmation copy to the sender's own handles, then the receiver.
	c.gateway.SendToUser(sender.UserID, domain.Event{Name: domain.EventNewMessage, Data: payload})
	if c.presence.IsReachable(receiverID) {
		c.gateway.SendToUser(receiverID, domain.Event{Name: domain.EventNewMessage, Data: payload})
		c.gateway.SendToUser(receiverID, domain.Event{
			Name: domain.EventMessageNotification,
			Data: MessageNotificationPayload{
				SenderID:   sender.UserID.String(),
				SenderName: sender.Name,
				Message:    msg.Preview(),
				Timestamp:  msg.CreatedAt,
			},
		})
	}
	return msg, nil
}

// MarkRead flags every unread message from counterpart to reader and,
// when the counterpart is reachable, emits a read receipt to them.
func (c *Chat) MarkRead(ctx context.Context, readerID, counterpartID domain.UserID) error {
	now := c.clock.Now()
	n, err := c.repo.MarkRead(ctx, readerID, counterpartID, now)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n > 0 && c.presence.IsReachable(counterpartID) {
		c.gateway.SendToUser(counterpartID, domain.Event{
			Name: domain.EventMessagesRead,
			Data: ReadReceiptPayload{ReadBy: readerID.String(), Timestamp: now},
		})
	}
	return nil
}

// SendHelpline persists a receiverless helpline message and relays it to
// the shared helpline room, excluding the sender.
func (c *Chat) SendHelpline(ctx context.Context, sender domain.Identity, body, ticketID string) (*domain.Message, error) {
	msg, err := domain.NewMessage(sender.UserID, "", body, domain.MessageText, "", c.clock.Now())
	if err != nil {
		return nil, err
	}
	msg.Helpline = true
	if err := c.repo.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist helpline message: %w", err)
	}

	payload := c.toPayload(msg, sender)
	payload.TicketID = ticketID
	n := c.gateway.SendToRoom(domain.HelplineRoom, sender.UserID, domain.Event{
		Name: domain.EventNewHelplineMessage,
		Data: payload,
	})
	log.Debug().Str("sender", sender.UserID.String()).Int("delivered", n).Msg("helpline message relayed")
	return msg, nil
}

// JoinChat subscribes the user to the deterministic pair room used for
// typing indicators.
func (c *Chat) JoinChat(userID, counterpartID domain.UserID) {
	c.gateway.JoinRoom(domain.ChatRoomID(userID, counterpartID), userID)
}

// LeaveChat drops the user from the pair room so typing indicators stop
// reaching a closed conversation view.
func (c *Chat) LeaveChat(userID, counterpartID domain.UserID) {
	c.gateway.LeaveRoom(domain.ChatRoomID(userID, counterpartID), userID)
}

func (c *Chat) TypingStart(sender domain.Identity, receiverID domain.UserID) {
	c.gateway.SendToRoom(domain.ChatRoomID(sender.UserID, receiverID), sender.UserID, domain.Event{
		Name: domain.EventUserTyping,
		Data: TypingPayload{UserID: sender.UserID.String(), UserName: sender.Name},
	})
}

func (c *Chat) TypingStop(sender domain.Identity, receiverID domain.UserID) {
	c.gateway.SendToRoom(domain.ChatRoomID(sender.UserID, receiverID), sender.UserID, domain.Event{
		Name: domain.EventUserStoppedTyping,
		Data: TypingPayload{UserID: sender.UserID.String()},
	})
}

// Summaries lists the user's conversations: latest message and unread
// count per counterpart, most recent first.
func (c *Chat) Summaries(ctx context.Context, userID domain.UserID) ([]*domain.ConversationSummary, error) {
	return c.repo.Summaries(ctx, userID)
}

// History returns a page of the conversation, oldest first, and marks
// the counterpart's messages in it as read.
func (c *Chat) History(ctx context.Context, userID, counterpartID domain.UserID, page, limit int) ([]*domain.Message, error) {
	msgs, err := c.repo.Conversation(ctx, userID, counterpartID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if err := c.MarkRead(ctx, userID, counterpartID); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Chat) ByAppointment(ctx context.Context, appointmentID string, userID domain.UserID) ([]*domain.Message, error) {
	return c.repo.ByAppointment(ctx, appointmentID, userID)
}

// Delete soft-removes a message; only its sender may do so.
func (c *Chat) Delete(ctx context.Context, messageID domain.MessageID, requesterID domain.UserID) error {
	msg, err := c.repo.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return domain.ErrForbidden
	}
	return c.repo.Delete(ctx, messageID)
}

func (c *Chat) toPayload(msg *domain.Message, sender domain.Identity) MessagePayload {
	p := MessagePayload{
		ID:            msg.ID.String(),
		Sender:        UserRef{ID: sender.UserID.String(), Name: sender.Name, Role: sender.Role},
		Message:       msg.Body,
		MessageType:   string(msg.Kind),
		AppointmentID: msg.AppointmentID,
		IsRead:        msg.IsRead,
		CreatedAt:     msg.CreatedAt,
		ReadAt:        msg.ReadAt,
	}
	if msg.ReceiverID != "" {
		p.Receiver = UserRef{ID: msg.ReceiverID.String()}
	}
	return p
}
