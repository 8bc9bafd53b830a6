package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

// MessageRepository keeps messages in memory. Used by tests and dev mode.
type MessageRepository struct {
	mu       sync.RWMutex
	messages []*domain.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

var _ port.MessageRepository = (*MessageRepository)(nil)

func (r *MessageRepository) Save(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *MessageRepository) MarkRead(_ context.Context, reader, sender domain.UserID, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.SenderID == sender && m.ReceiverID == reader && !m.IsRead {
			m.IsRead = true
			t := at
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (r *MessageRepository) Conversation(_ context.Context, a, b domain.UserID, page, limit int) ([]*domain.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	r.mu.RLock()
	var all []*domain.Message
	for _, m := range r.messages {
		if m.Helpline {
			continue
		}
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			cp := *m
			all = append(all, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	// Page from the newest, return oldest first.
	end := len(all) - (page-1)*limit
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return all[start:end], nil
}

func (r *MessageRepository) Summaries(_ context.Context, userID domain.UserID) ([]*domain.ConversationSummary, error) {
	r.mu.RLock()
	var mine []*domain.Message
	for _, m := range r.messages {
		if m.Helpline {
			continue
		}
		if m.SenderID == userID || m.ReceiverID == userID {
			cp := *m
			mine = append(mine, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })

	byCounterpart := make(map[domain.UserID]*domain.ConversationSummary)
	var order []domain.UserID
	for _, m := range mine {
		other := m.ReceiverID
		if other == userID {
			other = m.SenderID
		}
		s, ok := byCounterpart[other]
		if !ok {
			s = &domain.ConversationSummary{CounterpartID: other, LastMessage: m}
			byCounterpart[other] = s
			order = append(order, other)
		}
		if m.ReceiverID == userID && !m.IsRead {
			s.UnreadCount++
		}
	}

	out := make([]*domain.ConversationSummary, 0, len(order))
	for _, id := range order {
		out = append(out, byCounterpart[id])
	}
	return out, nil
}

func (r *MessageRepository) ByAppointment(_ context.Context, appointmentID string, userID domain.UserID) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Message
	for _, m := range r.messages {
		if m.AppointmentID == appointmentID && (m.SenderID == userID || m.ReceiverID == userID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MessageRepository) Get(_ context.Context, id domain.MessageID) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MessageRepository) Delete(_ context.Context, id domain.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.messages {
		if m.ID == id {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return nil
		}
	}
	return nil
}
