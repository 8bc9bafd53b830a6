package port

import (
	"context"
	"time"

	"github.com/medconnect/rtcore/internal/core/domain"
)

type MessageRepository interface {
	Save(ctx context.Context, msg *domain.Message) error
	// MarkRead flags all unread messages from sender to reader and
	// returns how many were updated.
	MarkRead(ctx context.Context, reader, sender domain.UserID, at time.Time) (int, error)
	// Conversation returns messages between two users, oldest first,
	// paginated from the most recent.
	Conversation(ctx context.Context, a, b domain.UserID, page, limit int) ([]*domain.Message, error)
	// Summaries groups by counterpart: latest message plus unread count,
	// most recent conversation first. Helpline traffic is excluded.
	Summaries(ctx context.Context, userID domain.UserID) ([]*domain.ConversationSummary, error)
	ByAppointment(ctx context.Context, appointmentID string, userID domain.UserID) ([]*domain.Message, error)
	Get(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	Delete(ctx context.Context, id domain.MessageID) error
}

// CallFilter narrows history queries; zero values match everything.
type CallFilter struct {
	Status domain.CallStatus
	Kind   domain.CallKind
}

type CallRepository interface {
	Save(ctx context.Context, call *domain.CallSession) error
	Update(ctx context.Context, call *domain.CallSession) error
	Get(ctx context.Context, id domain.CallID) (*domain.CallSession, error)
	// HistoryFor returns calls the user participated in, newest first,
	// plus the total number matching the filter.
	HistoryFor(ctx context.Context, userID domain.UserID, filter CallFilter, page, limit int) ([]*domain.CallSession, int, error)
}
