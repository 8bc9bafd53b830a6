package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

// MessageRepository is the durable store behind the message relay.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

var _ port.MessageRepository = (*MessageRepository)(nil)

func (r *MessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, body, kind, is_read, read_at, appointment_id, helpline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.SenderID.String(), msg.ReceiverID.String(),
		msg.Body, string(msg.Kind), boolInt(msg.IsRead), timePtrMillis(msg.ReadAt),
		msg.AppointmentID, boolInt(msg.Helpline), msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, reader, sender domain.UserID, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1, read_at = ?
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0 AND deleted = 0`,
		at.UnixMilli(), sender.String(), reader.String())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *MessageRepository) Conversation(ctx context.Context, a, b domain.UserID, page, limit int) ([]*domain.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		  AND helpline = 0 AND deleted = 0
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		a.String(), b.String(), b.String(), a.String(), limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Paginated from the newest, returned oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepository) Summaries(ctx context.Context, userID domain.UserID) ([]*domain.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? OR receiver_id = ?) AND helpline = 0 AND deleted = 0
		ORDER BY created_at DESC`,
		userID.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Group by the other party of each message regardless of direction.
	byCounterpart := make(map[domain.UserID]*domain.ConversationSummary)
	var order []domain.UserID
	for _, m := range msgs {
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

func (r *MessageRepository) ByAppointment(ctx context.Context, appointmentID string, userID domain.UserID) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE appointment_id = ? AND (sender_id = ? OR receiver_id = ?) AND deleted = 0
		ORDER BY created_at ASC`,
		appointmentID, userID.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("query appointment messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *MessageRepository) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = ? AND deleted = 0`, id.String())
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return msg, err
}

func (r *MessageRepository) Delete(ctx context.Context, id domain.MessageID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

const messageColumns = `id, sender_id, receiver_id, body, kind, is_read, read_at, appointment_id, helpline, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m         domain.Message
		isRead    int
		helpline  int
		readAt    sql.NullInt64
		createdAt int64
	)
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.Kind,
		&isRead, &readAt, &m.AppointmentID, &helpline, &createdAt)
	if err != nil {
		return nil, err
	}
	m.IsRead = isRead != 0
	m.Helpline = helpline != 0
	if readAt.Valid {
		t := time.UnixMilli(readAt.Int64)
		m.ReadAt = &t
	}
	m.CreatedAt = time.UnixMilli(createdAt)
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
