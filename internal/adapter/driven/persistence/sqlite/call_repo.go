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

// CallRepository is the durable store for call sessions.
type CallRepository struct {
	db *sql.DB
}

func NewCallRepository(db *sql.DB) *CallRepository {
	return &CallRepository{db: db}
}

var _ port.CallRepository = (*CallRepository)(nil)

func (r *CallRepository) Save(ctx context.Context, call *domain.CallSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calls (call_id, room_id, caller_id, receiver_id, kind, status,
			start_time, end_time, duration, appointment_id, emergency, quality, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.CallID.String(), call.RoomID.String(), call.CallerID.String(), call.ReceiverID.String(),
		string(call.Kind), string(call.Status), timePtrMillis(call.StartTime), timePtrMillis(call.EndTime),
		call.Duration, call.AppointmentID, boolInt(call.Emergency), string(call.Quality), call.Notes,
		call.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (r *CallRepository) Update(ctx context.Context, call *domain.CallSession) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calls SET status = ?, start_time = ?, end_time = ?, duration = ?, quality = ?, notes = ?
		WHERE call_id = ?`,
		string(call.Status), timePtrMillis(call.StartTime), timePtrMillis(call.EndTime),
		call.Duration, string(call.Quality), call.Notes, call.CallID.String())
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	return nil
}

func (r *CallRepository) Get(ctx context.Context, id domain.CallID) (*domain.CallSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+callColumns+` FROM calls WHERE call_id = ?`, id.String())
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return call, err
}

func (r *CallRepository) HistoryFor(ctx context.Context, userID domain.UserID, filter port.CallFilter, page, limit int) ([]*domain.CallSession, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	where := `(caller_id = ? OR receiver_id = ?)`
	args := []any{userID.String(), userID.String()}
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		where += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+callColumns+` FROM calls WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query call history: %w", err)
	}
	defer rows.Close()

	var out []*domain.CallSession
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, call)
	}
	return out, total, rows.Err()
}

const callColumns = `call_id, room_id, caller_id, receiver_id, kind, status,
	start_time, end_time, duration, appointment_id, emergency, quality, notes, created_at`

func scanCall(row rowScanner) (*domain.CallSession, error) {
	var (
		c          domain.CallSession
		start, end sql.NullInt64
		emergency  int
		createdAt  int64
	)
	err := row.Scan(&c.CallID, &c.RoomID, &c.CallerID, &c.ReceiverID, &c.Kind, &c.Status,
		&start, &end, &c.Duration, &c.AppointmentID, &emergency, &c.Quality, &c.Notes, &createdAt)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		t := time.UnixMilli(start.Int64)
		c.StartTime = &t
	}
	if end.Valid {
		t := time.UnixMilli(end.Int64)
		c.EndTime = &t
	}
	c.Emergency = emergency != 0
	c.CreatedAt = time.UnixMilli(createdAt)
	return &c, nil
}
