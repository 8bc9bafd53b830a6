package http

import (
	"time"

	"github.com/medconnect/rtcore/internal/core/domain"
)

type messageDTO struct {
	ID            string     `json:"_id"`
	SenderID      string     `json:"senderId"`
	ReceiverID    string     `json:"receiverId,omitempty"`
	Message       string     `json:"message"`
	MessageType   string     `json:"messageType"`
	IsRead        bool       `json:"isRead"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toMessageDTO(m *domain.Message) messageDTO {
	return messageDTO{
		ID:            m.ID.String(),
		SenderID:      m.SenderID.String(),
		ReceiverID:    m.ReceiverID.String(),
		Message:       m.Body,
		MessageType:   string(m.Kind),
		IsRead:        m.IsRead,
		ReadAt:        m.ReadAt,
		AppointmentID: m.AppointmentID,
		CreatedAt:     m.CreatedAt,
	}
}

func toMessageDTOs(msgs []*domain.Message) []messageDTO {
	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	return out
}

type callDTO struct {
	CallID        string     `json:"callId"`
	RoomID        string     `json:"roomId"`
	CallerID      string     `json:"callerId"`
	ReceiverID    string     `json:"receiverId"`
	CallType      string     `json:"callType"`
	Status        string     `json:"status"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	Duration      int        `json:"duration"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	Emergency     bool       `json:"isEmergency"`
	Quality       string     `json:"callQuality,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toCallDTO(c *domain.CallSession) callDTO {
	return callDTO{
		CallID:        c.CallID.String(),
		RoomID:        c.RoomID.String(),
		CallerID:      c.CallerID.String(),
		ReceiverID:    c.ReceiverID.String(),
		CallType:      string(c.Kind),
		Status:        string(c.Status),
		StartTime:     c.StartTime,
		EndTime:       c.EndTime,
		Duration:      c.Duration,
		AppointmentID: c.AppointmentID,
		Emergency:     c.Emergency,
		Quality:       string(c.Quality),
		Notes:         c.Notes,
		CreatedAt:     c.CreatedAt,
	}
}

func toCallDTOs(calls []*domain.CallSession) []callDTO {
	out := make([]callDTO, 0, len(calls))
	for _, c := range calls {
		out = append(out, toCallDTO(c))
	}
	return out
}
