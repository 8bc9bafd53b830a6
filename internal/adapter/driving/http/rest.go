package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

func (h *Handler) getOnlineUsers(w http.ResponseWriter, r *http.Request) {
	type onlineUserDTO struct {
		UserID   string    `json:"userId"`
		Name     string    `json:"name"`
		Role     string    `json:"role"`
		LastSeen time.Time `json:"lastSeen"`
	}
	entries := h.Presence.Snapshot()
	out := make([]onlineUserDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, onlineUserDTO{
			UserID:   e.UserID.String(),
			Name:     e.Name,
			Role:     e.Role,
			LastSeen: e.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"users": out},
	})
}

func (h *Handler) getConversations(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	summaries, err := h.Chat.Summaries(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	type conversationDTO struct {
		ParticipantID string     `json:"participantId"`
		LastMessage   messageDTO `json:"lastMessage"`
		UnreadCount   int        `json:"unreadCount"`
	}
	out := make([]conversationDTO, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, conversationDTO{
			ParticipantID: s.CounterpartID.String(),
			LastMessage:   toMessageDTO(s.LastMessage),
			UnreadCount:   s.UnreadCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"conversations": out},
	})
}

func (h *Handler) getMessages(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	counterpart := domain.UserID(chi.URLParam(r, "userID"))
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)

	msgs, err := h.Chat.History(r.Context(), id.UserID, counterpart, page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"messages": toMessageDTOs(msgs),
			"hasMore":  len(msgs) == limit,
		},
	})
}

func (h *Handler) getAppointmentMessages(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	msgs, err := h.Chat.ByAppointment(r.Context(), chi.URLParam(r, "appointmentID"), id.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"messages": toMessageDTOs(msgs)},
	})
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	err := h.Chat.Delete(r.Context(), domain.MessageID(chi.URLParam(r, "messageID")), id.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) getCallHistory(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	filter := port.CallFilter{
		Status: domain.CallStatus(r.URL.Query().Get("status")),
		Kind:   domain.CallKind(r.URL.Query().Get("callType")),
	}

	calls, total, err := h.Call.HistoryFor(r.Context(), id.UserID, filter, page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	totalPages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"calls": toCallDTOs(calls),
			"pagination": map[string]any{
				"currentPage": page,
				"totalPages":  totalPages,
				"totalCalls":  total,
				"hasNext":     page*limit < total,
				"hasPrev":     page > 1,
			},
		},
	})
}

func (h *Handler) getCall(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	call, err := h.Call.Get(r.Context(), domain.CallID(chi.URLParam(r, "callID")), id.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"call": toCallDTO(call)},
	})
}

func (h *Handler) rateCall(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	var req struct {
		CallID  string `json:"callId"`
		Quality string `json:"quality"`
		Notes   string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CallID == "" || req.Quality == "" {
		writeError(w, http.StatusBadRequest, "callId and quality are required")
		return
	}
	err := h.Call.Rate(r.Context(), domain.CallID(req.CallID), id.UserID, domain.CallQuality(req.Quality), req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
