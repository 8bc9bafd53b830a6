package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medconnect/rtcore/internal/adapter/driven/gateway/ws"
	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
	"github.com/medconnect/rtcore/internal/core/service"
)

type Handler struct {
	Chat     *service.Chat
	Call     *service.Call
	Relay    *service.Relay
	Presence *service.Presence
	Hub      *ws.Hub
	Verifier port.IdentityVerifier
}

func NewHandler(chat *service.Chat, call *service.Call, relay *service.Relay, presence *service.Presence, hub *ws.Hub, verifier port.IdentityVerifier) *Handler {
	return &Handler{
		Chat:     chat,
		Call:     call,
		Relay:    relay,
		Presence: presence,
		Hub:      hub,
		Verifier: verifier,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/ws", h.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireIdentity)
		r.Get("/presence/online", h.getOnlineUsers)
		r.Route("/chat", func(r chi.Router) {
			r.Get("/conversations", h.getConversations)
			r.Get("/messages/{userID}", h.getMessages)
			r.Get("/appointment/{appointmentID}", h.getAppointmentMessages)
			r.Delete("/messages/{messageID}", h.deleteMessage)
		})
		r.Route("/calls", func(r chi.Router) {
			r.Get("/history", h.getCallHistory)
			r.Post("/rate", h.rateCall)
			r.Get("/{callID}", h.getCall)
		})
	})

	return r
}

type ctxKey int

const identityKey ctxKey = 0

// requireIdentity resolves the bearer credential through the identity
// verifier; requests without a verified identity never reach a handler.
func (h *Handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		id, err := h.Verifier.Verify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func identityFrom(r *http.Request) domain.Identity {
	id, _ := r.Context().Value(identityKey).(domain.Identity)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
