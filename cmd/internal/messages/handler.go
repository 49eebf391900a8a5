package messages

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"huddle/cmd/internal/auth/resolver"
	"huddle/cmd/internal/httpx"
	v1 "huddle/shared/contracts/realtime/v1"
)

// Handler serves /api/messages.
type Handler struct {
	log          *slog.Logger
	svc          *Service
	maxBodyBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, svc *Service) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{log: log, svc: svc, maxBodyBytes: httpx.DefaultMaxBodyBytes}
}

// Register wires the message routes. Every route requires an identity.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/messages/{id}", resolver.RequireIdentityFunc(h.handleConversation))
	mux.Handle("POST /api/messages/send/{id}", resolver.RequireIdentityFunc(h.handleSend))
}

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type sendResponse struct {
	Message   v1.MessagePayload `json:"message"`
	Delivered bool              `json:"delivered"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())

	var req sendRequest
	if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	m, delivered, err := h.svc.Send(r.Context(), id.ID, r.PathValue("id"), req.Text, req.Image)
	if err != nil {
		h.writeErr(w, "messages.send.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sendResponse{Message: ToPayload(m), Delivered: delivered})
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())

	var page Page
	q := r.URL.Query()
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "before must be RFC 3339")
			return
		}
		page.Before = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		page.Limit = n
	}

	msgs, err := h.svc.Conversation(r.Context(), id.ID, r.PathValue("id"), page)
	if err != nil {
		h.writeErr(w, "messages.list.fail", err)
		return
	}
	out := make([]v1.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToPayload(m))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) writeErr(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, ErrSelf), errors.Is(err, ErrEmpty), errors.Is(err, ErrTooLong), errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error(event, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
