package contacts

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"huddle/cmd/internal/auth/resolver"
	"huddle/cmd/internal/httpx"
)

// Handler serves /api/contacts.
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

// Register wires the contact routes. Every route requires an identity.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/contacts", resolver.RequireIdentityFunc(h.handleList))
	mux.Handle("GET /api/contacts/requests", resolver.RequireIdentityFunc(h.handleRequests))
	mux.Handle("POST /api/contacts", resolver.RequireIdentityFunc(h.handleAddByEmail))
	mux.Handle("POST /api/contacts/{id}", resolver.RequireIdentityFunc(h.handleAdd))
	mux.Handle("POST /api/contacts/{id}/accept", resolver.RequireIdentityFunc(h.handleAccept))
}

type addByEmailRequest struct {
	Email string `json:"email"`
}

type contactResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ContactID string    `json:"contact_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type entryResponse struct {
	ContactID      string     `json:"contact_id"`
	UserID         string     `json:"user_id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	ProfilePicture string     `json:"profile_picture"`
	Bio            string     `json:"bio"`
	Online         bool       `json:"online"`
	LastSeen       *time.Time `json:"last_seen"`
	Since          time.Time  `json:"since"`
}

func toContactResponse(c Contact) contactResponse {
	return contactResponse{ID: c.ID, UserID: c.UserID, ContactID: c.ContactID, Status: c.Status, CreatedAt: c.CreatedAt}
}

func toEntries(in []Entry) []entryResponse {
	out := make([]entryResponse, 0, len(in))
	for _, e := range in {
		out = append(out, entryResponse{
			ContactID:      e.Contact.ID,
			UserID:         e.User.ID,
			Email:          e.User.Email,
			FullName:       e.User.FullName,
			ProfilePicture: e.User.ProfilePicture,
			Bio:            e.User.Bio,
			Online:         e.Online,
			LastSeen:       e.User.LastSeen,
			Since:          e.Contact.UpdatedAt,
		})
	}
	return out
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())
	c, err := h.svc.Add(r.Context(), id.ID, r.PathValue("id"))
	if err != nil {
		h.writeErr(w, "contacts.add.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toContactResponse(c))
}

func (h *Handler) handleAddByEmail(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())

	var req addByEmailRequest
	if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	c, err := h.svc.AddByEmail(r.Context(), id.ID, req.Email)
	if err != nil {
		h.writeErr(w, "contacts.add.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toContactResponse(c))
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())
	c, err := h.svc.Accept(r.Context(), id.ID, r.PathValue("id"))
	if err != nil {
		h.writeErr(w, "contacts.accept.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toContactResponse(c))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())
	entries, err := h.svc.List(r.Context(), id.ID)
	if err != nil {
		h.writeErr(w, "contacts.list.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toEntries(entries))
}

func (h *Handler) handleRequests(w http.ResponseWriter, r *http.Request) {
	id, _ := resolver.FromContext(r.Context())
	entries, err := h.svc.Requests(r.Context(), id.ID)
	if err != nil {
		h.writeErr(w, "contacts.requests.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toEntries(entries))
}

func (h *Handler) writeErr(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, ErrSelf):
		httpx.WriteError(w, http.StatusBadRequest, "self_contact", "cannot add yourself")
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid contact id or email")
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, ErrExists):
		httpx.WriteError(w, http.StatusConflict, "contact_exists", "contact already exists")
	case errors.Is(err, ErrNoRequest):
		httpx.WriteError(w, http.StatusNotFound, "no_request", "no pending request from this user")
	default:
		h.log.Error(event, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
