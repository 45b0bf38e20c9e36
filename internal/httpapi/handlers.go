package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pigeonchat/pigeon/internal/auth"
	"github.com/pigeonchat/pigeon/internal/chat"
	"github.com/pigeonchat/pigeon/internal/conversation"
	"github.com/pigeonchat/pigeon/internal/imagestore"
	"github.com/pigeonchat/pigeon/internal/user"
)

const (
	maxBodyBytes = 8 << 20 // image data URIs ride in message bodies
	timeLayout   = time.RFC3339Nano
)

type PresenceProvider interface {
	OnlineUserIDs() []user.ID
}

type Handler struct {
	auth     *auth.Service
	users    *user.Service
	messages *chat.Service
	index    *conversation.Index
	images   imagestore.Store
	presence PresenceProvider
	log      *slog.Logger
}

func NewHandler(authSvc *auth.Service, users *user.Service, messages *chat.Service, index *conversation.Index, images imagestore.Store, presence PresenceProvider, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		auth:     authSvc,
		users:    users,
		messages: messages,
		index:    index,
		images:   images,
		presence: presence,
		log:      log,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /contacts", h.handleContacts)
	mux.HandleFunc("GET /messages", h.handleListMessages)
	mux.HandleFunc("POST /messages", h.handleSendMessage)
	mux.HandleFunc("PATCH /messages/{id}", h.handleUpdateMessage)
	mux.HandleFunc("DELETE /messages/{id}", h.handleDeleteMessage)
	mux.HandleFunc("GET /conversations", h.handleConversations)
	mux.HandleFunc("GET /presence", h.handlePresence)
}

type authRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string  `json:"token"`
	UserID    user.ID `json:"user_id"`
	FullName  string  `json:"full_name"`
	Email     string  `json:"email"`
	AvatarRef string  `json:"avatar_ref,omitempty"`
	ExpiresAt string  `json:"expires_at"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, session, err := h.auth.Register(r.Context(), req.Email, req.FullName, req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token:     session.Token,
		UserID:    created.ID,
		FullName:  created.FullName,
		Email:     created.Email,
		ExpiresAt: session.ExpiresAt.UTC().Format(timeLayout),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	found, session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token:     session.Token,
		UserID:    found.ID,
		FullName:  found.FullName,
		Email:     found.Email,
		AvatarRef: found.AvatarRef,
		ExpiresAt: session.ExpiresAt.UTC().Format(timeLayout),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized)
		return
	}
	h.auth.Logout(token)
	w.WriteHeader(http.StatusNoContent)
}

type userResponse struct {
	ID        user.ID `json:"id"`
	FullName  string  `json:"full_name"`
	Email     string  `json:"email"`
	AvatarRef string  `json:"avatar_ref,omitempty"`
}

func (h *Handler) handleContacts(w http.ResponseWriter, r *http.Request) {
	session, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	contacts, err := h.users.Contacts(r.Context(), session.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]userResponse, 0, len(contacts))
	for _, u := range contacts {
		out = append(out, userResponse{ID: u.ID, FullName: u.FullName, Email: u.Email, AvatarRef: u.AvatarRef})
	}
	writeJSON(w, http.StatusOK, struct {
		Contacts []userResponse `json:"contacts"`
	}{Contacts: out})
}

type messageResponse struct {
	ID         chat.ID `json:"id"`
	SenderID   user.ID `json:"sender_id"`
	ReceiverID user.ID `json:"receiver_id"`
	Text       string  `json:"text,omitempty"`
	ImageRef   string  `json:"image_ref,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at,omitempty"`
}

func toMessageResponse(msg chat.Message) messageResponse {
	resp := messageResponse{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		ImageRef:   msg.ImageRef,
		CreatedAt:  msg.CreatedAt.UTC().Format(timeLayout),
	}
	if msg.UpdatedAt != nil {
		resp.UpdatedAt = msg.UpdatedAt.UTC().Format(timeLayout)
	}
	return resp
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	partner := user.ID(strings.TrimSpace(r.URL.Query().Get("partner")))
	if partner == "" {
		writeError(w, http.StatusBadRequest, errors.New("partner is required"))
		return
	}

	msgs, err := h.messages.MessagesBetween(r.Context(), session.UserID, partner)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, struct {
		Messages []messageResponse `json:"messages"`
	}{Messages: out})
}

type sendMessageRequest struct {
	ReceiverID user.ID `json:"receiver_id"`
	Text       string  `json:"text"`
	Image      string  `json:"image"` // base64 data URI
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var imageRef string
	if strings.TrimSpace(req.Image) != "" {
		ref, err := h.images.Upload(r.Context(), req.Image)
		if err != nil {
			if errors.Is(err, imagestore.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			h.log.Error("image upload failed", "error", err)
			writeError(w, http.StatusBadGateway, errors.New("image upload failed"))
			return
		}
		imageRef = ref
	}

	msg, err := h.messages.Send(r.Context(), session.UserID, req.ReceiverID, req.Text, imageRef)
	if err != nil {
		// The message was rejected after the image landed; clean it up.
		if imageRef != "" {
			if delErr := h.images.Delete(context.WithoutCancel(r.Context()), imageRef); delErr != nil {
				h.log.Warn("orphaned image cleanup failed", "ref", imageRef, "error", delErr)
			}
		}
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

type updateMessageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	id := chat.ID(r.PathValue("id"))
	var req updateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := h.messages.Update(r.Context(), id, session.UserID, req.Text)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	id := chat.ID(r.PathValue("id"))
	deletedID, err := h.messages.Delete(r.Context(), id, session.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		MessageID chat.ID `json:"message_id"`
	}{MessageID: deletedID})
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	session, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	sums, err := h.index.SummariesFor(r.Context(), session.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Conversations []conversation.Summary `json:"conversations"`
	}{Conversations: sums})
}

func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		UserIDs []user.ID `json:"user_ids"`
	}{UserIDs: h.presence.OnlineUserIDs()})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized)
		return auth.Session{}, false
	}
	session, err := h.auth.ValidateToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return auth.Session{}, false
	}
	return session, true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput), errors.Is(err, chat.ErrSelfMessage),
		errors.Is(err, user.ErrInvalidInput), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, err)
	default:
		h.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
	}
}
