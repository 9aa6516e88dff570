package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatline/internal/chat"
	"github.com/chatline/internal/middleware"
	"github.com/chatline/internal/model"
)

type MessageHandler struct {
	svc *chat.Service
}

func NewMessageHandler(svc *chat.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type SendMessageRequest struct {
	Type    model.MessageType `json:"type"`
	Content string            `json:"content"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

// Send appends a message to the conversation in the URL.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	callerID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")
	m, err := h.svc.SendMessage(r.Context(), callerID, convID, req.Type, req.Content)
	if err != nil {
		writeChatError(w, "SendMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// List returns a page of visible messages in ascending order.
// Query params: limit (default 50, max 200) and before (RFC3339).
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 50)
	before := queryTime(r, "before")
	msgs, err := h.svc.ListMessages(r.Context(), callerID, convID, limit, before)
	if err != nil {
		writeChatError(w, "ListMessages", err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	callerID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "id")
	m, err := h.svc.EditMessage(r.Context(), callerID, messageID, req.Content)
	if err != nil {
		writeChatError(w, "EditMessage", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Delete tombstones the caller's own message. Safe to repeat.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "id")
	m, err := h.svc.DeleteMessage(r.Context(), callerID, messageID)
	if err != nil {
		writeChatError(w, "DeleteMessage", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
