package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatline/internal/chat"
	"github.com/chatline/internal/middleware"
)

type ConversationHandler struct {
	svc *chat.Service
}

func NewConversationHandler(svc *chat.Service) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type CreateDirectRequest struct {
	UserID string `json:"user_id"`
}

type CreateGroupRequest struct {
	Title     string   `json:"title"`
	MemberIDs []string `json:"member_ids"`
}

// CreateDirect resolves the direct conversation with another user. Repeating
// the call returns the same conversation with 200; first contact answers 201.
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	callerID := middleware.GetUserID(r.Context())
	view, created, err := h.svc.CreateOrGetDirect(r.Context(), callerID, req.UserID)
	if err != nil {
		writeChatError(w, "CreateDirect", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, view)
}

func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	callerID := middleware.GetUserID(r.Context())
	view, err := h.svc.CreateGroup(r.Context(), callerID, req.Title, req.MemberIDs)
	if err != nil {
		writeChatError(w, "CreateGroup", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// List returns the caller's conversations, newest activity first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	views, err := h.svc.ListConversationsForUser(r.Context(), callerID)
	if err != nil {
		writeChatError(w, "ListConversations", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")
	view, err := h.svc.GetConversation(r.Context(), callerID, convID)
	if err != nil {
		writeChatError(w, "GetConversation", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Official returns the caller's official chat, creating it when missing.
func (h *ConversationHandler) Official(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	view, err := h.svc.EnsureOfficial(r.Context(), callerID)
	if err != nil {
		writeChatError(w, "Official", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// MarkRead zeroes the caller's unread counter for the conversation.
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")
	if err := h.svc.MarkRead(r.Context(), callerID, convID); err != nil {
		writeChatError(w, "MarkRead", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
