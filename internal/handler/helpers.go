package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chatline/internal/chat"
	"github.com/chatline/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeChatError maps core errors to HTTP statuses; anything unexpected is
// logged and becomes a 500 without leaking details.
func writeChatError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, chat.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, chat.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not a participant")
	case errors.Is(err, chat.ErrNotSender):
		writeError(w, http.StatusForbidden, "can only modify own messages")
	case errors.Is(err, chat.ErrInvalidParticipants):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrMessageDeleted):
		writeError(w, http.StatusConflict, "message is deleted")
	case errors.Is(err, chat.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "content is required")
	case errors.Is(err, chat.ErrEmptyTitle):
		writeError(w, http.StatusBadRequest, "title is required")
	default:
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryTime parses an RFC3339 timestamp query param; nil when absent or bad.
func queryTime(r *http.Request, key string) *time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
