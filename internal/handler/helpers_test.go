package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatline/internal/chat"
)

func TestWriteChatErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{chat.ErrConversationNotFound, http.StatusNotFound},
		{chat.ErrMessageNotFound, http.StatusNotFound},
		{chat.ErrNotParticipant, http.StatusForbidden},
		{chat.ErrNotSender, http.StatusForbidden},
		{chat.ErrInvalidParticipants, http.StatusBadRequest},
		{fmt.Errorf("%w: unknown user x", chat.ErrInvalidParticipants), http.StatusBadRequest},
		{chat.ErrMessageDeleted, http.StatusConflict},
		{chat.ErrEmptyContent, http.StatusBadRequest},
		{chat.ErrEmptyTitle, http.StatusBadRequest},
		{errors.New("database on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeChatError(rec, "test", tc.err)
		assert.Equal(t, tc.status, rec.Code, "error %v", tc.err)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	}

	// Internal failures never leak their message to the client.
	rec := httptest.NewRecorder()
	writeChatError(rec, "test", errors.New("password=hunter2"))
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25&before=2026-08-01T12:00:00Z&bad=xyz", nil)

	assert.Equal(t, 25, queryInt(r, "limit", 50))
	assert.Equal(t, 50, queryInt(r, "missing", 50))
	assert.Equal(t, 50, queryInt(r, "bad", 50))

	ts := queryTime(r, "before")
	if assert.NotNil(t, ts) {
		assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), ts.UTC())
	}
	assert.Nil(t, queryTime(r, "missing"))
	assert.Nil(t, queryTime(r, "bad"))
}
