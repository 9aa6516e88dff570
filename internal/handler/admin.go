package handler

import (
	"net/http"

	"github.com/chatline/internal/chat"
)

// AdminHandler exposes maintenance operations. Routes using it must sit
// behind middleware.InternalOnly.
type AdminHandler struct {
	svc *chat.Service
}

func NewAdminHandler(svc *chat.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// Reconcile runs one duplicate sweep over official conversations and
// reports what it did.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reconcile(r.Context())
	if err != nil {
		writeChatError(w, "Reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
