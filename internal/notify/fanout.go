// Package notify bridges the conversation core to delivery channels:
// open websockets for online users, web push for everyone else.
package notify

import (
	"context"
	"sync"

	"github.com/chatline/internal/chat"
	"github.com/chatline/internal/model"
)

// SocketSink is the realtime half, implemented by ws.Hub.
type SocketSink interface {
	Deliver(ev chat.Event)
	IsOnline(userID string) bool
}

// PushNotifier is the offline half, implemented by push.Client.
// A nil notifier disables pushes.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Fanout implements chat.Dispatcher. The hub is attached after construction
// because the hub itself needs the service that needs the dispatcher.
type Fanout struct {
	mu   sync.RWMutex
	hub  SocketSink
	push PushNotifier
}

func NewFanout(push PushNotifier) *Fanout {
	return &Fanout{push: push}
}

func (f *Fanout) AttachHub(hub SocketSink) {
	f.mu.Lock()
	f.hub = hub
	f.mu.Unlock()
}

// Notify never blocks the caller: socket delivery is buffered by the hub and
// pushes run in their own goroutine.
func (f *Fanout) Notify(ctx context.Context, ev chat.Event) {
	f.mu.RLock()
	hub := f.hub
	f.mu.RUnlock()

	online := false
	if hub != nil {
		hub.Deliver(ev)
		online = hub.IsOnline(ev.RecipientID)
	}

	// Web push only for new messages and only when no socket is open.
	if f.push == nil || online || ev.Type != chat.EventNewMessage {
		return
	}
	m, ok := ev.Payload.(*model.Message)
	if !ok || m.Type == model.MessageTypeSystem {
		return
	}

	title := "New message"
	if m.Sender != nil && m.Sender.DisplayName != "" {
		title = m.Sender.DisplayName
	}
	body := m.Content
	if m.Type != model.MessageTypeText || body == "" {
		body = "Attachment"
	}
	if r := []rune(body); len(r) > 120 {
		body = string(r[:117]) + "..."
	}
	data := map[string]string{"conversation_id": m.ConversationID, "message_id": m.ID}
	recipient := ev.RecipientID
	go f.push.Notify(context.WithoutCancel(ctx), recipient, title, body, data)
}
