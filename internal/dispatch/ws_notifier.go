package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrNoSession means the user has no live websocket connection; callers
// fall back to another channel.
var ErrNoSession = errors.New("dispatch: no ws session")

// wsEnvelope is the JSON frame pushed over a session.
type wsEnvelope struct {
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
	Controls []Control      `json:"controls,omitempty"`
}

type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(env wsEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

// WSNotifier delivers messages to users with a live websocket session.
type WSNotifier struct {
	mu       sync.RWMutex
	sessions map[string]*wsSession
}

func NewWSNotifier() *WSNotifier {
	return &WSNotifier{sessions: make(map[string]*wsSession)}
}

// Add registers (or replaces) the session for a user.
func (w *WSNotifier) Add(userID string, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[userID] = &wsSession{conn: conn}
}

// Remove drops the session, typically on read error or close.
func (w *WSNotifier) Remove(userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, userID)
}

func (w *WSNotifier) Send(_ context.Context, userID, template string, data map[string]any, controls []Control) error {
	w.mu.RLock()
	s, ok := w.sessions[userID]
	w.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(wsEnvelope{Template: template, Data: data, Controls: controls})
}
