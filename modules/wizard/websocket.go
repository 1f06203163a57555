package wizard

import (
	"log"
	"net/http"
	"time"

	"clip-wizard-server/modules/common/apperr"
	"clip-wizard-server/modules/pipeline"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	// The wizard is served cross-origin in development, like the REST API behind enableCORS
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StateMessage - pushed to websocket listeners after every change
type StateMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	State     pipeline.State `json:"state"`
}

// ClientMessage - the only message a listener may send
type ClientMessage struct {
	Type string `json:"type"`
}

const (
	msgTypeState        = "state"
	msgTypeRequestState = "request_state"
)

// listener - one websocket connection following one session
type listener struct {
	conn    *websocket.Conn
	session *pipeline.Session
	updates <-chan pipeline.State
	refresh chan struct{}
}

// HandleWebSocket - GET /ws?session={id}
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		apperr.WriteJSON(w, apperr.New(apperr.CodeBadRequest, "missing session parameter"))
		return
	}
	session, err := h.manager.Get(r.Context(), sessionID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ [Wizard] WebSocket upgrade failed: %v", err)
		return
	}

	updates, cancel := session.Subscribe()
	l := &listener{
		conn:    conn,
		session: session,
		updates: updates,
		refresh: make(chan struct{}, 1),
	}

	h.manager.connectionOpened()
	log.Printf("🔍 [Wizard] New WebSocket listener - Session: %s (listeners: %d)", sessionID, session.Subscribers())

	go l.writePump()
	go func() {
		l.readPump()
		cancel()
		h.manager.connectionClosed()
		log.Printf("🔌 [Wizard] WebSocket listener left - Session: %s", sessionID)
	}()
}

// readPump handles pongs and state requests until the connection drops
func (l *listener) readPump() {
	defer l.conn.Close()

	l.conn.SetReadLimit(4096)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := l.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ [Wizard] WebSocket error: %v", err)
			}
			return
		}

		if msg.Type == msgTypeRequestState {
			select {
			case l.refresh <- struct{}{}:
			default:
			}
		}
	}
}

// writePump is the only writer of the connection
func (l *listener) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case st, ok := <-l.updates:
			if !ok {
				l.conn.SetWriteDeadline(time.Now().Add(writeWait))
				l.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := l.send(st); err != nil {
				return
			}

		case <-l.refresh:
			if err := l.send(l.session.Snapshot()); err != nil {
				return
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (l *listener) send(st pipeline.State) error {
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := l.conn.WriteJSON(StateMessage{
		Type:      msgTypeState,
		SessionID: l.session.ID(),
		State:     st,
	})
	if err != nil {
		log.Printf("⚠️ [Wizard] WebSocket write error: %v", err)
	}
	return err
}
