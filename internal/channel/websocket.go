package channel

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"alfred/internal/session"
)

// WSMessage is the JSON frame protocol on /ws. Client sends type "message";
// the server answers with zero or more "stream" frames followed by one
// "done" frame carrying the full reply, or an "error" frame.
type WSMessage struct {
	Type    string `json:"type"` // "message" | "stream" | "done" | "error"
	Content string `json:"content,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback by default; cross-origin browser
		// clients are expected on LAN setups.
		return true
	},
}

func (w *Web) handleWS(rw http.ResponseWriter, r *http.Request) {
	sid := w.sessionID(r, rw)
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	w.logger.Info("websocket client connected", "session", sid)
	a := w.sessions.Get(session.Key("web", sid))

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warn("websocket read error", "session", sid, "err", err)
			}
			return
		}
		if msg.Type != "message" || msg.Content == "" {
			w.writeWS(conn, WSMessage{Type: "error", Content: "expected frame {type:\"message\", content:...}"})
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		err := w.streamReply(ctx, conn, a, msg.Content)
		cancel()
		if err != nil {
			w.logger.Error("websocket reply failed", "session", sid, "err", err)
			w.writeWS(conn, WSMessage{Type: "error", Content: "assistant backend unavailable"})
		}
	}
}

func (w *Web) streamReply(ctx context.Context, conn *websocket.Conn, a sessionAssistant, text string) error {
	reply, err := a.ProcessStream(ctx, text)
	if err != nil {
		return err
	}

	if !reply.IsStream() {
		return w.writeWS(conn, WSMessage{Type: "done", Content: reply.Text})
	}

	var full []byte
	for chunk := range reply.Stream {
		full = append(full, chunk...)
		if err := w.writeWS(conn, WSMessage{Type: "stream", Content: chunk}); err != nil {
			// Keep draining so the assistant can patch its history turn.
			for range reply.Stream {
			}
			return err
		}
	}
	return w.writeWS(conn, WSMessage{Type: "done", Content: string(full)})
}

func (w *Web) writeWS(conn *websocket.Conn, msg WSMessage) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}
