package hub

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/otcdesk/desk-engine/internal/auth"
	"github.com/otcdesk/desk-engine/internal/metrics"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// wsConn serializes writes to the underlying socket. Hub broadcasts, pong
// replies, and keepalive pings all write concurrently, and gorilla permits
// only one writer at a time.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.c.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsConn) Close() error { return w.c.Close() }

type pong struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
}

// HandleWS upgrades GET /ws/{channel}?token=... to a WebSocket and
// subscribes it to the requested channel. Unknown channels and invalid
// tokens close the socket with policy violation (1008) after the upgrade,
// so the client sees a close reason rather than a failed handshake.
func (h *Hub) HandleWS(jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := chi.URLParam(r, "channel")
		token := r.URL.Query().Get("token")

		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("ws upgrade failed", "err", err)
			return
		}

		if !ValidChannel(channel) {
			closeWithPolicyViolation(raw, "unknown channel")
			return
		}
		claims, err := auth.VerifyToken(jwtSecret, token)
		if err != nil {
			closeWithPolicyViolation(raw, "invalid token")
			return
		}

		conn := &wsConn{c: raw}
		if err := h.Subscribe(channel, conn); err != nil {
			closeWithPolicyViolation(raw, "unknown channel")
			return
		}
		metrics.WSClients.WithLabelValues(channel).Inc()
		slog.Info("ws client connected", "channel", channel, "subject", claims.Subject)

		// Read pump: answer pings, detect disconnects.
		go func() {
			defer func() {
				h.Unsubscribe(channel, conn)
				metrics.WSClients.WithLabelValues(channel).Dec()
				conn.Close()
			}()
			raw.SetReadDeadline(time.Now().Add(readTimeout))
			raw.SetPongHandler(func(string) error {
				raw.SetReadDeadline(time.Now().Add(readTimeout))
				return nil
			})
			for {
				_, msg, err := raw.ReadMessage()
				if err != nil {
					return
				}
				raw.SetReadDeadline(time.Now().Add(readTimeout))
				// Clients send "ping" in any casing, often with stray
				// whitespace from manual consoles.
				if strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
					if err := conn.WriteJSON(pong{Channel: channel, Type: "pong"}); err != nil {
						return
					}
				}
			}
		}()

		// Ping ticker to keep the connection alive through proxies.
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for range ticker.C {
				h.mu.RLock()
				_, ok := h.subscribers[channel][conn]
				h.mu.RUnlock()
				if !ok {
					return
				}
				if err := conn.ping(); err != nil {
					return
				}
			}
		}()
	}
}

func closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}
