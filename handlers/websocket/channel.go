// Package websocket carries the per-connection update channel. Each
// connection is a small state machine (CONNECTING until the session join,
// OPEN while registered, CLOSED after leaving) driven by a read loop and a
// write pump.
package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"drawsync/core"
	"drawsync/metrics"
	"drawsync/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20

	// sendBuffer is the per-client outbound queue depth. A client that falls
	// this far behind starts losing frames rather than stalling the fan-out.
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The bridge carries no credentials and the asset proxy exists precisely
	// because clients live on other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades /ws/{sessionID} and runs the connection until it closes.
func Handle(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			http.Error(w, "session id is required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"session_id": sessionID,
				"error":      err,
			}).Warn("websocket upgrade failed")
			return
		}

		client := session.NewClient(sendBuffer)

		// Joining through the registry is atomic with the session lookup and
		// performs the initial sync (elements, then viewport, then file
		// metadata) by enqueueing onto the client before anything else can be
		// broadcast to it.
		sess := registry.Join(sessionID, client)

		go writePump(conn, client)
		readLoop(conn, registry, sess, client)
	}
}

// readLoop consumes inbound frames until the connection dies. The only
// message honored is update{elements}: a wholesale scene replacement,
// last writer wins. Camera commands embedded in the batch are split off
// into the session viewport and never stored as drawing elements.
// Malformed payloads are logged and dropped without closing the
// connection.
func readLoop(conn *websocket.Conn, registry *session.Registry, sess *session.Session, client *session.Client) {
	log := logrus.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"client_id":  client.ID,
	})

	defer func() {
		conn.Close()
		if empty := sess.Leave(client); empty {
			registry.ScheduleSweep(sess.ID)
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.WithField("error", err).Warn("websocket read error")
			}
			return
		}

		var msg session.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			metrics.MalformedInbound.Inc()
			log.WithField("error", err).Warn("dropping malformed client message")
			continue
		}

		if msg.Type != session.MessageUpdate {
			metrics.MalformedInbound.Inc()
			log.WithField("type", msg.Type).Warn("dropping unsupported client message")
			continue
		}

		draw, cam := core.ExtractViewport(msg.Elements)
		sess.Replace(draw, nil, client)
		if cam != nil {
			sess.SetViewport(*cam)
		}
	}
}

// writePump drains the client's outbound queue onto the socket and keeps the
// connection alive with pings. It exits when the queue is closed (the client
// left) or a write fails.
func writePump(conn *websocket.Conn, client *session.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
