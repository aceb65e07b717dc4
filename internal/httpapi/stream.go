package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement belongs to the fronting proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	subscriberSize = 64
)

// handleStream upgrades to WebSocket and pushes the session's progress
// events. ?since=<seq> replays buffered events after that sequence number
// before live delivery starts.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		s.sessionError(w, id, err)
		return
	}

	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "since must be a sequence number")
			return
		}
		since = parsed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}

	ch := s.streams.Subscribe(id, subscriberSize)
	defer s.streams.Unsubscribe(id, ch)

	log := s.logger.With(zap.String("session_id", id))
	log.Debug("Stream subscriber connected", zap.Uint64("since", since))

	// Reader: discard client frames, surface disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	for _, evt := range s.streams.ReplaySince(id, since) {
		if err := write(evt); err != nil {
			conn.Close()
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				// Session deleted; say goodbye cleanly.
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session deleted"))
				return
			}
			if err := write(evt); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
