package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamBuffer  = 16
	writeDeadline = 10 * time.Second
	pingPeriod    = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to localhost; dashboards connect cross-origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleCycleStream upgrades to a websocket and forwards every
// completed cycle record until the client goes away. A slow client
// misses records rather than stalling the engine.
func (s *Server) handleCycleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, cancel := s.engine.Subscribe(streamBuffer)
	defer cancel()

	requestID := requestIDFrom(r.Context())
	log.Info().Str("request_id", requestID).Str("remote", r.RemoteAddr).Msg("Cycle stream connected")

	// Drain client frames so close and ping control messages are
	// processed; any read error ends the subscription.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				log.Info().Str("request_id", requestID).Msg("Cycle stream closed")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(rec); err != nil {
				log.Warn().Err(err).Str("request_id", requestID).Msg("Cycle stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}
