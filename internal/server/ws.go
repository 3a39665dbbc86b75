package server

import (
	"context"
	"net/http"
	"time"

	"convexpanel-go/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsTopics = []string{
	events.TopicDeployKeyChanged,
	events.TopicDeployKeyCleared,
	events.TopicEnvFileChanged,
	events.TopicConfigUpdated,
}

// handleWebSocket upgrades the connection and streams hub events to the
// panel so it can refresh credential and env-file state without polling.
func (s *Server) handleWebSocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.cfg.PanelOrigin == "*" || origin == s.cfg.PanelOrigin
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	clientID := uuid.NewString()
	log.WithField("client_id", clientID).Debug("websocket client connected")

	// Buffered so a slow client drops events instead of blocking publishers.
	outCh := make(chan events.Event, 32)
	unsubs := make([]func(), 0, len(wsTopics))
	for _, topic := range wsTopics {
		unsubs = append(unsubs, s.deps.Hub.Subscribe(topic, func(_ context.Context, ev events.Event) {
			select {
			case outCh <- ev:
			default:
				log.WithField("client_id", clientID).Debug("websocket client lagging, dropping event")
			}
		}))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
		conn.Close()
		log.WithField("client_id", clientID).Debug("websocket client disconnected")
	}()

	done := make(chan struct{})

	// Read loop only exists to notice the peer going away.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-outCh:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
