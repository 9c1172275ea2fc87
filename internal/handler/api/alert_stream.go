package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"ChainSignal/internal/domain/models"
	"ChainSignal/internal/usecase"
	xlogger "ChainSignal/pkg/logger"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPing      = streamPongWait * 9 / 10
)

// StreamMessage is one frame pushed to WebSocket clients.
type StreamMessage struct {
	Type  string         `json:"type"` // "toast" or "alert"
	Alert *models.Alert  `json:"alert,omitempty"`
	Toast *usecase.Toast `json:"toast,omitempty"`
}

// AlertStreamHandler pushes new alerts to browser clients over WebSocket.
// On connect the current toasts are replayed.
type AlertStreamHandler struct {
	logger   *xlogger.Logger
	feed     *usecase.AlertFeed
	upgrader websocket.Upgrader
}

func NewAlertStreamHandler(logger *xlogger.Logger, feed *usecase.AlertFeed) *AlertStreamHandler {
	return &AlertStreamHandler{
		logger: logger,
		feed:   feed,
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
	}
}

func (h *AlertStreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/alerts", h.Stream)
}

func (h *AlertStreamHandler) Stream(c echo.Context) error {
	// subscribe before the handshake so nothing published after it is missed
	alerts, cancel := h.feed.Subscribe()
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("alerts.stream upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	for _, t := range h.feed.Toasts() {
		t := t
		if err := h.write(conn, StreamMessage{Type: "toast", Toast: &t}); err != nil {
			return nil
		}
	}

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ping := time.NewTicker(streamPing)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case a, ok := <-alerts:
			if !ok {
				return nil
			}
			if err := h.write(conn, StreamMessage{Type: "alert", Alert: &a}); err != nil {
				h.logger.Debug("alerts.stream write failed", xlogger.Error(err))
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

func (h *AlertStreamHandler) write(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(msg)
}

// readPump discards client frames and closes done when the peer goes away.
func (h *AlertStreamHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
