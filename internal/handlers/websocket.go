package handlers

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"timeagent/internal/models"
	"timeagent/internal/services"
)

// WebSocketHandler serves the live record feed: every record create, update,
// or delete is pushed to all connected clients as a RecordEvent.
type WebSocketHandler struct {
	connManager *services.ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connManager: connManager}
}

// Handle handles a new WebSocket connection
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	clientIP, _ := c.Locals("client_ip").(string)

	done := make(chan struct{})

	conn := &models.ClientConnection{
		ConnID:    connID,
		ClientIP:  clientIP,
		Conn:      c,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.RecordEvent, 100),
		StopChan:  make(chan bool, 1),
	}

	h.connManager.Add(conn)
	defer func() {
		close(done)
		h.connManager.Remove(connID)
	}()

	c.SetReadDeadline(time.Now().Add(120 * time.Second))
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	go h.pingLoop(conn, done)
	go h.writeLoop(conn)

	// The feed is one-way; the read loop only services control frames and
	// detects the client going away.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writeLoop(conn *models.ClientConnection) {
	for event := range conn.WriteChan {
		conn.Mutex.Lock()
		err := conn.Conn.WriteJSON(event)
		conn.Mutex.Unlock()
		if err != nil {
			log.Printf("⚠️ [WS] Write failed on %s: %v", conn.ConnID, err)
			return
		}
	}
}

func (h *WebSocketHandler) pingLoop(conn *models.ClientConnection, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.Mutex.Lock()
			err := conn.Conn.WriteMessage(websocket.PingMessage, nil)
			conn.Mutex.Unlock()
			if err != nil {
				return
			}
		}
	}
}
