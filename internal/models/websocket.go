package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// RecordEvent is pushed to every connected client when a time record changes.
type RecordEvent struct {
	Type   string      `json:"type"` // "record_created", "record_updated", "record_deleted"
	Record *TimeRecord `json:"record"`
	SentAt time.Time   `json:"sent_at"`
}

// ClientConnection represents a single WebSocket connection to the live
// record feed.
type ClientConnection struct {
	ConnID    string
	ClientIP  string
	Conn      *websocket.Conn
	CreatedAt time.Time
	WriteChan chan RecordEvent
	StopChan  chan bool
	Mutex     sync.Mutex
	closed    bool
}

// SafeSend sends an event to WriteChan safely, returning false if the channel
// is closed.
func (cc *ClientConnection) SafeSend(event RecordEvent) bool {
	cc.Mutex.Lock()
	if cc.closed {
		cc.Mutex.Unlock()
		return false
	}
	cc.Mutex.Unlock()

	// Use defer/recover to handle panic from send on closed channel
	defer func() {
		if r := recover(); r != nil {
			cc.Mutex.Lock()
			cc.closed = true
			cc.Mutex.Unlock()
		}
	}()

	select {
	case cc.WriteChan <- event:
		return true
	default:
		// Slow consumer, drop the event rather than block the pipeline.
		return false
	}
}

// MarkClosed marks the connection as closed
func (cc *ClientConnection) MarkClosed() {
	cc.Mutex.Lock()
	cc.closed = true
	cc.Mutex.Unlock()
}

// IsClosed returns true if the connection has been marked as closed
func (cc *ClientConnection) IsClosed() bool {
	cc.Mutex.Lock()
	defer cc.Mutex.Unlock()
	return cc.closed
}
