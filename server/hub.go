package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/harmon/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Outbound frame types.
const (
	frameEvent  = "event"
	frameStatus = "status"
	frameError  = "error"
)

type outbound struct {
	Type           string               `json:"type"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Event          *types.PipelineEvent `json:"event,omitempty"`
	Status         string               `json:"status,omitempty"`
	Message        string               `json:"message,omitempty"`
}

type client struct {
	conversationID string
	conn           *websocket.Conn
	send           chan []byte
}

// Hub fans pipeline events out to the sockets of their conversation.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	log     logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{clients: make(map[string]map[*client]struct{}), log: log}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.conversationID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.conversationID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.conversationID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.conversationID)
	}
	close(c.send)
}

// Publish implements interfaces.EventSink. Slow sockets drop frames rather
// than stall the conversation.
func (h *Hub) Publish(_ context.Context, ev types.PipelineEvent) error {
	return h.broadcast(ev.Utterance.ConversationID, outbound{Type: frameEvent, ConversationID: ev.Utterance.ConversationID, Event: &ev})
}

func (h *Hub) broadcast(conversationID string, msg outbound) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[conversationID] {
		h.deliver(c, b)
	}
	return nil
}

// sendTo queues a frame for one socket.
func (h *Hub) sendTo(c *client, msg outbound) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("encode frame")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.conversationID][c]; ok {
		h.deliver(c, b)
	}
}

func (h *Hub) deliver(c *client, b []byte) {
	select {
	case c.send <- b:
	default:
		h.log.WithField("conversation_id", c.conversationID).Warn("socket send buffer full, dropping frame")
	}
}

// CloseAll disconnects every socket.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, id)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
