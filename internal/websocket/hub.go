package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/the-outlaw-004/medai-backend/internal/model"
)

// Client represents a WebSocket client subscribed to one report
type Client struct {
	ReportID string
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub maintains active WebSocket connections grouped by report ID
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	ReportID string
	Message  []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ReportID] == nil {
				h.clients[client.ReportID] = make(map[*Client]bool)
			}
			h.clients[client.ReportID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.ReportID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.ReportID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.ReportID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastStage tells report subscribers which pipeline stage is running
func (h *Hub) BroadcastStage(reportID, stage string) {
	h.send(reportID, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		ReportID: reportID,
		Stage:    stage,
	})
}

// BroadcastComplete signals that a report reached its final state
func (h *Hub) BroadcastComplete(reportID string, report interface{}) {
	h.send(reportID, model.WSCompleteMessage{
		Type:     model.WSMessageTypeComplete,
		ReportID: reportID,
		Report:   report,
	})
}

// BroadcastError signals a failed processing attempt
func (h *Hub) BroadcastError(reportID, code, message string) {
	h.send(reportID, model.WSErrorMessage{
		Type:     model.WSMessageTypeError,
		ReportID: reportID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Hub) send(reportID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal ws message: %v", err)
		return
	}
	h.broadcast <- &BroadcastMessage{ReportID: reportID, Message: data}
}

// HandleConnection handles a WebSocket connection for one report
func (h *Hub) HandleConnection(c *websocket.Conn, reportID string) {
	client := &Client{
		ReportID: reportID,
		Conn:     c,
		Send:     make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Writer goroutine with keep-alive pings
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
