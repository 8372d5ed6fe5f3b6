package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/store"
)

// Topic prefixes
const (
	exportTopicPrefix  = "exports:"
	projectTopicPrefix = "projects:"
)

// ExportTopic is the topic carrying export task updates of a project
func ExportTopic(projectID string) string {
	return exportTopicPrefix + projectID
}

// ProjectTopic is the topic carrying project snapshots
func ProjectTopic(projectID string) string {
	return projectTopicPrefix + projectID
}

// Client represents a WebSocket client
type Client struct {
	Topic string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by topic
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	Topic   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Topic] == nil {
				h.clients[client.Topic] = make(map[*Client]bool)
			}
			h.clients[client.Topic][client] = true
			h.mu.Unlock()
			log.Printf("[WS] Client subscribed to %s", client.Topic)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			log.Printf("[WS] Client unsubscribed from %s", client.Topic)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.Topic] {
				select {
				case client.Send <- msg.Message:
				default:
					// Slow consumer
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
		if len(clients) == 0 {
			delete(h.clients, client.Topic)
		}
	}
}

// Stop ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// sendTo queues data for one client unless it was already removed
func (h *Hub) sendTo(client *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client.Topic][client] {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// Subscribers returns the number of clients on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func (h *Hub) publish(topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s message: %v", topic, err)
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{Topic: topic, Message: data}:
	default:
		log.Printf("[WS] Broadcast queue full, dropping %s message", topic)
	}
}

// BroadcastExport sends an export task update to the project's subscribers
func (h *Hub) BroadcastExport(task model.ExportTask) {
	h.publish(ExportTopic(task.ProjectID), model.WSExportMessage{
		Type: model.WSMessageTypeExport,
		Task: task,
	})
}

// NotifyExport lets the hub serve as the export tracker's notifier. A failed
// export is followed by an error message on the same topic.
func (h *Hub) NotifyExport(task model.ExportTask) {
	h.BroadcastExport(task)
	if task.Status == model.ExportStatusFailed {
		h.BroadcastError(ExportTopic(task.ProjectID), "EXPORT_FAILED", task.ErrorMessage)
	}
}

// BroadcastProject sends a project snapshot to the project's subscribers
func (h *Hub) BroadcastProject(snap store.Snapshot) {
	if snap.Project == nil {
		return
	}
	h.publish(ProjectTopic(snap.Project.ID), model.WSProjectMessage{
		Type:                 model.WSMessageTypeProject,
		Project:              snap.Project,
		IsGlobalLoading:      snap.IsGlobalLoading,
		PageGeneratingTasks:  snap.PageGeneratingTasks,
		PageDescriptionTasks: snap.PageDescriptionGeneratingTasks,
	})
}

// BroadcastError sends an error message to all topic subscribers
func (h *Hub) BroadcastError(topic string, code, message string) {
	h.publish(topic, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		Topic: topic,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// HandleConnection serves one WebSocket connection subscribed to topic
func (h *Hub) HandleConnection(c *websocket.Conn, topic string) {
	client := &Client{
		Topic: topic,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
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
				// Send ping for keep-alive
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
				log.Printf("[WS] Connection error on %s: %v", topic, err)
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
			h.sendTo(client, data)
		}
	}
}
