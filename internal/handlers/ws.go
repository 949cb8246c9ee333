package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/fanout"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

const (
	// Keep-alive interval so idle alert streams survive intermediaries.
	pingPeriod = 15 * time.Second

	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBufSize  = 64
	readBufLimit = 4096
)

type wsMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type wsClient struct {
	conn     *websocket.Conn
	clientID string
	send     chan wsMessage
}

// AlertsWS upgrades the connection, subscribes it to the fanout hub, and
// streams alert events until the client goes away. Delivery into the client
// buffer is non-blocking: a full buffer means the client is not keeping up
// and the hub drops the subscription.
func (h *Handler) AlertsWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		h.metrics.IncrementWebSocketErrors()
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = "client-" + uuid.NewString()
	}

	client := &wsClient{
		conn:     conn,
		clientID: clientID,
		send:     make(chan wsMessage, sendBufSize),
	}

	unsubscribe := h.hub.Subscribe(func(ev models.AlertEvent) error {
		select {
		case client.send <- wsMessage{
			Type:      "ALERT",
			Payload:   ev,
			ClientID:  clientID,
			Timestamp: time.Now().Unix(),
		}:
			return nil
		default:
			return fanout.ErrSlowSubscriber
		}
	})

	h.metrics.IncrementWebSocketConnections()
	log.Printf("WebSocket client connected: %s", clientID)

	go h.writePump(client)
	go func() {
		h.readPump(client)
		unsubscribe()
		h.metrics.DecrementWebSocketConnections()
		log.Printf("WebSocket client disconnected: %s", clientID)
	}()

	client.send <- wsMessage{
		Type:      "WELCOME",
		ClientID:  clientID,
		Timestamp: time.Now().Unix(),
		Payload: map[string]interface{}{
			"message": "Connected to SandGuard alert stream",
			"version": "1.0",
		},
	}
}

func (h *Handler) readPump(client *wsClient) {
	defer client.conn.Close()

	client.conn.SetReadLimit(readBufLimit)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg wsMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", client.clientID, err)
				h.metrics.IncrementWebSocketErrors()
			}
			return
		}

		switch msg.Type {
		case "PING":
			select {
			case client.send <- wsMessage{
				Type:      "PONG",
				ClientID:  client.clientID,
				Timestamp: time.Now().Unix(),
			}:
			default:
			}
		default:
			log.Printf("Unknown message type from %s: %s", client.clientID, msg.Type)
		}
	}
}

func (h *Handler) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}
			h.metrics.IncrementWebSocketMessages()

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
