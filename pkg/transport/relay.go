package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/voicelink/go-call-manager/pkg/signaling"
	"github.com/voicelink/go-call-manager/pkg/utils"
)

// Relay routes signaling envelopes between connected clients by user
// id. It keeps at most one connection per user id; a newer connection
// replaces the older one.
type Relay struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[signaling.UserID]*relayClient

	log *logrus.Entry
}

type relayClient struct {
	id     string
	userID signaling.UserID
	conn   *websocket.Conn
	send   chan []byte
}

func NewRelay() *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[signaling.UserID]*relayClient),
		log:     utils.NewLogrusLogger(utils.DefaultLogLevel, "Relay"),
	}
}

// ServeHTTP upgrades the request to a websocket. The connecting user
// identifies itself with the "user" query parameter.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	userID := signaling.UserID(req.URL.Query().Get("user"))
	if userID == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Errorf("upgrade %s: %v", userID, err)
		return
	}

	client := &relayClient{
		id:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 64),
	}
	r.register(client)
	r.log.Infof("client %s connected as %s", client.id, userID)

	go r.writePump(client)
	go r.readPump(client)
}

func (r *Relay) register(client *relayClient) {
	r.mu.Lock()
	old := r.clients[client.userID]
	r.clients[client.userID] = client
	r.mu.Unlock()
	if old != nil {
		old.conn.Close()
	}
}

func (r *Relay) unregister(client *relayClient) {
	r.mu.Lock()
	if r.clients[client.userID] == client {
		delete(r.clients, client.userID)
	}
	r.mu.Unlock()
	client.conn.Close()
}

func (r *Relay) lookup(userID signaling.UserID) *relayClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[userID]
}

func (r *Relay) readPump(client *relayClient) {
	defer r.unregister(client)
	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				r.log.Errorf("read %s: %v", client.userID, err)
			}
			return
		}
		envelope := &Envelope{}
		if err := json.Unmarshal(data, envelope); err != nil {
			r.log.Errorf("bad envelope from %s: %v", client.userID, err)
			continue
		}
		// The sender cannot spoof another identity.
		envelope.From = client.userID
		r.forward(envelope)
	}
}

func (r *Relay) forward(envelope *Envelope) {
	target := r.lookup(envelope.To)
	if target == nil {
		r.log.Infof("dropping envelope from %s, %s not connected",
			envelope.From, envelope.To)
		return
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		r.log.Errorf("marshal envelope: %v", err)
		return
	}
	select {
	case target.send <- data:
	default:
		r.log.Errorf("send buffer of %s full, dropping envelope", envelope.To)
	}
}

func (r *Relay) writePump(client *relayClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
