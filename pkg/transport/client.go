package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/voicelink/go-call-manager/pkg/signaling"
	"github.com/voicelink/go-call-manager/pkg/utils"
)

var errClientClosed = errors.New("transport: client closed")

// Client is one user's connection to a signaling relay. Its Send
// method matches the call manager's outgoing signaling handler; the
// OnEnvelope callback feeds inbound messages back into the manager.
type Client struct {
	userID   signaling.UserID
	deviceID signaling.DeviceID
	conn     *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// OnEnvelope receives every inbound envelope. Set it before the
	// first message arrives; it runs on the read loop goroutine.
	OnEnvelope func(envelope *Envelope)

	log *logrus.Entry
}

// Dial connects to a relay at rawURL (ws:// or wss://) and identifies
// as the given user and device.
func Dial(ctx context.Context, rawURL string, userID signaling.UserID,
	deviceID signaling.DeviceID) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("user", string(userID))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		userID:   userID,
		deviceID: deviceID,
		conn:     conn,
		send:     make(chan []byte, 64),
		done:     make(chan struct{}),
		log:      utils.NewLogrusLogger(utils.DefaultLogLevel, "Transport"),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Client) UserID() signaling.UserID {
	return c.userID
}

// Send delivers one calling message to the remote user through the
// relay. It satisfies the manager's HandleOutgoingSignaling shape.
func (c *Client) Send(ctx context.Context, remoteUserID signaling.UserID,
	message *signaling.CallingMessage) error {
	data, err := json.Marshal(&Envelope{
		From:         c.userID,
		FromDeviceID: c.deviceID,
		To:           remoteUserID,
		Message:      message,
	})
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Errorf("read: %v", err)
			}
			return
		}
		envelope := &Envelope{}
		if err := json.Unmarshal(data, envelope); err != nil {
			c.log.Errorf("bad envelope: %v", err)
			continue
		}
		if c.OnEnvelope != nil {
			c.OnEnvelope(envelope)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
