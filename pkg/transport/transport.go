// Package transport carries signaling envelopes between peers over
// websockets: a relay that routes by user id, and a client that a call
// manager plugs into as its outgoing signaling handler.
package transport

import (
	"time"

	"github.com/voicelink/go-call-manager/pkg/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Envelope wraps one calling message with its addressing. The relay
// stamps From with the sender's authenticated user id.
type Envelope struct {
	From         signaling.UserID          `json:"from"`
	FromDeviceID signaling.DeviceID        `json:"fromDeviceId,omitempty"`
	To           signaling.UserID          `json:"to"`
	Message      *signaling.CallingMessage `json:"message"`
}
