// Package signaling defines the wire messages exchanged with remote
// peers through the external transport. Payloads are engine-defined
// opaque blobs; this layer never interprets them.
package signaling

import (
	"encoding/json"
	"fmt"
)

// UserID identifies a remote party across all of its devices.
type UserID string

// DeviceID identifies one device of a party. Zero means unset; a
// message without a destination device id is a broadcast.
type DeviceID uint32

// CallID is the engine-assigned handle of a one-to-one call, a 64-bit
// value split into two halves. The zero value means "not yet assigned".
type CallID struct {
	High uint32 `json:"high"`
	Low  uint32 `json:"low"`
}

func (id CallID) IsZero() bool {
	return id.High == 0 && id.Low == 0
}

func (id CallID) String() string {
	return fmt.Sprintf("%d-%d", id.High, id.Low)
}

type OfferType int

const (
	OfferTypeAudioCall OfferType = 0
	OfferTypeVideoCall OfferType = 1
)

type HangupType int

const (
	HangupTypeNormal         HangupType = 0
	HangupTypeAccepted       HangupType = 1
	HangupTypeDeclined       HangupType = 2
	HangupTypeBusy           HangupType = 3
	HangupTypeNeedPermission HangupType = 4
)

// CallingMessage is the envelope sent to or received from a remote
// party. Exactly one payload field is set by this module when sending;
// the inbound dispatcher does not assume exclusivity.
type CallingMessage struct {
	Offer         *OfferMessage          `json:"offer,omitempty"`
	Answer        *AnswerMessage         `json:"answer,omitempty"`
	IceCandidates []*IceCandidateMessage `json:"iceCandidates,omitempty"`
	// LegacyHangup is the pre-multi-ring hangup variant; still
	// accepted inbound, never produced outbound.
	LegacyHangup *HangupMessage `json:"legacyHangup,omitempty"`
	Busy         *BusyMessage   `json:"busy,omitempty"`
	Hangup       *HangupMessage `json:"hangup,omitempty"`
	Opaque       *OpaqueMessage `json:"opaque,omitempty"`

	SupportsMultiRing   bool     `json:"supportsMultiRing,omitempty"`
	DestinationDeviceID DeviceID `json:"destinationDeviceId,omitempty"`
}

type OfferMessage struct {
	CallID CallID    `json:"callId"`
	Type   OfferType `json:"type"`
	Opaque []byte    `json:"opaque,omitempty"`
}

type AnswerMessage struct {
	CallID CallID `json:"callId"`
	Opaque []byte `json:"opaque,omitempty"`
}

type IceCandidateMessage struct {
	CallID CallID `json:"callId"`
	Opaque []byte `json:"opaque,omitempty"`
}

type HangupMessage struct {
	CallID   CallID     `json:"callId"`
	Type     HangupType `json:"type"`
	DeviceID DeviceID   `json:"deviceId,omitempty"`
}

type BusyMessage struct {
	CallID CallID `json:"callId"`
}

// OpaqueMessage carries engine-to-engine out-of-band data.
type OpaqueMessage struct {
	Data []byte `json:"data,omitempty"`
}

func (m *CallingMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func UnmarshalCallingMessage(data []byte) (*CallingMessage, error) {
	m := &CallingMessage{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
