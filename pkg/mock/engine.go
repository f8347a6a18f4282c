// Package mock provides a scriptable in-memory media engine for tests
// and examples.
package mock

import (
	"sync"
	"time"

	"github.com/voicelink/go-call-manager/pkg/engine"
	"github.com/voicelink/go-call-manager/pkg/groupcall"
	"github.com/voicelink/go-call-manager/pkg/media"
	"github.com/voicelink/go-call-manager/pkg/signaling"
)

// EngineCall records one operation issued to the fake engine.
type EngineCall struct {
	Op   string
	Args []interface{}
}

// Engine records every operation and can be scripted to fail specific
// ones or to serve canned video frames.
type Engine struct {
	mu    sync.Mutex
	calls []EngineCall
	fail  map[string]error

	// Frame served by ReceiveVideoFrame/ReceiveGroupCallVideoFrame.
	FrameWidth  int
	FrameHeight int
	FrameReady  bool

	Inputs  []media.AudioDevice
	Outputs []media.AudioDevice
}

var _ engine.Engine = (*Engine)(nil)

func NewEngine() *Engine {
	return &Engine{fail: make(map[string]error)}
}

// FailWith makes every subsequent call of op return err.
func (e *Engine) FailWith(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail[op] = err
}

// Calls returns a copy of the recorded operations.
func (e *Engine) Calls() []EngineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EngineCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallsTo counts recorded operations with the given name.
func (e *Engine) CallsTo(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// LastCall returns the most recent operation with the given name.
func (e *Engine) LastCall(op string) (EngineCall, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.calls) - 1; i >= 0; i-- {
		if e.calls[i].Op == op {
			return e.calls[i], true
		}
	}
	return EngineCall{}, false
}

func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

func (e *Engine) record(op string, args ...interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, EngineCall{Op: op, Args: args})
	return e.fail[op]
}

// One-to-one operations.

func (e *Engine) Accept(id signaling.CallID) error {
	return e.record("Accept", id)
}

func (e *Engine) Ignore(id signaling.CallID) error {
	return e.record("Ignore", id)
}

func (e *Engine) Hangup() error {
	return e.record("Hangup")
}

func (e *Engine) SetOutgoingAudioEnabled(enabled bool) error {
	return e.record("SetOutgoingAudioEnabled", enabled)
}

func (e *Engine) SetOutgoingVideoEnabled(enabled bool) error {
	return e.record("SetOutgoingVideoEnabled", enabled)
}

func (e *Engine) SetOutgoingVideoIsScreenShare(isScreenShare bool) error {
	return e.record("SetOutgoingVideoIsScreenShare", isScreenShare)
}

func (e *Engine) UpdateBandwidthMode(mode media.BandwidthMode) error {
	return e.record("UpdateBandwidthMode", mode)
}

func (e *Engine) SendVideoFrame(width, height int, format media.VideoPixelFormat, buffer []byte) error {
	return e.record("SendVideoFrame", width, height, format)
}

func (e *Engine) ReceiveVideoFrame(buffer []byte, maxWidth, maxHeight int) (int, int, bool) {
	_ = e.record("ReceiveVideoFrame", maxWidth, maxHeight)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.FrameWidth, e.FrameHeight, e.FrameReady
}

// Manager-level operations.

func (e *Engine) SetSelfUUID(uuid []byte) error {
	return e.record("SetSelfUUID", uuid)
}

func (e *Engine) CreateOutgoingCall(remoteUserID signaling.UserID, isVideoCall bool,
	localDeviceID signaling.DeviceID) error {
	return e.record("CreateOutgoingCall", remoteUserID, isVideoCall, localDeviceID)
}

func (e *Engine) Proceed(callID signaling.CallID, settings engine.CallSettings) error {
	return e.record("Proceed", callID, settings)
}

func (e *Engine) SignalingMessageSent(callID signaling.CallID) error {
	return e.record("SignalingMessageSent", callID)
}

func (e *Engine) SignalingMessageSendFailed(callID signaling.CallID) error {
	return e.record("SignalingMessageSendFailed", callID)
}

func (e *Engine) ReceivedOffer(remoteUserID signaling.UserID, remoteDeviceID, localDeviceID signaling.DeviceID,
	messageAge time.Duration, callID signaling.CallID, offerType signaling.OfferType,
	opaque, senderIdentityKey, receiverIdentityKey []byte) error {
	return e.record("ReceivedOffer", remoteUserID, remoteDeviceID, localDeviceID, messageAge, callID, offerType, opaque)
}

func (e *Engine) ReceivedAnswer(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, opaque, senderIdentityKey, receiverIdentityKey []byte) error {
	return e.record("ReceivedAnswer", remoteUserID, remoteDeviceID, callID, opaque)
}

func (e *Engine) ReceivedIceCandidates(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, candidates [][]byte) error {
	return e.record("ReceivedIceCandidates", remoteUserID, remoteDeviceID, callID, candidates)
}

func (e *Engine) ReceivedHangup(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, hangupType signaling.HangupType, hangupDeviceID signaling.DeviceID) error {
	return e.record("ReceivedHangup", remoteUserID, remoteDeviceID, callID, hangupType, hangupDeviceID)
}

func (e *Engine) ReceivedBusy(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID) error {
	return e.record("ReceivedBusy", remoteUserID, remoteDeviceID, callID)
}

func (e *Engine) ReceivedCallMessage(remoteUUID []byte, remoteDeviceID, localDeviceID signaling.DeviceID,
	data []byte, messageAge time.Duration) error {
	return e.record("ReceivedCallMessage", remoteUUID, remoteDeviceID, localDeviceID, data, messageAge)
}

func (e *Engine) ReceivedHTTPResponse(requestID uint32, status int, body []byte) error {
	return e.record("ReceivedHTTPResponse", requestID, status, body)
}

func (e *Engine) HTTPRequestFailed(requestID uint32, debugInfo string) error {
	return e.record("HTTPRequestFailed", requestID, debugInfo)
}

func (e *Engine) PeekGroupCall(requestID uint32, sfuURL string, membershipProof []byte,
	members []groupcall.GroupMemberInfo) error {
	return e.record("PeekGroupCall", requestID, sfuURL, membershipProof, members)
}

func (e *Engine) CancelGroupRing(groupID []byte, ringID int64, reason *groupcall.RingCancelReason) error {
	return e.record("CancelGroupRing", groupID, ringID, reason)
}

func (e *Engine) AudioInputs() []media.AudioDevice {
	_ = e.record("AudioInputs")
	return e.Inputs
}

func (e *Engine) SetAudioInput(index int) error {
	return e.record("SetAudioInput", index)
}

func (e *Engine) AudioOutputs() []media.AudioDevice {
	_ = e.record("AudioOutputs")
	return e.Outputs
}

func (e *Engine) SetAudioOutput(index int) error {
	return e.record("SetAudioOutput", index)
}

// Group call operations.

func (e *Engine) CreateGroupCallClient(clientID uint32, groupID []byte, sfuURL string,
	hkdfExtraInfo []byte, audioLevelsInterval time.Duration) error {
	return e.record("CreateGroupCallClient", clientID, groupID, sfuURL, hkdfExtraInfo, audioLevelsInterval)
}

func (e *Engine) DeleteGroupCallClient(clientID uint32) error {
	return e.record("DeleteGroupCallClient", clientID)
}

func (e *Engine) Connect(clientID uint32) error {
	return e.record("Connect", clientID)
}

func (e *Engine) Join(clientID uint32) error {
	return e.record("Join", clientID)
}

func (e *Engine) Leave(clientID uint32) error {
	return e.record("Leave", clientID)
}

func (e *Engine) Disconnect(clientID uint32) error {
	return e.record("Disconnect", clientID)
}

func (e *Engine) SetOutgoingAudioMuted(clientID uint32, muted bool) error {
	return e.record("SetOutgoingAudioMuted", clientID, muted)
}

func (e *Engine) SetOutgoingVideoMuted(clientID uint32, muted bool) error {
	return e.record("SetOutgoingVideoMuted", clientID, muted)
}

func (e *Engine) SetPresenting(clientID uint32, presenting bool) error {
	return e.record("SetPresenting", clientID, presenting)
}

func (e *Engine) SetOutgoingGroupVideoIsScreenShare(clientID uint32, isScreenShare bool) error {
	return e.record("SetOutgoingGroupVideoIsScreenShare", clientID, isScreenShare)
}

func (e *Engine) GroupRing(clientID uint32, recipient []byte) error {
	return e.record("GroupRing", clientID, recipient)
}

func (e *Engine) ResendMediaKeys(clientID uint32) error {
	return e.record("ResendMediaKeys", clientID)
}

func (e *Engine) SetBandwidthMode(clientID uint32, mode media.BandwidthMode) error {
	return e.record("SetBandwidthMode", clientID, mode)
}

func (e *Engine) RequestVideo(clientID uint32, resolutions []groupcall.VideoRequest,
	activeSpeakerHeight uint16) error {
	return e.record("RequestVideo", clientID, resolutions, activeSpeakerHeight)
}

func (e *Engine) SetGroupMembers(clientID uint32, members []groupcall.GroupMemberInfo) error {
	return e.record("SetGroupMembers", clientID, members)
}

func (e *Engine) SetMembershipProof(clientID uint32, proof []byte) error {
	return e.record("SetMembershipProof", clientID, proof)
}

func (e *Engine) SendGroupCallVideoFrame(clientID uint32, width, height int,
	format media.VideoPixelFormat, buffer []byte) error {
	return e.record("SendGroupCallVideoFrame", clientID, width, height, format)
}

func (e *Engine) ReceiveGroupCallVideoFrame(clientID, remoteDemuxID uint32, buffer []byte,
	maxWidth, maxHeight int) (int, int, bool) {
	_ = e.record("ReceiveGroupCallVideoFrame", clientID, remoteDemuxID, maxWidth, maxHeight)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.FrameWidth, e.FrameHeight, e.FrameReady
}
