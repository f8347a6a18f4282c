// Package engine defines the capability surface of the media engine
// and the events it emits. The engine itself (codec negotiation, ICE,
// media pipelines) is a black box behind these interfaces.
package engine

import (
	"time"

	"github.com/voicelink/go-call-manager/pkg/call"
	"github.com/voicelink/go-call-manager/pkg/groupcall"
	"github.com/voicelink/go-call-manager/pkg/media"
	"github.com/voicelink/go-call-manager/pkg/signaling"
)

type HTTPMethod int

const (
	HTTPMethodGet    HTTPMethod = 0
	HTTPMethodPut    HTTPMethod = 1
	HTTPMethodPost   HTTPMethod = 2
	HTTPMethodDelete HTTPMethod = 3
)

type CallMessageUrgency int

const (
	UrgencyDroppable CallMessageUrgency = iota
	UrgencyHandleImmediately
)

type LogLevel int

const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

type IceServer struct {
	Username string
	Password string
	URLs     []string
}

// CallSettings parameterizes Proceed for an individual call.
type CallSettings struct {
	IceServer           IceServer
	HideIP              bool
	BandwidthMode       media.BandwidthMode
	AudioLevelsInterval time.Duration
}

// Engine is the full operation surface consumed by the call manager.
// Results of operations marked "answered out-of-band" arrive through
// Handler events rather than return values.
type Engine interface {
	call.Engine
	groupcall.Engine

	SetSelfUUID(uuid []byte) error

	// CreateOutgoingCall starts an outgoing call; the assigned call
	// id is answered out-of-band via Handler.OnStartOutgoingCall.
	CreateOutgoingCall(remoteUserID signaling.UserID, isVideoCall bool,
		localDeviceID signaling.DeviceID) error
	Proceed(callID signaling.CallID, settings CallSettings) error
	SignalingMessageSent(callID signaling.CallID) error
	SignalingMessageSendFailed(callID signaling.CallID) error

	ReceivedOffer(remoteUserID signaling.UserID, remoteDeviceID, localDeviceID signaling.DeviceID,
		messageAge time.Duration, callID signaling.CallID, offerType signaling.OfferType,
		opaque, senderIdentityKey, receiverIdentityKey []byte) error
	ReceivedAnswer(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID, opaque, senderIdentityKey, receiverIdentityKey []byte) error
	ReceivedIceCandidates(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID, candidates [][]byte) error
	ReceivedHangup(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID, hangupType signaling.HangupType,
		hangupDeviceID signaling.DeviceID) error
	ReceivedBusy(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID) error
	ReceivedCallMessage(remoteUUID []byte, remoteDeviceID, localDeviceID signaling.DeviceID,
		data []byte, messageAge time.Duration) error

	ReceivedHTTPResponse(requestID uint32, status int, body []byte) error
	HTTPRequestFailed(requestID uint32, debugInfo string) error

	// PeekGroupCall is answered out-of-band via Handler.OnPeekResponse.
	PeekGroupCall(requestID uint32, sfuURL string, membershipProof []byte,
		members []groupcall.GroupMemberInfo) error
	CancelGroupRing(groupID []byte, ringID int64, reason *groupcall.RingCancelReason) error

	AudioInputs() []media.AudioDevice
	SetAudioInput(index int) error
	AudioOutputs() []media.AudioDevice
	SetAudioOutput(index int) error
}

// Handler receives engine events. The call manager implements it; an
// engine binding must deliver events one at a time.
type Handler interface {
	OnStartOutgoingCall(remoteUserID signaling.UserID, callID signaling.CallID)
	OnStartIncomingCall(remoteUserID signaling.UserID, callID signaling.CallID, isVideoCall bool)
	OnCallState(remoteUserID signaling.UserID, state call.State)
	OnCallEnded(remoteUserID signaling.UserID, callID signaling.CallID,
		reason call.EndedReason, age time.Duration)
	OnRemoteVideoEnabled(remoteUserID signaling.UserID, enabled bool)
	OnRemoteSharingScreen(remoteUserID signaling.UserID, enabled bool)
	OnNetworkRouteChanged(remoteUserID signaling.UserID, localAdapterType media.NetworkAdapterType)
	OnAudioLevels(remoteUserID signaling.UserID, captured, received media.RawAudioLevel)
	OnVideoFrame(width, height int, buffer []byte)

	OnSendOffer(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID, broadcast bool, offerType signaling.OfferType, opaque []byte)
	OnSendAnswer(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID, broadcast bool, opaque []byte)
	OnSendIceCandidates(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID, broadcast bool, candidates [][]byte)
	OnSendHangup(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID, broadcast bool, hangupType signaling.HangupType,
		hangupDeviceID signaling.DeviceID)
	OnSendBusy(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
		callID signaling.CallID, broadcast bool)

	OnSendCallMessage(recipientUUID, message []byte, urgency CallMessageUrgency)
	OnSendCallMessageToGroup(groupID, message []byte, urgency CallMessageUrgency)
	OnSendHTTPRequest(requestID uint32, url string, method HTTPMethod,
		headers map[string]string, body []byte)
	OnGroupCallRingUpdate(groupID []byte, ringID int64, sender []byte, update groupcall.RingUpdate)

	OnRequestMembershipProof(clientID uint32)
	OnRequestGroupMembers(clientID uint32)
	OnConnectionStateChanged(clientID uint32, connectionState groupcall.ConnectionState)
	OnJoinStateChanged(clientID uint32, joinState groupcall.JoinState, demuxID uint32)
	OnGroupNetworkRouteChanged(clientID uint32, localAdapterType media.NetworkAdapterType)
	OnGroupAudioLevels(clientID uint32, captured media.RawAudioLevel,
		received []groupcall.ReceivedAudioLevel)
	OnRemoteDevicesChanged(clientID uint32, remotes []*groupcall.RemoteDeviceState)
	OnPeekChanged(clientID uint32, info *groupcall.PeekInfo)
	OnPeekResponse(requestID uint32, info *groupcall.PeekInfo)
	OnGroupCallEnded(clientID uint32, reason groupcall.EndReason)

	OnLogMessage(level LogLevel, fileName string, line int, message string)
}
