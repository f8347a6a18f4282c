package groupcall

import (
	"time"

	"github.com/voicelink/go-call-manager/pkg/media"
)

// ConnectionState of the media-server connection for a group call.
type ConnectionState int

const (
	ConnectionStateNotConnected ConnectionState = 0
	ConnectionStateConnecting   ConnectionState = 1
	ConnectionStateConnected    ConnectionState = 2
	ConnectionStateReconnecting ConnectionState = 3
)

// JoinState reports whether the local device is joined to a group call
// and can exchange media. Orthogonal to ConnectionState.
type JoinState int

const (
	JoinStateNotJoined JoinState = 0
	JoinStateJoining   JoinState = 1
	JoinStateJoined    JoinState = 2
)

// EndReason explains why a group call ended, when not ended purposely
// by the user.
type EndReason int

const (
	// Normal events
	EndReasonDeviceExplicitlyDisconnected EndReason = 0
	EndReasonServerExplicitlyDisconnected EndReason = 1

	// Things that can go wrong
	EndReasonCallManagerIsBusy                   EndReason = 2
	EndReasonSfuClientFailedToJoin               EndReason = 3
	EndReasonFailedToCreatePeerConnectionFactory EndReason = 4
	EndReasonFailedToNegotiateSrtpKeys           EndReason = 5
	EndReasonFailedToCreatePeerConnection        EndReason = 6
	EndReasonFailedToStartPeerConnection         EndReason = 7
	EndReasonFailedToUpdatePeerConnection        EndReason = 8
	EndReasonFailedToSetMaxSendBitrate           EndReason = 9
	EndReasonIceFailedWhileConnecting            EndReason = 10
	EndReasonIceFailedAfterConnected             EndReason = 11
	EndReasonServerChangedDemuxID                EndReason = 12
	EndReasonHasMaxDevices                       EndReason = 13
)

// RingUpdate describes a change in an incoming or outgoing group ring.
type RingUpdate int

const (
	// The sender is trying to ring this user.
	RingUpdateRequested RingUpdate = iota
	// The sender tried to ring this user, but it's been too long.
	RingUpdateExpiredRequest
	// Call was accepted elsewhere by a different device.
	RingUpdateAcceptedOnAnotherDevice
	// Call was declined elsewhere by a different device.
	RingUpdateDeclinedOnAnotherDevice
	// This device is currently on a different call.
	RingUpdateBusyLocally
	// A different device is currently on a different call.
	RingUpdateBusyOnAnotherDevice
	// The sender cancelled the ring request.
	RingUpdateCancelledByRinger
)

// RingCancelReason describes why an outgoing ring was cancelled.
type RingCancelReason int

const (
	// The user explicitly clicked "Decline".
	RingCancelReasonDeclinedByUser RingCancelReason = 0
	// The device is busy with another call.
	RingCancelReasonBusy RingCancelReason = 1
)

// PeekDeviceInfo is one device present in a peeked call.
type PeekDeviceInfo struct {
	DemuxID uint32
	UserID  []byte
}

// PeekInfo is a snapshot of a group call's participants and metadata,
// independent of the local device's join state.
type PeekInfo struct {
	Devices []PeekDeviceInfo
	Creator []byte
	EraID   string
	// Zero when the server did not report a limit.
	MaxDevices  uint32
	DeviceCount uint32
}

// LocalDeviceState is the local device's view of its own group call
// participation.
type LocalDeviceState struct {
	ConnectionState ConnectionState
	JoinState       JoinState
	// Zero until first joined; retained after leaving so the last
	// known identity stays inspectable.
	DemuxID       uint32
	AudioMuted    bool
	VideoMuted    bool
	AudioLevel    media.NormalizedAudioLevel
	Presenting    bool
	SharingScreen bool
	NetworkRoute  media.NetworkRoute
}

func newLocalDeviceState() LocalDeviceState {
	// By default audio and video are muted.
	return LocalDeviceState{
		ConnectionState: ConnectionStateNotConnected,
		JoinState:       JoinStateNotJoined,
		AudioMuted:      true,
		VideoMuted:      true,
	}
}

// RemoteDeviceState is one remote device in a group call. The engine
// pushes the roster ordered; the order is preserved here.
type RemoteDeviceState struct {
	DemuxID           uint32
	UserID            []byte
	MediaKeysReceived bool
	AudioMuted        bool
	VideoMuted        bool
	AudioLevel        media.NormalizedAudioLevel
	Presenting        bool
	SharingScreen     bool
	// Learned client-side from decoded frame dimensions; the engine
	// does not report it. Zero means unknown.
	VideoAspectRatio float32
	// Unix millis; zero if never reported.
	AddedTime uint64
	// Unix millis; zero if they've never spoken.
	SpeakerTime               uint64
	ForwardingVideo           bool
	IsHigherResolutionPending bool
}

// ReceivedAudioLevel pairs a remote device with its latest raw level.
type ReceivedAudioLevel struct {
	DemuxID uint32
	Level   media.RawAudioLevel
}

// GroupMemberInfo communicates group membership to the engine.
type GroupMemberInfo struct {
	UserID           []byte
	UserIDCipherText []byte
}

// VideoRequest communicates the rendered resolution of one remote
// device to the engine and the media server.
type VideoRequest struct {
	DemuxID   uint32
	Width     uint16
	Height    uint16
	Framerate uint16
}

// Observer receives group call notifications. OnEnded fires before the
// underlying engine session is released, so handlers may still read
// session fields.
type Observer interface {
	RequestMembershipProof(g *GroupCall)
	RequestGroupMembers(g *GroupCall)
	OnLocalDeviceStateChanged(g *GroupCall)
	OnRemoteDeviceStatesChanged(g *GroupCall)
	OnAudioLevels(g *GroupCall)
	OnPeekChanged(g *GroupCall)
	OnEnded(g *GroupCall, reason EndReason)
}

// Engine is the slice of media engine operations a group call session
// issues, keyed by the locally assigned client id.
type Engine interface {
	CreateGroupCallClient(clientID uint32, groupID []byte, sfuURL string,
		hkdfExtraInfo []byte, audioLevelsInterval time.Duration) error
	DeleteGroupCallClient(clientID uint32) error
	Connect(clientID uint32) error
	Join(clientID uint32) error
	Leave(clientID uint32) error
	Disconnect(clientID uint32) error
	SetOutgoingAudioMuted(clientID uint32, muted bool) error
	SetOutgoingVideoMuted(clientID uint32, muted bool) error
	SetPresenting(clientID uint32, presenting bool) error
	SetOutgoingGroupVideoIsScreenShare(clientID uint32, isScreenShare bool) error
	GroupRing(clientID uint32, recipient []byte) error
	ResendMediaKeys(clientID uint32) error
	SetBandwidthMode(clientID uint32, mode media.BandwidthMode) error
	RequestVideo(clientID uint32, resolutions []VideoRequest, activeSpeakerHeight uint16) error
	SetGroupMembers(clientID uint32, members []GroupMemberInfo) error
	SetMembershipProof(clientID uint32, proof []byte) error
	SendGroupCallVideoFrame(clientID uint32, width, height int,
		format media.VideoPixelFormat, buffer []byte) error
	ReceiveGroupCallVideoFrame(clientID, remoteDemuxID uint32, buffer []byte,
		maxWidth, maxHeight int) (width, height int, ok bool)
}
