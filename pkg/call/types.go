package call

import (
	"github.com/voicelink/go-call-manager/pkg/media"
	"github.com/voicelink/go-call-manager/pkg/signaling"
)

// State of a one-to-one call. Only the call manager assigns it, in
// response to engine events; host actions request transitions through
// the engine, which echoes back the resulting state.
type State int

const (
	StatePrering State = iota
	StateRinging
	StateAccepted
	StateReconnecting
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePrering:
		return "Prering"
	case StateRinging:
		return "Ringing"
	case StateAccepted:
		return "Accepted"
	case StateReconnecting:
		return "Reconnecting"
	case StateEnded:
		return "Ended"
	}
	return "Unknown"
}

type EndedReason string

const (
	EndedReasonLocalHangup                EndedReason = "LocalHangup"
	EndedReasonRemoteHangup               EndedReason = "RemoteHangup"
	EndedReasonRemoteHangupNeedPermission EndedReason = "RemoteHangupNeedPermission"
	EndedReasonDeclined                   EndedReason = "Declined"
	EndedReasonBusy                       EndedReason = "Busy"
	EndedReasonGlare                      EndedReason = "Glare"
	EndedReasonReCall                     EndedReason = "ReCall"
	EndedReasonReceivedOfferExpired       EndedReason = "ReceivedOfferExpired"
	EndedReasonReceivedOfferWhileActive   EndedReason = "ReceivedOfferWhileActive"
	EndedReasonReceivedOfferWithGlare     EndedReason = "ReceivedOfferWithGlare"
	EndedReasonSignalingFailure           EndedReason = "SignalingFailure"
	EndedReasonGlareFailure               EndedReason = "GlareFailure"
	EndedReasonConnectionFailure          EndedReason = "ConnectionFailure"
	EndedReasonInternalFailure            EndedReason = "InternalFailure"
	EndedReasonTimeout                    EndedReason = "Timeout"
	EndedReasonAcceptedOnAnotherDevice    EndedReason = "AcceptedOnAnotherDevice"
	EndedReasonDeclinedOnAnotherDevice    EndedReason = "DeclinedOnAnotherDevice"
	EndedReasonBusyOnAnotherDevice        EndedReason = "BusyOnAnotherDevice"
)

// Engine is the slice of media engine operations a one-to-one call
// session issues. The engine echoes resulting state via the manager.
type Engine interface {
	Accept(id signaling.CallID) error
	Ignore(id signaling.CallID) error
	Hangup() error
	SetOutgoingAudioEnabled(enabled bool) error
	SetOutgoingVideoEnabled(enabled bool) error
	SetOutgoingVideoIsScreenShare(isScreenShare bool) error
	UpdateBandwidthMode(mode media.BandwidthMode) error
	SendVideoFrame(width, height int, format media.VideoPixelFormat, buffer []byte) error
	ReceiveVideoFrame(buffer []byte, maxWidth, maxHeight int) (width, height int, ok bool)
}

// VideoCapturer abstracts the local capture device.
type VideoCapturer interface {
	// StartPreview starts capture without sending frames anywhere.
	StartPreview()
	// StartAndSend starts capture and routes frames into the call.
	StartAndSend(c *Call)
	Stop()
}

// VideoRenderer abstracts the surface remote video is drawn to.
type VideoRenderer interface {
	Enable(c *Call)
	Disable()
}

// Observer receives the per-call notifications the host cares about.
// All methods are invoked after the corresponding state mutation and
// its side effects have been applied.
type Observer interface {
	OnStateChanged(c *Call)
	OnRemoteVideoEnabled(c *Call)
	OnRemoteSharingScreen(c *Call)
	OnNetworkRouteChanged(c *Call)
	OnAudioLevels(c *Call)
}
