// Package call implements the state machine for a single one-to-one
// call session.
package call

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/voicelink/go-call-manager/pkg/executor"
	"github.com/voicelink/go-call-manager/pkg/media"
	"github.com/voicelink/go-call-manager/pkg/signaling"
	"github.com/voicelink/go-call-manager/pkg/utils"
)

// Call is a one-to-one call session. The manager creates it, assigns
// its call id once known suggested by the engine, and drives its
// lifecycle state from engine events. The object persists in Ended
// state as a terminal record until replaced by a new call.
type Call struct {
	mu     sync.Mutex
	engine Engine
	exec   *executor.Executor

	remoteUserID signaling.UserID
	// Zero while waiting for the engine to assign one.
	callID      signaling.CallID
	isIncoming  bool
	isVideoCall bool
	state       State
	endedReason *EndedReason

	outgoingAudioEnabled       bool
	outgoingVideoEnabled       bool
	outgoingVideoIsScreenShare bool
	remoteVideoEnabled         bool
	remoteSharingScreen        bool

	outgoingAudioLevel media.NormalizedAudioLevel
	remoteAudioLevel   media.NormalizedAudioLevel
	networkRoute       media.NetworkRoute

	capturer VideoCapturer
	renderer VideoRenderer
	observer Observer

	// Set by the renderer, or by the host directly; receives decoded
	// incoming video frames for this call.
	videoFrameHandler func(width, height int, buffer []byte)

	log *logrus.Entry
}

func New(engine Engine, exec *executor.Executor, remoteUserID signaling.UserID,
	callID signaling.CallID, isIncoming, isVideoCall bool, state State) *Call {
	return &Call{
		engine:       engine,
		exec:         exec,
		remoteUserID: remoteUserID,
		callID:       callID,
		isIncoming:   isIncoming,
		isVideoCall:  isVideoCall,
		state:        state,
		log:          utils.NewLogrusLogger(utils.DefaultLogLevel, "Call"),
	}
}

func (c *Call) RemoteUserID() signaling.UserID {
	return c.remoteUserID
}

func (c *Call) IsIncoming() bool {
	return c.isIncoming
}

func (c *Call) IsVideoCall() bool {
	return c.isVideoCall
}

func (c *Call) CallID() signaling.CallID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callID
}

// SetCallID records the engine-assigned handle. Once assigned it never
// changes; later assignments are dropped.
func (c *Call) SetCallID(id signaling.CallID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.callID.IsZero() {
		return
	}
	c.callID = id
}

func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState applies an engine-reported lifecycle state. Re-assigning
// the current state produces no side effect and no notification.
func (c *Call) SetState(state State) {
	c.mu.Lock()
	if state == c.state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.enableOrDisableCapturer()
	c.enableOrDisableRenderer()
	if o := c.getObserver(); o != nil {
		o.OnStateChanged(c)
	}
}

// SetCallEnded finalizes the call silently: no capture/render
// recomputation and no state-changed notification. Used for calls the
// host was never shown ringing.
func (c *Call) SetCallEnded() {
	c.mu.Lock()
	c.state = StateEnded
	c.mu.Unlock()
}

func (c *Call) EndedReason() *EndedReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endedReason
}

// SetEndedReason is write-once; a reason already present is kept.
func (c *Call) SetEndedReason(reason EndedReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endedReason != nil {
		return
	}
	c.endedReason = &reason
}

// ClearEndedReason is used by the manager when re-processing a glare
// loser's incoming call.
func (c *Call) ClearEndedReason() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endedReason = nil
}

func (c *Call) SetObserver(observer Observer) {
	c.mu.Lock()
	c.observer = observer
	c.mu.Unlock()
}

func (c *Call) getObserver() Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observer
}

func (c *Call) SetVideoCapturer(capturer VideoCapturer) {
	c.mu.Lock()
	c.capturer = capturer
	c.mu.Unlock()
	c.enableOrDisableCapturer()
}

func (c *Call) SetVideoRenderer(renderer VideoRenderer) {
	c.mu.Lock()
	c.renderer = renderer
	c.mu.Unlock()
	c.enableOrDisableRenderer()
}

func (c *Call) Accept() {
	if err := c.engine.Accept(c.CallID()); err != nil {
		c.log.Errorf("accept: %v", err)
	}
}

// Decline is implemented as a hangup.
func (c *Call) Decline() {
	c.Hangup()
}

func (c *Call) Ignore() {
	if err := c.engine.Ignore(c.CallID()); err != nil {
		c.log.Errorf("ignore: %v", err)
	}
}

// Hangup stops capture and rendering synchronously, without waiting
// for the engine's state echo, to release hardware as early as
// possible. The engine request itself is deferred a turn.
func (c *Call) Hangup() {
	c.mu.Lock()
	capturer, renderer := c.capturer, c.renderer
	c.mu.Unlock()
	if capturer != nil {
		capturer.Stop()
	}
	if renderer != nil {
		renderer.Disable()
	}
	// This assumes we only have one active call.
	c.bestEffort("hangup", c.engine.Hangup)
}

func (c *Call) OutgoingAudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outgoingAudioEnabled
}

// SetOutgoingAudio records the mute state and pushes it to the engine.
// It does not alter lifecycle state.
func (c *Call) SetOutgoingAudio(enabled bool) {
	c.mu.Lock()
	c.outgoingAudioEnabled = enabled
	c.mu.Unlock()
	// This assumes we only have one active call.
	c.bestEffort("set outgoing audio", func() error {
		return c.engine.SetOutgoingAudioEnabled(enabled)
	})
}

func (c *Call) OutgoingVideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outgoingVideoEnabled
}

func (c *Call) SetOutgoingVideo(enabled bool) {
	c.mu.Lock()
	c.outgoingVideoEnabled = enabled
	c.mu.Unlock()
	c.enableOrDisableCapturer()
}

func (c *Call) OutgoingVideoIsScreenShare() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outgoingVideoIsScreenShare
}

func (c *Call) SetOutgoingVideoIsScreenShare(isScreenShare bool) {
	c.mu.Lock()
	c.outgoingVideoIsScreenShare = isScreenShare
	c.mu.Unlock()
	// This assumes we only have one active call.
	c.bestEffort("set screen share", func() error {
		return c.engine.SetOutgoingVideoIsScreenShare(isScreenShare)
	})
}

func (c *Call) RemoteVideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteVideoEnabled
}

// SetRemoteVideoEnabled applies the engine-reported remote video flag.
func (c *Call) SetRemoteVideoEnabled(enabled bool) {
	c.mu.Lock()
	c.remoteVideoEnabled = enabled
	c.mu.Unlock()
	c.enableOrDisableRenderer()
	if o := c.getObserver(); o != nil {
		o.OnRemoteVideoEnabled(c)
	}
}

func (c *Call) RemoteSharingScreen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteSharingScreen
}

func (c *Call) SetRemoteSharingScreen(enabled bool) {
	c.mu.Lock()
	c.remoteSharingScreen = enabled
	c.mu.Unlock()
	if o := c.getObserver(); o != nil {
		o.OnRemoteSharingScreen(c)
	}
}

func (c *Call) NetworkRoute() media.NetworkRoute {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.networkRoute
}

func (c *Call) SetNetworkRoute(localAdapterType media.NetworkAdapterType) {
	c.mu.Lock()
	c.networkRoute.LocalAdapterType = localAdapterType
	c.mu.Unlock()
	if o := c.getObserver(); o != nil {
		o.OnNetworkRouteChanged(c)
	}
}

func (c *Call) OutgoingAudioLevel() media.NormalizedAudioLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outgoingAudioLevel
}

func (c *Call) RemoteAudioLevel() media.NormalizedAudioLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAudioLevel
}

func (c *Call) SetAudioLevels(captured, received media.RawAudioLevel) {
	c.mu.Lock()
	c.outgoingAudioLevel = media.NormalizeAudioLevel(captured)
	c.remoteAudioLevel = media.NormalizeAudioLevel(received)
	c.mu.Unlock()
	if o := c.getObserver(); o != nil {
		o.OnAudioLevels(c)
	}
}

func (c *Call) UpdateBandwidthMode(mode media.BandwidthMode) {
	c.bestEffort("update bandwidth mode", func() error {
		return c.engine.UpdateBandwidthMode(mode)
	})
}

// SendVideoFrame makes a Call a video frame sender.
func (c *Call) SendVideoFrame(width, height int, format media.VideoPixelFormat, buffer []byte) {
	// This assumes we only have one active call.
	if err := c.engine.SendVideoFrame(width, height, format, buffer); err != nil {
		c.log.Debugf("send video frame: %v", err)
	}
}

// ReceiveVideoFrame makes a Call a video frame source.
func (c *Call) ReceiveVideoFrame(buffer []byte, maxWidth, maxHeight int) (int, int, bool) {
	return c.engine.ReceiveVideoFrame(buffer, maxWidth, maxHeight)
}

func (c *Call) SetVideoFrameHandler(handler func(width, height int, buffer []byte)) {
	c.mu.Lock()
	c.videoFrameHandler = handler
	c.mu.Unlock()
}

// DeliverVideoFrame hands an incoming decoded frame to the registered
// handler, if any.
func (c *Call) DeliverVideoFrame(width, height int, buffer []byte) {
	c.mu.Lock()
	handler := c.videoFrameHandler
	c.mu.Unlock()
	if handler != nil {
		handler(width, height, buffer)
	}
}

func (c *Call) enableOrDisableCapturer() {
	c.mu.Lock()
	capturer := c.capturer
	state := c.state
	outgoingVideo := c.outgoingVideoEnabled
	screenShare := c.outgoingVideoIsScreenShare
	c.mu.Unlock()

	if capturer == nil {
		return
	}
	if !outgoingVideo {
		capturer.Stop()
		if state == StateAccepted {
			c.pushOutgoingVideoEnabled(false)
		}
		return
	}
	switch state {
	case StatePrering, StateRinging:
		capturer.StartPreview()
	case StateAccepted:
		capturer.StartAndSend(c)
		c.pushOutgoingVideoEnabled(true)
		if screenShare {
			// Make sure the status gets sent.
			c.bestEffort("set screen share", func() error {
				return c.engine.SetOutgoingVideoIsScreenShare(true)
			})
		}
	case StateReconnecting:
		capturer.StartAndSend(c)
		// Don't send status until we're reconnected.
	case StateEnded:
		capturer.Stop()
	}
}

func (c *Call) pushOutgoingVideoEnabled(enabled bool) {
	c.bestEffort("set outgoing video", func() error {
		return c.engine.SetOutgoingVideoEnabled(enabled)
	})
}

func (c *Call) enableOrDisableRenderer() {
	c.mu.Lock()
	renderer := c.renderer
	state := c.state
	remoteVideo := c.remoteVideoEnabled
	c.mu.Unlock()

	if renderer == nil {
		return
	}
	if !remoteVideo {
		renderer.Disable()
		return
	}
	switch state {
	case StateAccepted, StateReconnecting:
		renderer.Enable(c)
	default:
		renderer.Disable()
	}
}

// bestEffort defers an engine request one executor turn and discards
// its failure; the engine-side call object may already be torn down,
// which is an expected race rather than a fault.
func (c *Call) bestEffort(op string, f func() error) {
	c.exec.Post(func() {
		if err := f(); err != nil {
			c.log.Debugf("%s: %v", op, err)
		}
	})
}
