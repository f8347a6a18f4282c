// Package manager implements the call orchestration layer: it owns the
// single current one-to-one call, the set of active group calls, the
// pending peek-request table, and the signaling construction and glare
// resolution logic. Engine events are routed to the right session
// object; session actions are routed to the engine.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voicelink/go-call-manager/pkg/call"
	"github.com/voicelink/go-call-manager/pkg/engine"
	"github.com/voicelink/go-call-manager/pkg/executor"
	"github.com/voicelink/go-call-manager/pkg/groupcall"
	"github.com/voicelink/go-call-manager/pkg/media"
	"github.com/voicelink/go-call-manager/pkg/request"
	"github.com/voicelink/go-call-manager/pkg/signaling"
	"github.com/voicelink/go-call-manager/pkg/utils"
)

// DefaultGlareDelay is how long an incoming call colliding with a just
// torn down outgoing call is postponed before being reprocessed.
const DefaultGlareDelay = 500 * time.Millisecond

type Config struct {
	// LocalDeviceID is this device's id; inbound messages addressed
	// to a different device are dropped.
	LocalDeviceID signaling.DeviceID
	// GlareDelay compensates for an event-ordering race between the
	// remote glare winner's offer and the local loser's teardown.
	// Zero selects DefaultGlareDelay.
	GlareDelay time.Duration
	// AudioLevelsInterval is passed to the engine for each group call
	// client; zero disables periodic level reports.
	AudioLevelsInterval time.Duration
}

// historyRecord survives independently of any Call object so that
// auto-rejected calls still produce a history notification.
type historyRecord struct {
	isVideoCall bool
	receivedAt  time.Time
}

// Manager coordinates one-to-one and group call sessions between the
// host application and the media engine. It implements engine.Handler.
//
// Orchestration logic runs one unit at a time on an internal executor;
// the Handle* fields are the host's integration points and may be left
// nil, in which case the corresponding action is dropped with an error
// log (an unanswerable incoming call is auto-ignored).
type Manager struct {
	engine engine.Engine
	exec   *executor.Executor
	config Config

	mu           sync.Mutex
	current      *call.Call
	groupCalls   map[uint32]*groupcall.GroupCall
	callInfo     map[signaling.CallID]historyRecord
	nextClientID utils.AtomicUInt32
	peekRequests *request.Requests[groupcall.PeekInfo]

	// HandleOutgoingSignaling delivers a constructed signaling
	// message to the remote party through the external transport.
	// The send outcome is reported back to the engine; a nil handler
	// counts as a send failure.
	HandleOutgoingSignaling func(ctx context.Context, remoteUserID signaling.UserID,
		message *signaling.CallingMessage) error
	// HandleIncomingCall lets the host observe a new incoming call
	// and return the settings to proceed with. Nil settings or an
	// error ignores the call.
	HandleIncomingCall func(c *call.Call) (*engine.CallSettings, error)
	// HandleStartCall runs once an outgoing call's id is assigned and
	// returns the settings to proceed with. Nil settings or an error
	// hangs the call up.
	HandleStartCall func(c *call.Call) (*engine.CallSettings, error)
	// HandleAutoEndedCall records history for calls that ended
	// without ever becoming an observable session.
	HandleAutoEndedCall func(remoteUserID signaling.UserID, reason call.EndedReason,
		age time.Duration, isVideoCall bool)
	HandleGroupCallRingUpdate func(groupID []byte, ringID int64, sender []byte,
		update groupcall.RingUpdate)
	HandleSendHTTPRequest func(requestID uint32, url string, method engine.HTTPMethod,
		headers map[string]string, body []byte)
	HandleSendCallMessage        func(recipientUUID, message []byte, urgency engine.CallMessageUrgency)
	HandleSendCallMessageToGroup func(groupID, message []byte, urgency engine.CallMessageUrgency)

	log       *logrus.Entry
	engineLog *logrus.Entry
}

var _ engine.Handler = (*Manager)(nil)

func New(eng engine.Engine, config Config) *Manager {
	if config.GlareDelay == 0 {
		config.GlareDelay = DefaultGlareDelay
	}
	return &Manager{
		engine:       eng,
		exec:         executor.New(),
		config:       config,
		groupCalls:   make(map[uint32]*groupcall.GroupCall),
		callInfo:     make(map[signaling.CallID]historyRecord),
		peekRequests: request.NewRequests[groupcall.PeekInfo](),
		log:          utils.NewLogrusLogger(utils.DefaultLogLevel, "CallManager"),
		engineLog:    utils.NewLogrusLogger(utils.DefaultLogLevel, "Engine"),
	}
}

// Stop shuts the internal executor down after draining queued work.
func (m *Manager) Stop() {
	m.exec.Stop()
}

func (m *Manager) SetSelfUUID(uuid []byte) error {
	return m.engine.SetSelfUUID(uuid)
}

// CurrentCall returns the current one-to-one call, nil when none.
func (m *Manager) CurrentCall() *call.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StartOutgoingCall creates a new outgoing call in Prering state with
// a not-yet-known call id and asks the engine to place it. The id
// arrives out-of-band and the call proceeds via HandleStartCall.
func (m *Manager) StartOutgoingCall(remoteUserID signaling.UserID, isVideoCall bool) *call.Call {
	c := call.New(m.engine, m.exec, remoteUserID, signaling.CallID{}, false, isVideoCall,
		call.StatePrering)
	m.mu.Lock()
	m.current = c
	m.mu.Unlock()

	c.SetOutgoingAudio(true)
	c.SetOutgoingVideo(isVideoCall)

	if err := m.engine.CreateOutgoingCall(remoteUserID, isVideoCall, m.config.LocalDeviceID); err != nil {
		m.log.Errorf("create outgoing call: %v", err)
	}
	return c
}

// Proceed supplies the engine with the settings for a call whose start
// handler has been answered out-of-band.
func (m *Manager) Proceed(callID signaling.CallID, settings engine.CallSettings) {
	m.deferred("proceed", func() error {
		return m.engine.Proceed(callID, settings)
	})
}

// Convenience actions keyed by call id. A non-matching id is a stale
// event and is silently ignored.

// Accept also unmutes the microphone and, for a video answer, the
// camera, so the call starts flowing media right away.
func (m *Manager) Accept(callID signaling.CallID, asVideoCall bool) {
	if c := m.matchCall(callID); c != nil {
		c.Accept()
		c.SetOutgoingAudio(true)
		c.SetOutgoingVideo(asVideoCall)
	}
}

func (m *Manager) Decline(callID signaling.CallID) {
	if c := m.matchCall(callID); c != nil {
		c.Decline()
	}
}

func (m *Manager) Ignore(callID signaling.CallID) {
	if c := m.matchCall(callID); c != nil {
		c.Ignore()
	}
}

func (m *Manager) Hangup(callID signaling.CallID) {
	if c := m.matchCall(callID); c != nil {
		c.Hangup()
	}
}

func (m *Manager) SetOutgoingAudio(callID signaling.CallID, enabled bool) {
	if c := m.matchCall(callID); c != nil {
		c.SetOutgoingAudio(enabled)
	}
}

func (m *Manager) SetOutgoingVideo(callID signaling.CallID, enabled bool) {
	if c := m.matchCall(callID); c != nil {
		c.SetOutgoingVideo(enabled)
	}
}

func (m *Manager) SetOutgoingVideoIsScreenShare(callID signaling.CallID, isScreenShare bool) {
	if c := m.matchCall(callID); c != nil {
		c.SetOutgoingVideoIsScreenShare(isScreenShare)
	}
}

func (m *Manager) SetVideoCapturer(callID signaling.CallID, capturer call.VideoCapturer) {
	if c := m.matchCall(callID); c != nil {
		c.SetVideoCapturer(capturer)
	}
}

func (m *Manager) SetVideoRenderer(callID signaling.CallID, renderer call.VideoRenderer) {
	if c := m.matchCall(callID); c != nil {
		c.SetVideoRenderer(renderer)
	}
}

func (m *Manager) matchCall(callID signaling.CallID) *call.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.CallID() != callID {
		return nil
	}
	return m.current
}

// Audio device passthroughs.

func (m *Manager) AudioInputs() []media.AudioDevice {
	return m.engine.AudioInputs()
}

func (m *Manager) SetAudioInput(index int) error {
	return m.engine.SetAudioInput(index)
}

func (m *Manager) AudioOutputs() []media.AudioDevice {
	return m.engine.AudioOutputs()
}

func (m *Manager) SetAudioOutput(index int) error {
	return m.engine.SetAudioOutput(index)
}

// GetGroupCall creates an engine-side group call client under a fresh
// client id and wraps it in a GroupCall session registered with the
// manager. The session is removed again when the engine reports it
// ended.
func (m *Manager) GetGroupCall(groupID []byte, sfuURL string, hkdfExtraInfo []byte,
	observer groupcall.Observer) (*groupcall.GroupCall, error) {
	clientID := m.nextClientID.Incr()
	if err := m.engine.CreateGroupCallClient(clientID, groupID, sfuURL, hkdfExtraInfo,
		m.config.AudioLevelsInterval); err != nil {
		return nil, err
	}
	g := groupcall.New(m.engine, clientID, groupID, sfuURL, observer)
	m.mu.Lock()
	m.groupCalls[clientID] = g
	m.mu.Unlock()
	return g, nil
}

// PeekGroupCall asks the engine for a server-side snapshot of a group
// call without joining it. The result arrives on the returned channel.
func (m *Manager) PeekGroupCall(sfuURL string, membershipProof []byte,
	members []groupcall.GroupMemberInfo) <-chan groupcall.PeekInfo {
	id, ch := m.peekRequests.Add()
	m.deferred("peek group call", func() error {
		return m.engine.PeekGroupCall(id, sfuURL, membershipProof, members)
	})
	return ch
}

// CancelGroupRing tells the engine an outgoing group ring should stop.
// A nil reason cancels on this device only, without informing others.
func (m *Manager) CancelGroupRing(groupID []byte, ringID int64, reason *groupcall.RingCancelReason) {
	m.deferred("cancel group ring", func() error {
		return m.engine.CancelGroupRing(groupID, ringID, reason)
	})
}

// ReceivedHTTPResponse feeds the outcome of a delegated HTTP request
// back into the engine.
func (m *Manager) ReceivedHTTPResponse(requestID uint32, status int, body []byte) {
	m.deferred("received http response", func() error {
		return m.engine.ReceivedHTTPResponse(requestID, status, body)
	})
}

// HTTPRequestFailed reports a delegated HTTP request that never got a
// response.
func (m *Manager) HTTPRequestFailed(requestID uint32, debugInfo string) {
	m.deferred("http request failed", func() error {
		return m.engine.HTTPRequestFailed(requestID, debugInfo)
	})
}

// RenderVideoFrame hands a decoded incoming frame to the current call.
func (m *Manager) RenderVideoFrame(width, height int, buffer []byte) {
	if c := m.CurrentCall(); c != nil {
		c.DeliverVideoFrame(width, height, buffer)
	}
}

// ReceivedCallingMessage dispatches one inbound wire message. Each
// payload kind present is forwarded to the engine independently; a
// message addressed to another device is dropped entirely.
func (m *Manager) ReceivedCallingMessage(remoteUserID signaling.UserID, remoteUUID []byte,
	remoteDeviceID signaling.DeviceID, messageAge time.Duration,
	message *signaling.CallingMessage, senderIdentityKey, receiverIdentityKey []byte) {
	m.exec.Post(func() {
		m.dispatchCallingMessage(remoteUserID, remoteUUID, remoteDeviceID, messageAge,
			message, senderIdentityKey, receiverIdentityKey)
	})
}

func (m *Manager) dispatchCallingMessage(remoteUserID signaling.UserID, remoteUUID []byte,
	remoteDeviceID signaling.DeviceID, messageAge time.Duration,
	message *signaling.CallingMessage, senderIdentityKey, receiverIdentityKey []byte) {
	if message.DestinationDeviceID != 0 && message.DestinationDeviceID != m.config.LocalDeviceID {
		m.log.Infof("dropping message intended for device %d, local device is %d",
			message.DestinationDeviceID, m.config.LocalDeviceID)
		return
	}

	if offer := message.Offer; offer != nil {
		if len(offer.Opaque) == 0 {
			m.log.Errorf("dropping message, offer %s has no opaque payload", offer.CallID)
			return
		}
		m.mu.Lock()
		m.callInfo[offer.CallID] = historyRecord{
			isVideoCall: offer.Type == signaling.OfferTypeVideoCall,
			receivedAt:  time.Now(),
		}
		m.mu.Unlock()
		m.intoEngine("received offer", func() error {
			return m.engine.ReceivedOffer(remoteUserID, remoteDeviceID,
				m.config.LocalDeviceID, messageAge, offer.CallID, offer.Type,
				offer.Opaque, senderIdentityKey, receiverIdentityKey)
		})
	}

	if answer := message.Answer; answer != nil {
		if len(answer.Opaque) == 0 {
			m.log.Errorf("dropping message, answer %s has no opaque payload", answer.CallID)
			return
		}
		m.intoEngine("received answer", func() error {
			return m.engine.ReceivedAnswer(remoteUserID, remoteDeviceID,
				answer.CallID, answer.Opaque, senderIdentityKey, receiverIdentityKey)
		})
	}

	if len(message.IceCandidates) > 0 {
		callID := message.IceCandidates[0].CallID
		candidates := make([][]byte, 0, len(message.IceCandidates))
		for _, candidate := range message.IceCandidates {
			if len(candidate.Opaque) == 0 {
				m.log.Errorf("received ice candidate %s without opaque payload, skipping",
					candidate.CallID)
				continue
			}
			candidates = append(candidates, candidate.Opaque)
		}
		if len(candidates) == 0 {
			m.log.Errorf("dropping message, no usable ice candidates")
			return
		}
		m.intoEngine("received ice candidates", func() error {
			return m.engine.ReceivedIceCandidates(remoteUserID, remoteDeviceID,
				callID, candidates)
		})
	}

	if hangup := message.Hangup; hangup != nil {
		m.intoEngine("received hangup", func() error {
			return m.engine.ReceivedHangup(remoteUserID, remoteDeviceID,
				hangup.CallID, hangup.Type, hangup.DeviceID)
		})
	} else if legacy := message.LegacyHangup; legacy != nil {
		m.intoEngine("received legacy hangup", func() error {
			return m.engine.ReceivedHangup(remoteUserID, remoteDeviceID,
				legacy.CallID, legacy.Type, legacy.DeviceID)
		})
	}

	if busy := message.Busy; busy != nil {
		m.intoEngine("received busy", func() error {
			return m.engine.ReceivedBusy(remoteUserID, remoteDeviceID, busy.CallID)
		})
	}

	if opaque := message.Opaque; opaque != nil {
		switch {
		case len(remoteUUID) == 0:
			m.log.Errorf("received opaque message without remote uuid")
		case len(opaque.Data) == 0:
			m.log.Errorf("received opaque message without data")
		default:
			m.intoEngine("received call message", func() error {
				return m.engine.ReceivedCallMessage(remoteUUID, remoteDeviceID,
					m.config.LocalDeviceID, opaque.Data, messageAge)
			})
		}
	}
}

// engine.Handler implementation. Every event is serialized through the
// executor so engine callbacks never interleave with host commands.

func (m *Manager) OnStartOutgoingCall(remoteUserID signaling.UserID, callID signaling.CallID) {
	m.exec.Post(func() {
		c := m.CurrentCall()
		if c == nil || c.RemoteUserID() != remoteUserID || c.IsIncoming() || !c.CallID().IsZero() {
			m.log.Infof("ignoring stale outgoing call id %s for %s", callID, remoteUserID)
			return
		}
		c.SetCallID(callID)

		handler := m.HandleStartCall
		if handler == nil {
			m.log.Errorf("no start call handler registered, hanging up %s", callID)
			c.Hangup()
			return
		}
		go func() {
			settings, err := handler(c)
			m.exec.Post(func() {
				if err != nil || settings == nil {
					m.log.Warnf("start call handler declined %s: %v", callID, err)
					c.Hangup()
					return
				}
				m.Proceed(callID, *settings)
			})
		}()
	})
}

func (m *Manager) OnStartIncomingCall(remoteUserID signaling.UserID, callID signaling.CallID,
	isVideoCall bool) {
	m.exec.Post(func() {
		m.handleIncomingCall(remoteUserID, callID, isVideoCall)
	})
}

func (m *Manager) handleIncomingCall(remoteUserID signaling.UserID, callID signaling.CallID,
	isVideoCall bool) {
	// If we just lost a glare race the loser teardown and the
	// winner's incoming call can arrive interleaved incorrectly.
	// Postpone the incoming call one delay and reprocess.
	if cur := m.CurrentCall(); cur != nil {
		if reason := cur.EndedReason(); reason != nil &&
			(*reason == call.EndedReasonGlare || *reason == call.EndedReasonReCall) {
			m.log.Infof("delaying incoming call %s after glare teardown", callID)
			cur.ClearEndedReason()
			time.AfterFunc(m.config.GlareDelay, func() {
				m.exec.Post(func() {
					m.handleIncomingCall(remoteUserID, callID, isVideoCall)
				})
			})
			return
		}
	}

	c := call.New(m.engine, m.exec, remoteUserID, callID, true, isVideoCall, call.StatePrering)
	m.mu.Lock()
	m.current = c
	m.mu.Unlock()

	handler := m.HandleIncomingCall
	if handler == nil {
		m.log.Errorf("no incoming call handler registered, ignoring %s", callID)
		c.Ignore()
		return
	}
	go func() {
		settings, err := handler(c)
		m.exec.Post(func() {
			if err != nil || settings == nil {
				m.log.Warnf("incoming call handler declined %s: %v", callID, err)
				c.Ignore()
				return
			}
			m.Proceed(callID, *settings)
		})
	}()
}

func (m *Manager) OnCallState(remoteUserID signaling.UserID, state call.State) {
	m.exec.Post(func() {
		c := m.CurrentCall()
		if c == nil || c.RemoteUserID() != remoteUserID {
			m.log.Infof("ignoring state %s for unknown call with %s", state, remoteUserID)
			return
		}
		c.SetState(state)
	})
}

func (m *Manager) OnCallEnded(remoteUserID signaling.UserID, callID signaling.CallID,
	reason call.EndedReason, age time.Duration) {
	m.exec.Post(func() {
		m.mu.Lock()
		info := m.callInfo[callID]
		delete(m.callInfo, callID)
		cur := m.current
		m.mu.Unlock()

		// The glare winner keeps its outgoing call; the loser's
		// incoming offer ended before ever surfacing.
		if reason == call.EndedReasonReceivedOfferWithGlare && cur != nil {
			return
		}

		exactIncomingPrering := cur != nil &&
			cur.RemoteUserID() == remoteUserID &&
			!cur.CallID().IsZero() && cur.CallID() == callID &&
			cur.IsIncoming() && cur.State() == call.StatePrering

		autoEnded := cur == nil ||
			cur.RemoteUserID() != remoteUserID ||
			(!cur.CallID().IsZero() && cur.CallID() != callID) ||
			reason == call.EndedReasonReceivedOfferWhileActive ||
			reason == call.EndedReasonReceivedOfferExpired ||
			exactIncomingPrering

		if autoEnded {
			if handler := m.HandleAutoEndedCall; handler != nil {
				handler(remoteUserID, reason, age, info.isVideoCall)
			}
			if exactIncomingPrering {
				// The host never saw this call ringing; finalize
				// it without a state-changed notification.
				cur.SetEndedReason(reason)
				cur.SetCallEnded()
			}
			return
		}

		// The reason must be visible to the state-changed observer.
		cur.SetEndedReason(reason)
		cur.SetState(call.StateEnded)
	})
}

func (m *Manager) OnRemoteVideoEnabled(remoteUserID signaling.UserID, enabled bool) {
	m.exec.Post(func() {
		if c := m.currentFor(remoteUserID); c != nil {
			c.SetRemoteVideoEnabled(enabled)
		}
	})
}

func (m *Manager) OnRemoteSharingScreen(remoteUserID signaling.UserID, enabled bool) {
	m.exec.Post(func() {
		if c := m.currentFor(remoteUserID); c != nil {
			c.SetRemoteSharingScreen(enabled)
		}
	})
}

func (m *Manager) OnNetworkRouteChanged(remoteUserID signaling.UserID,
	localAdapterType media.NetworkAdapterType) {
	m.exec.Post(func() {
		if c := m.currentFor(remoteUserID); c != nil {
			c.SetNetworkRoute(localAdapterType)
		}
	})
}

func (m *Manager) OnAudioLevels(remoteUserID signaling.UserID,
	captured, received media.RawAudioLevel) {
	m.exec.Post(func() {
		if c := m.currentFor(remoteUserID); c != nil {
			c.SetAudioLevels(captured, received)
		}
	})
}

func (m *Manager) OnVideoFrame(width, height int, buffer []byte) {
	// Frame delivery stays off the executor; it runs at frame rate
	// and touches no orchestration state.
	m.RenderVideoFrame(width, height, buffer)
}

func (m *Manager) currentFor(remoteUserID signaling.UserID) *call.Call {
	c := m.CurrentCall()
	if c == nil || c.RemoteUserID() != remoteUserID {
		return nil
	}
	return c
}

// Outbound signaling construction.

func (m *Manager) OnSendOffer(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, broadcast bool, offerType signaling.OfferType, opaque []byte) {
	m.exec.Post(func() {
		message := &signaling.CallingMessage{
			Offer: &signaling.OfferMessage{CallID: callID, Type: offerType, Opaque: opaque},
		}
		m.sendSignaling(remoteUserID, remoteDeviceID, callID, broadcast, message)
	})
}

func (m *Manager) OnSendAnswer(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, broadcast bool, opaque []byte) {
	m.exec.Post(func() {
		message := &signaling.CallingMessage{
			Answer: &signaling.AnswerMessage{CallID: callID, Opaque: opaque},
		}
		m.sendSignaling(remoteUserID, remoteDeviceID, callID, broadcast, message)
	})
}

func (m *Manager) OnSendIceCandidates(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, broadcast bool, candidates [][]byte) {
	m.exec.Post(func() {
		list := make([]*signaling.IceCandidateMessage, 0, len(candidates))
		for _, opaque := range candidates {
			list = append(list, &signaling.IceCandidateMessage{CallID: callID, Opaque: opaque})
		}
		message := &signaling.CallingMessage{IceCandidates: list}
		m.sendSignaling(remoteUserID, remoteDeviceID, callID, broadcast, message)
	})
}

func (m *Manager) OnSendHangup(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, broadcast bool, hangupType signaling.HangupType,
	hangupDeviceID signaling.DeviceID) {
	m.exec.Post(func() {
		message := &signaling.CallingMessage{
			Hangup: &signaling.HangupMessage{
				CallID:   callID,
				Type:     hangupType,
				DeviceID: hangupDeviceID,
			},
		}
		m.sendSignaling(remoteUserID, remoteDeviceID, callID, broadcast, message)
	})
}

func (m *Manager) OnSendBusy(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, broadcast bool) {
	m.exec.Post(func() {
		message := &signaling.CallingMessage{
			Busy: &signaling.BusyMessage{CallID: callID},
		}
		m.sendSignaling(remoteUserID, remoteDeviceID, callID, broadcast, message)
	})
}

// sendSignaling stamps capability and destination onto a constructed
// message and delegates delivery to the transport handler. The send
// outcome is acknowledged to the engine either way; a broadcast never
// carries a destination device id.
func (m *Manager) sendSignaling(remoteUserID signaling.UserID, remoteDeviceID signaling.DeviceID,
	callID signaling.CallID, broadcast bool, message *signaling.CallingMessage) {
	message.SupportsMultiRing = true
	if !broadcast {
		message.DestinationDeviceID = remoteDeviceID
	}

	handler := m.HandleOutgoingSignaling
	if handler == nil {
		m.log.Errorf("no outgoing signaling handler registered, send of %s fails", callID)
		m.intoEngine("signaling send failed", func() error {
			return m.engine.SignalingMessageSendFailed(callID)
		})
		return
	}
	go func() {
		err := handler(context.Background(), remoteUserID, message)
		m.exec.Post(func() {
			if err != nil {
				m.log.Warnf("send signaling %s: %v", callID, err)
				if err := m.engine.SignalingMessageSendFailed(callID); err != nil {
					m.log.Debugf("signaling send failed: %v", err)
				}
				return
			}
			if err := m.engine.SignalingMessageSent(callID); err != nil {
				m.log.Debugf("signaling sent: %v", err)
			}
		})
	}()
}

// Call message and HTTP delegation.

func (m *Manager) OnSendCallMessage(recipientUUID, message []byte, urgency engine.CallMessageUrgency) {
	m.exec.Post(func() {
		handler := m.HandleSendCallMessage
		if handler == nil {
			m.log.Errorf("no call message handler registered, dropping message")
			return
		}
		handler(recipientUUID, message, urgency)
	})
}

func (m *Manager) OnSendCallMessageToGroup(groupID, message []byte, urgency engine.CallMessageUrgency) {
	m.exec.Post(func() {
		handler := m.HandleSendCallMessageToGroup
		if handler == nil {
			m.log.Errorf("no group call message handler registered, dropping message")
			return
		}
		handler(groupID, message, urgency)
	})
}

func (m *Manager) OnSendHTTPRequest(requestID uint32, url string, method engine.HTTPMethod,
	headers map[string]string, body []byte) {
	m.exec.Post(func() {
		handler := m.HandleSendHTTPRequest
		if handler == nil {
			m.log.Errorf("no http request handler registered, failing request %d", requestID)
			m.intoEngine("http request failed", func() error {
				return m.engine.HTTPRequestFailed(requestID, "no handler registered")
			})
			return
		}
		handler(requestID, url, method, headers, body)
	})
}

func (m *Manager) OnGroupCallRingUpdate(groupID []byte, ringID int64, sender []byte,
	update groupcall.RingUpdate) {
	m.exec.Post(func() {
		handler := m.HandleGroupCallRingUpdate
		if handler == nil {
			m.log.Errorf("no group ring handler registered, dropping update %v", update)
			return
		}
		handler(groupID, ringID, sender, update)
	})
}

// Group call event routing by client id.

func (m *Manager) OnRequestMembershipProof(clientID uint32) {
	m.exec.Post(func() {
		if g := m.groupCall(clientID, "request membership proof"); g != nil {
			g.RequestMembershipProof()
		}
	})
}

func (m *Manager) OnRequestGroupMembers(clientID uint32) {
	m.exec.Post(func() {
		if g := m.groupCall(clientID, "request group members"); g != nil {
			g.RequestGroupMembers()
		}
	})
}

func (m *Manager) OnConnectionStateChanged(clientID uint32,
	connectionState groupcall.ConnectionState) {
	m.exec.Post(func() {
		if g := m.groupCall(clientID, "connection state changed"); g != nil {
			g.HandleConnectionStateChanged(connectionState)
		}
	})
}

func (m *Manager) OnJoinStateChanged(clientID uint32, joinState groupcall.JoinState,
	demuxID uint32) {
	m.exec.Post(func() {
		if g := m.groupCall(clientID, "join state changed"); g != nil {
			g.HandleJoinStateChanged(joinState, demuxID)
		}
	})
}

func (m *Manager) OnGroupNetworkRouteChanged(clientID uint32,
	localAdapterType media.NetworkAdapterType) {
	m.exec.Post(func() {
		if g := m.groupCall(clientID, "network route changed"); g != nil {
			g.HandleNetworkRouteChanged(localAdapterType)
		}
	})
}

func (m *Manager) OnGroupAudioLevels(clientID uint32, captured media.RawAudioLevel,
	received []groupcall.ReceivedAudioLevel) {
	m.exec.Post(func() {
		if g := m.groupCall(clientID, "audio levels"); g != nil {
			g.HandleAudioLevels(captured, received)
		}
	})
}

func (m *Manager) OnRemoteDevicesChanged(clientID uint32, remotes []*groupcall.RemoteDeviceState) {
	m.exec.Post(func() {
		if g := m.groupCall(clientID, "remote devices changed"); g != nil {
			g.HandleRemoteDevicesChanged(remotes)
		}
	})
}

func (m *Manager) OnPeekChanged(clientID uint32, info *groupcall.PeekInfo) {
	m.exec.Post(func() {
		if g := m.groupCall(clientID, "peek changed"); g != nil {
			g.HandlePeekChanged(info)
		}
	})
}

func (m *Manager) OnPeekResponse(requestID uint32, info *groupcall.PeekInfo) {
	m.exec.Post(func() {
		var snapshot groupcall.PeekInfo
		if info != nil {
			snapshot = *info
		}
		if !m.peekRequests.Resolve(requestID, snapshot) {
			m.log.Errorf("no peek request found for id %d", requestID)
		}
	})
}

func (m *Manager) OnGroupCallEnded(clientID uint32, reason groupcall.EndReason) {
	m.exec.Post(func() {
		g := m.groupCall(clientID, "group call ended")
		if g == nil {
			return
		}
		g.HandleEnded(reason)
		m.mu.Lock()
		delete(m.groupCalls, clientID)
		m.mu.Unlock()
	})
}

func (m *Manager) OnLogMessage(level engine.LogLevel, fileName string, line int, message string) {
	entry := m.engineLog.WithFields(logrus.Fields{"file": fileName, "line": line})
	switch level {
	case engine.LogLevelError:
		entry.Error(message)
	case engine.LogLevelWarn:
		entry.Warn(message)
	case engine.LogLevelInfo:
		entry.Info(message)
	case engine.LogLevelDebug:
		entry.Debug(message)
	case engine.LogLevelTrace:
		entry.Trace(message)
	}
}

func (m *Manager) groupCall(clientID uint32, event string) *groupcall.GroupCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groupCalls[clientID]
	if g == nil {
		m.log.Errorf("%s: group call client %d not found in map!", event, clientID)
	}
	return g
}

// deferred runs an engine request on the next executor turn and
// swallows its failure; the engine side may already be torn down,
// which is an expected race rather than a fault.
func (m *Manager) deferred(op string, f func() error) {
	m.exec.Post(func() {
		if err := f(); err != nil {
			m.log.Debugf("%s: %v", op, err)
		}
	})
}

// intoEngine runs an engine request inline, logging failure at debug.
func (m *Manager) intoEngine(op string, f func() error) {
	if err := f(); err != nil {
		m.log.Debugf("%s: %v", op, err)
	}
}
