package manager_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voicelink/go-call-manager/pkg/call"
	"github.com/voicelink/go-call-manager/pkg/engine"
	"github.com/voicelink/go-call-manager/pkg/groupcall"
	"github.com/voicelink/go-call-manager/pkg/manager"
	"github.com/voicelink/go-call-manager/pkg/mock"
	"github.com/voicelink/go-call-manager/pkg/signaling"
)

func newTestManager(t *testing.T, config manager.Config) (*manager.Manager, *mock.Engine) {
	t.Helper()
	eng := mock.NewEngine()
	m := manager.New(eng, config)
	t.Cleanup(m.Stop)
	return m, eng
}

func acceptAll(c *call.Call) (*engine.CallSettings, error) {
	return &engine.CallSettings{}, nil
}

type callObserver struct {
	mu           sync.Mutex
	stateChanges []call.State
}

func (o *callObserver) OnStateChanged(c *call.Call) {
	o.mu.Lock()
	o.stateChanges = append(o.stateChanges, c.State())
	o.mu.Unlock()
}

func (o *callObserver) OnRemoteVideoEnabled(c *call.Call)  {}
func (o *callObserver) OnRemoteSharingScreen(c *call.Call) {}
func (o *callObserver) OnNetworkRouteChanged(c *call.Call) {}
func (o *callObserver) OnAudioLevels(c *call.Call)         {}

func (o *callObserver) states() []call.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]call.State, len(o.stateChanges))
	copy(out, o.stateChanges)
	return out
}

type groupObserver struct{}

func (groupObserver) RequestMembershipProof(g *groupcall.GroupCall)      {}
func (groupObserver) RequestGroupMembers(g *groupcall.GroupCall)         {}
func (groupObserver) OnLocalDeviceStateChanged(g *groupcall.GroupCall)   {}
func (groupObserver) OnRemoteDeviceStatesChanged(g *groupcall.GroupCall) {}
func (groupObserver) OnAudioLevels(g *groupcall.GroupCall)               {}
func (groupObserver) OnPeekChanged(g *groupcall.GroupCall)               {}

func (groupObserver) OnEnded(g *groupcall.GroupCall, r groupcall.EndReason) {}

func TestOutgoingCallLifecycle(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 3})
	m.HandleStartCall = acceptAll

	c := m.StartOutgoingCall("alice", false)
	m.Flush()
	require.Same(t, c, m.CurrentCall())
	require.True(t, c.OutgoingAudioEnabled())

	created, ok := eng.LastCall("CreateOutgoingCall")
	require.True(t, ok)
	require.Equal(t, signaling.UserID("alice"), created.Args[0])
	require.Equal(t, false, created.Args[1])
	require.Equal(t, signaling.DeviceID(3), created.Args[2])

	pushed, ok := eng.LastCall("SetOutgoingAudioEnabled")
	require.True(t, ok)
	require.Equal(t, true, pushed.Args[0])

	callID := signaling.CallID{Low: 42}
	m.OnStartOutgoingCall("alice", callID)
	m.Flush()
	require.Equal(t, callID, c.CallID())
	require.Eventually(t, func() bool {
		return eng.CallsTo("Proceed") == 1
	}, time.Second, 10*time.Millisecond)

	observer := &callObserver{}
	c.SetObserver(observer)
	capturer := mock.NewCapturer()
	renderer := mock.NewRenderer()
	m.SetVideoCapturer(callID, capturer)
	m.SetVideoRenderer(callID, renderer)

	m.OnCallState("alice", call.StateRinging)
	m.OnCallState("alice", call.StateAccepted)
	m.Flush()
	require.Equal(t, []call.State{call.StateRinging, call.StateAccepted}, observer.states())

	m.OnCallEnded("alice", callID, call.EndedReasonRemoteHangup, 0)
	m.Flush()
	require.Equal(t, call.StateEnded, c.State())
	require.NotNil(t, c.EndedReason())
	require.Equal(t, call.EndedReasonRemoteHangup, *c.EndedReason())
	// The reason was already visible when the observer fired.
	require.Equal(t,
		[]call.State{call.StateRinging, call.StateAccepted, call.StateEnded},
		observer.states())
	require.Equal(t, "Stop", capturer.Log()[len(capturer.Log())-1])
	require.Equal(t, "Disable", renderer.Log()[len(renderer.Log())-1])
}

func TestStaleOutgoingCallIDIgnored(t *testing.T) {
	m, _ := newTestManager(t, manager.Config{LocalDeviceID: 1})
	m.HandleStartCall = acceptAll

	// No current call at all.
	m.OnStartOutgoingCall("alice", signaling.CallID{Low: 1})
	m.Flush()
	require.Nil(t, m.CurrentCall())

	// Current call is with someone else.
	c := m.StartOutgoingCall("bob", false)
	m.OnStartOutgoingCall("alice", signaling.CallID{Low: 2})
	m.Flush()
	require.True(t, c.CallID().IsZero())

	// An id was already assigned; a second one is stale.
	m.OnStartOutgoingCall("bob", signaling.CallID{Low: 3})
	m.OnStartOutgoingCall("bob", signaling.CallID{Low: 4})
	m.Flush()
	require.Equal(t, signaling.CallID{Low: 3}, c.CallID())
}

func TestIncomingCallAutoIgnoredWithoutHandler(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})

	m.OnStartIncomingCall("alice", signaling.CallID{Low: 9}, false)
	m.Flush()
	require.Equal(t, 1, eng.CallsTo("Ignore"))
}

func TestIncomingCallHandlerDeclinesByError(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	m.HandleIncomingCall = func(c *call.Call) (*engine.CallSettings, error) {
		return nil, errors.New("not now")
	}

	m.OnStartIncomingCall("alice", signaling.CallID{Low: 9}, false)
	m.Flush()
	require.Eventually(t, func() bool {
		return eng.CallsTo("Ignore") == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, 0, eng.CallsTo("Proceed"))
}

func TestGlareIncomingCallDelayed(t *testing.T) {
	m, _ := newTestManager(t, manager.Config{LocalDeviceID: 1, GlareDelay: 30 * time.Millisecond})
	m.HandleStartCall = acceptAll
	m.HandleIncomingCall = acceptAll

	loser := m.StartOutgoingCall("bob", false)
	m.OnCallEnded("bob", signaling.CallID{}, call.EndedReasonGlare, 0)
	m.Flush()
	require.Equal(t, call.StateEnded, loser.State())

	m.OnStartIncomingCall("bob", signaling.CallID{Low: 77}, false)
	m.Flush()
	// Within the same turn the loser is still current and its reason
	// has been cleared for reprocessing.
	require.Same(t, loser, m.CurrentCall())
	require.Nil(t, loser.EndedReason())

	require.Eventually(t, func() bool {
		cur := m.CurrentCall()
		return cur != nil && cur != loser && cur.IsIncoming()
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, signaling.CallID{Low: 77}, m.CurrentCall().CallID())
}

func TestCallEndedGlareWinnerKeepsCall(t *testing.T) {
	m, _ := newTestManager(t, manager.Config{LocalDeviceID: 1})
	m.HandleStartCall = acceptAll

	winner := m.StartOutgoingCall("bob", false)
	m.OnStartOutgoingCall("bob", signaling.CallID{Low: 5})
	m.OnCallState("bob", call.StateRinging)
	m.Flush()

	// The remote's colliding offer ended before surfacing; ours is
	// untouched.
	m.OnCallEnded("bob", signaling.CallID{Low: 88}, call.EndedReasonReceivedOfferWithGlare, 0)
	m.Flush()
	require.Same(t, winner, m.CurrentCall())
	require.Equal(t, call.StateRinging, winner.State())
	require.Nil(t, winner.EndedReason())
}

func TestCallEndedMismatchOnlyRecordsHistory(t *testing.T) {
	m, _ := newTestManager(t, manager.Config{LocalDeviceID: 1})
	m.HandleStartCall = acceptAll
	var historyReasons []call.EndedReason
	m.HandleAutoEndedCall = func(remote signaling.UserID, reason call.EndedReason,
		age time.Duration, isVideoCall bool) {
		historyReasons = append(historyReasons, reason)
	}

	c := m.StartOutgoingCall("bob", false)
	m.OnStartOutgoingCall("bob", signaling.CallID{Low: 5})
	m.OnCallState("bob", call.StateRinging)
	m.Flush()

	m.OnCallEnded("bob", signaling.CallID{Low: 99}, call.EndedReasonBusy, 0)
	m.Flush()
	require.Equal(t, []call.EndedReason{call.EndedReasonBusy}, historyReasons)
	require.Equal(t, call.StateRinging, c.State())
	require.Nil(t, c.EndedReason())
}

func TestCallEndedIncomingPreringFinalizedSilently(t *testing.T) {
	m, _ := newTestManager(t, manager.Config{LocalDeviceID: 1})
	observer := &callObserver{}
	historyCalls := 0
	m.HandleAutoEndedCall = func(remote signaling.UserID, reason call.EndedReason,
		age time.Duration, isVideoCall bool) {
		historyCalls++
	}
	m.HandleIncomingCall = func(c *call.Call) (*engine.CallSettings, error) {
		c.SetObserver(observer)
		return &engine.CallSettings{}, nil
	}

	callID := signaling.CallID{Low: 12}
	m.OnStartIncomingCall("alice", callID, false)
	m.Flush()
	c := m.CurrentCall()
	require.NotNil(t, c)

	m.OnCallEnded("alice", callID, call.EndedReasonRemoteHangup, 0)
	m.Flush()
	require.Equal(t, 1, historyCalls)
	require.Equal(t, call.StateEnded, c.State())
	require.NotNil(t, c.EndedReason())
	// The host never saw the call ringing, so no notification fired.
	require.Empty(t, observer.states())
}

func TestMessageForOtherDeviceDropped(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 7})

	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		Offer: &signaling.OfferMessage{
			CallID: signaling.CallID{Low: 1},
			Opaque: []byte{1},
		},
		DestinationDeviceID: 5,
	}, nil, nil)
	m.Flush()
	require.Empty(t, eng.Calls())
}

func TestOfferRequiresOpaquePayload(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})

	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		Offer: &signaling.OfferMessage{CallID: signaling.CallID{Low: 1}},
	}, nil, nil)
	m.Flush()
	require.Equal(t, 0, eng.CallsTo("ReceivedOffer"))
}

func TestProtocolErrorDropsWholeMessage(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	callID := signaling.CallID{Low: 1}

	// An offer without its payload poisons everything riding along.
	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		Offer: &signaling.OfferMessage{CallID: callID},
		Busy:  &signaling.BusyMessage{CallID: callID},
	}, nil, nil)
	m.Flush()
	require.Empty(t, eng.Calls())

	// Same for an answer.
	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		Answer: &signaling.AnswerMessage{CallID: callID},
		Hangup: &signaling.HangupMessage{CallID: callID, Type: signaling.HangupTypeNormal},
	}, nil, nil)
	m.Flush()
	require.Equal(t, 0, eng.CallsTo("ReceivedHangup"))

	// And for an ice list with nothing usable in it.
	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		IceCandidates: []*signaling.IceCandidateMessage{{CallID: callID}},
		Busy:          &signaling.BusyMessage{CallID: callID},
	}, nil, nil)
	m.Flush()
	require.Equal(t, 0, eng.CallsTo("ReceivedBusy"))
}

func TestIceCandidatesFiltered(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	callID := signaling.CallID{Low: 4}

	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		IceCandidates: []*signaling.IceCandidateMessage{
			{CallID: callID, Opaque: []byte{1}},
			{CallID: callID}, // missing payload, skipped
			{CallID: callID, Opaque: []byte{2}},
		},
	}, nil, nil)
	m.Flush()
	received, ok := eng.LastCall("ReceivedIceCandidates")
	require.True(t, ok)
	require.Equal(t, [][]byte{{1}, {2}}, received.Args[3])

	eng.Reset()
	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		IceCandidates: []*signaling.IceCandidateMessage{{CallID: callID}},
	}, nil, nil)
	m.Flush()
	require.Equal(t, 0, eng.CallsTo("ReceivedIceCandidates"))
}

func TestLegacyHangupForwarded(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})

	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		LegacyHangup: &signaling.HangupMessage{
			CallID: signaling.CallID{Low: 3},
			Type:   signaling.HangupTypeDeclined,
		},
	}, nil, nil)
	m.Flush()
	received, ok := eng.LastCall("ReceivedHangup")
	require.True(t, ok)
	require.Equal(t, signaling.HangupTypeDeclined, received.Args[3])
}

func TestOpaqueMessageRequiresSenderUUID(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	message := &signaling.CallingMessage{
		Opaque: &signaling.OpaqueMessage{Data: []byte("blob")},
	}

	m.ReceivedCallingMessage("alice", nil, 2, 0, message, nil, nil)
	m.Flush()
	require.Equal(t, 0, eng.CallsTo("ReceivedCallMessage"))

	m.ReceivedCallingMessage("alice", []byte("uuid"), 2, 0, message, nil, nil)
	m.Flush()
	require.Equal(t, 1, eng.CallsTo("ReceivedCallMessage"))
}

func TestOfferSeedsHistory(t *testing.T) {
	m, _ := newTestManager(t, manager.Config{LocalDeviceID: 1})
	var gotVideo bool
	m.HandleAutoEndedCall = func(remote signaling.UserID, reason call.EndedReason,
		age time.Duration, isVideoCall bool) {
		gotVideo = isVideoCall
	}

	callID := signaling.CallID{Low: 6}
	m.ReceivedCallingMessage("alice", nil, 2, 0, &signaling.CallingMessage{
		Offer: &signaling.OfferMessage{
			CallID: callID,
			Type:   signaling.OfferTypeVideoCall,
			Opaque: []byte{1},
		},
	}, nil, nil)
	m.Flush()

	// No session was ever surfaced, yet history knows it was video.
	m.OnCallEnded("alice", callID, call.EndedReasonReceivedOfferWhileActive, 0)
	m.Flush()
	require.True(t, gotVideo)
}

func TestSendSignalingStampsEnvelope(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	var mu sync.Mutex
	var sent []*signaling.CallingMessage
	m.HandleOutgoingSignaling = func(ctx context.Context, remote signaling.UserID,
		message *signaling.CallingMessage) error {
		mu.Lock()
		sent = append(sent, message)
		mu.Unlock()
		return nil
	}

	callID := signaling.CallID{Low: 8}
	m.OnSendOffer("alice", 2, callID, false, signaling.OfferTypeAudioCall, []byte{1})
	m.OnSendHangup("alice", 0, callID, true, signaling.HangupTypeNormal, 0)
	require.Eventually(t, func() bool {
		return eng.CallsTo("SignalingMessageSent") == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	var offer, hangup *signaling.CallingMessage
	for _, message := range sent {
		if message.Offer != nil {
			offer = message
		}
		if message.Hangup != nil {
			hangup = message
		}
	}
	require.NotNil(t, offer)
	require.True(t, offer.SupportsMultiRing)
	require.Equal(t, signaling.DeviceID(2), offer.DestinationDeviceID)
	// Broadcasts never carry a destination device.
	require.NotNil(t, hangup)
	require.Equal(t, signaling.DeviceID(0), hangup.DestinationDeviceID)
}

func TestSendSignalingFailureReported(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	m.HandleOutgoingSignaling = func(ctx context.Context, remote signaling.UserID,
		message *signaling.CallingMessage) error {
		return errors.New("transport down")
	}

	m.OnSendBusy("alice", 2, signaling.CallID{Low: 8}, false)
	require.Eventually(t, func() bool {
		return eng.CallsTo("SignalingMessageSendFailed") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestMissingTransportIsSendFailure(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})

	m.OnSendBusy("alice", 2, signaling.CallID{Low: 8}, false)
	m.Flush()
	require.Equal(t, 1, eng.CallsTo("SignalingMessageSendFailed"))
}

func TestGroupCallRoutingAndTeardown(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1, AudioLevelsInterval: 200 * time.Millisecond})

	g, err := m.GetGroupCall([]byte("group"), "sfu.example.org", nil, groupObserver{})
	require.NoError(t, err)
	created, ok := eng.LastCall("CreateGroupCallClient")
	require.True(t, ok)
	require.Equal(t, g.ClientID(), created.Args[0])
	require.Equal(t, 200*time.Millisecond, created.Args[4])

	m.OnConnectionStateChanged(g.ClientID(), groupcall.ConnectionStateConnected)
	m.Flush()
	require.Equal(t, groupcall.ConnectionStateConnected, g.LocalDeviceState().ConnectionState)

	m.OnGroupCallEnded(g.ClientID(), groupcall.EndReasonDeviceExplicitlyDisconnected)
	m.Flush()
	require.Equal(t, 1, eng.CallsTo("DeleteGroupCallClient"))

	// Events for a released client are dropped without panicking.
	m.OnConnectionStateChanged(g.ClientID(), groupcall.ConnectionStateReconnecting)
	m.Flush()
	require.Equal(t, groupcall.ConnectionStateConnected, g.LocalDeviceState().ConnectionState)
}

func TestGroupCallClientCreationFailure(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	eng.FailWith("CreateGroupCallClient", errors.New("out of clients"))

	g, err := m.GetGroupCall([]byte("group"), "sfu.example.org", nil, groupObserver{})
	require.Error(t, err)
	require.Nil(t, g)
}

func TestPeekResolvesFuture(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})

	ch := m.PeekGroupCall("sfu.example.org", []byte("proof"), nil)
	m.Flush()
	peeked, ok := eng.LastCall("PeekGroupCall")
	require.True(t, ok)
	requestID := peeked.Args[0].(uint32)

	m.OnPeekResponse(requestID, &groupcall.PeekInfo{EraID: "era", DeviceCount: 2})
	select {
	case info := <-ch:
		require.Equal(t, "era", info.EraID)
		require.Equal(t, uint32(2), info.DeviceCount)
	case <-time.After(time.Second):
		t.Fatal("peek response never resolved")
	}

	// An unknown request id is logged, not fatal.
	m.OnPeekResponse(requestID, &groupcall.PeekInfo{})
	m.Flush()
}

func TestHTTPRequestWithoutHandlerFails(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})

	m.OnSendHTTPRequest(3, "https://sfu.example.org", engine.HTTPMethodGet, nil, nil)
	m.Flush()
	failed, ok := eng.LastCall("HTTPRequestFailed")
	require.True(t, ok)
	require.Equal(t, uint32(3), failed.Args[0])
}

func TestConvenienceActionsMatchByCallID(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	m.HandleStartCall = acceptAll

	m.StartOutgoingCall("alice", false)
	m.OnStartOutgoingCall("alice", signaling.CallID{Low: 5})
	m.Flush()
	eng.Reset()

	m.Accept(signaling.CallID{Low: 99}, false)
	require.Equal(t, 0, eng.CallsTo("Accept"))
	m.Accept(signaling.CallID{Low: 5}, false)
	require.Equal(t, 1, eng.CallsTo("Accept"))

	m.SetOutgoingAudio(signaling.CallID{Low: 5}, false)
	m.Flush()
	require.False(t, m.CurrentCall().OutgoingAudioEnabled())
}

func TestAcceptEnablesOutgoingMedia(t *testing.T) {
	m, eng := newTestManager(t, manager.Config{LocalDeviceID: 1})
	m.HandleIncomingCall = acceptAll

	callID := signaling.CallID{Low: 21}
	m.OnStartIncomingCall("alice", callID, true)
	m.Flush()
	c := m.CurrentCall()
	require.NotNil(t, c)
	require.False(t, c.OutgoingAudioEnabled())

	m.Accept(callID, true)
	require.Equal(t, 1, eng.CallsTo("Accept"))
	require.True(t, c.OutgoingAudioEnabled())
	require.True(t, c.OutgoingVideoEnabled())

	// An audio answer leaves the camera off.
	m2, _ := newTestManager(t, manager.Config{LocalDeviceID: 1})
	m2.HandleIncomingCall = acceptAll
	m2.OnStartIncomingCall("alice", callID, true)
	m2.Flush()
	m2.Accept(callID, false)
	c2 := m2.CurrentCall()
	require.NotNil(t, c2)
	require.True(t, c2.OutgoingAudioEnabled())
	require.False(t, c2.OutgoingVideoEnabled())
}
