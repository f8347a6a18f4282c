// Package groupcall implements the state machine for a single group
// call session, including remote roster reconciliation.
package groupcall

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/voicelink/go-call-manager/pkg/media"
	"github.com/voicelink/go-call-manager/pkg/utils"
)

// GroupCall is one group call session. Connection and join state are
// driven exclusively by engine events; the UI-facing methods are
// one-way requests that take effect when the engine echoes them back.
type GroupCall struct {
	mu       sync.Mutex
	engine   Engine
	observer Observer

	clientID uint32
	groupID  []byte
	sfuURL   string

	local LocalDeviceState
	// Nil until the engine pushes the first roster.
	remotes  []*RemoteDeviceState
	peekInfo *PeekInfo

	log *logrus.Entry
}

// New wraps an engine-side group call client the manager has already
// created under clientID.
func New(engine Engine, clientID uint32, groupID []byte, sfuURL string, observer Observer) *GroupCall {
	return &GroupCall{
		engine:   engine,
		observer: observer,
		clientID: clientID,
		groupID:  groupID,
		sfuURL:   sfuURL,
		local:    newLocalDeviceState(),
		log:      utils.NewLogrusLogger(utils.DefaultLogLevel, "GroupCall"),
	}
}

func (g *GroupCall) ClientID() uint32 {
	return g.clientID
}

func (g *GroupCall) GroupID() []byte {
	return g.groupID
}

func (g *GroupCall) SfuURL() string {
	return g.sfuURL
}

func (g *GroupCall) Connect() error {
	return g.engine.Connect(g.clientID)
}

func (g *GroupCall) Join() error {
	return g.engine.Join(g.clientID)
}

func (g *GroupCall) Leave() error {
	return g.engine.Leave(g.clientID)
}

func (g *GroupCall) Disconnect() error {
	return g.engine.Disconnect(g.clientID)
}

// LocalDeviceState returns a copy of the local device state.
func (g *GroupCall) LocalDeviceState() LocalDeviceState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.local
}

// RemoteDeviceStates returns the current roster, nil before the engine
// has pushed one.
func (g *GroupCall) RemoteDeviceStates() []*RemoteDeviceState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remotes
}

// PeekInfo returns the last known peek snapshot, nil before one was
// received. Available without ever joining.
func (g *GroupCall) PeekInfo() *PeekInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peekInfo
}

func (g *GroupCall) SetOutgoingAudioMuted(muted bool) {
	g.mu.Lock()
	g.local.AudioMuted = muted
	g.mu.Unlock()
	if err := g.engine.SetOutgoingAudioMuted(g.clientID, muted); err != nil {
		g.log.Errorf("set outgoing audio muted: %v", err)
	}
	g.observer.OnLocalDeviceStateChanged(g)
}

func (g *GroupCall) SetOutgoingVideoMuted(muted bool) {
	g.mu.Lock()
	g.local.VideoMuted = muted
	g.mu.Unlock()
	if err := g.engine.SetOutgoingVideoMuted(g.clientID, muted); err != nil {
		g.log.Errorf("set outgoing video muted: %v", err)
	}
	g.observer.OnLocalDeviceStateChanged(g)
}

func (g *GroupCall) SetPresenting(presenting bool) {
	g.mu.Lock()
	g.local.Presenting = presenting
	g.mu.Unlock()
	if err := g.engine.SetPresenting(g.clientID, presenting); err != nil {
		g.log.Errorf("set presenting: %v", err)
	}
	g.observer.OnLocalDeviceStateChanged(g)
}

func (g *GroupCall) SetOutgoingVideoIsScreenShare(isScreenShare bool) {
	g.mu.Lock()
	g.local.SharingScreen = isScreenShare
	g.mu.Unlock()
	if err := g.engine.SetOutgoingGroupVideoIsScreenShare(g.clientID, isScreenShare); err != nil {
		g.log.Errorf("set screen share: %v", err)
	}
	g.observer.OnLocalDeviceStateChanged(g)
}

// SendVideoFrame pushes one captured frame into the group call.
func (g *GroupCall) SendVideoFrame(width, height int, format media.VideoPixelFormat, buffer []byte) {
	if err := g.engine.SendGroupCallVideoFrame(g.clientID, width, height, format, buffer); err != nil {
		g.log.Debugf("send video frame: %v", err)
	}
}

// RingAll rings every member of the group.
func (g *GroupCall) RingAll() error {
	return g.engine.GroupRing(g.clientID, nil)
}

func (g *GroupCall) ResendMediaKeys() error {
	return g.engine.ResendMediaKeys(g.clientID)
}

func (g *GroupCall) SetBandwidthMode(mode media.BandwidthMode) error {
	return g.engine.SetBandwidthMode(g.clientID, mode)
}

func (g *GroupCall) RequestVideo(resolutions []VideoRequest, activeSpeakerHeight uint16) error {
	return g.engine.RequestVideo(g.clientID, resolutions, activeSpeakerHeight)
}

func (g *GroupCall) SetGroupMembers(members []GroupMemberInfo) error {
	return g.engine.SetGroupMembers(g.clientID, members)
}

func (g *GroupCall) SetMembershipProof(proof []byte) error {
	return g.engine.SetMembershipProof(g.clientID, proof)
}

// RequestMembershipProof relays the engine's request to the observer.
func (g *GroupCall) RequestMembershipProof() {
	g.observer.RequestMembershipProof(g)
}

// RequestGroupMembers relays the engine's request to the observer.
func (g *GroupCall) RequestGroupMembers() {
	g.observer.RequestGroupMembers(g)
}

// HandleConnectionStateChanged applies an engine echo.
func (g *GroupCall) HandleConnectionStateChanged(connectionState ConnectionState) {
	g.mu.Lock()
	g.local.ConnectionState = connectionState
	g.mu.Unlock()
	g.observer.OnLocalDeviceStateChanged(g)
}

// HandleJoinStateChanged applies an engine echo. A zero demuxID means
// the engine did not report one; the last known demux id is retained
// so it stays inspectable after leaving.
func (g *GroupCall) HandleJoinStateChanged(joinState JoinState, demuxID uint32) {
	g.mu.Lock()
	g.local.JoinState = joinState
	if demuxID != 0 {
		g.local.DemuxID = demuxID
	}
	g.mu.Unlock()
	g.observer.OnLocalDeviceStateChanged(g)
}

func (g *GroupCall) HandleNetworkRouteChanged(localAdapterType media.NetworkAdapterType) {
	g.mu.Lock()
	g.local.NetworkRoute.LocalAdapterType = localAdapterType
	g.mu.Unlock()
	g.observer.OnLocalDeviceStateChanged(g)
}

// HandleAudioLevels patches levels into the current roster in place.
// It fires only the audio-levels notification, not a roster change.
func (g *GroupCall) HandleAudioLevels(captured media.RawAudioLevel, received []ReceivedAudioLevel) {
	g.mu.Lock()
	g.local.AudioLevel = media.NormalizeAudioLevel(captured)
	for _, r := range received {
		for _, remote := range g.remotes {
			if remote.DemuxID == r.DemuxID {
				remote.AudioLevel = media.NormalizeAudioLevel(r.Level)
			}
		}
	}
	g.mu.Unlock()
	g.observer.OnAudioLevels(g)
}

// HandleRemoteDevicesChanged replaces the roster wholesale, carrying
// the cached video aspect ratio forward by demux id first; the engine
// does not track it.
func (g *GroupCall) HandleRemoteDevicesChanged(remotes []*RemoteDeviceState) {
	g.mu.Lock()
	for _, remote := range remotes {
		if old := findByDemuxID(g.remotes, remote.DemuxID); old != nil {
			remote.VideoAspectRatio = old.VideoAspectRatio
		}
	}
	g.remotes = remotes
	g.mu.Unlock()
	g.observer.OnRemoteDeviceStatesChanged(g)
}

// HandlePeekChanged overwrites the last snapshot, independent of join
// or connection state.
func (g *GroupCall) HandlePeekChanged(info *PeekInfo) {
	g.mu.Lock()
	g.peekInfo = info
	g.mu.Unlock()
	g.observer.OnPeekChanged(g)
}

// HandleEnded notifies the observer first, then releases the engine
// side of the session.
func (g *GroupCall) HandleEnded(reason EndReason) {
	g.observer.OnEnded(g, reason)
	if err := g.engine.DeleteGroupCallClient(g.clientID); err != nil {
		g.log.Errorf("delete group call client: %v", err)
	}
}

// SetRemoteAspectRatio caches the aspect ratio learned from a decoded
// frame. The roster observer fires only when the ratio actually
// changed, to avoid notification storms at frame rate.
func (g *GroupCall) SetRemoteAspectRatio(remoteDemuxID uint32, aspectRatio float32) {
	g.mu.Lock()
	remote := findByDemuxID(g.remotes, remoteDemuxID)
	changed := remote != nil && remote.VideoAspectRatio != aspectRatio
	if changed {
		remote.VideoAspectRatio = aspectRatio
	}
	g.mu.Unlock()
	if changed {
		g.observer.OnRemoteDeviceStatesChanged(g)
	}
}

func findByDemuxID(remotes []*RemoteDeviceState, demuxID uint32) *RemoteDeviceState {
	for _, remote := range remotes {
		if remote.DemuxID == demuxID {
			return remote
		}
	}
	return nil
}
