package groupcall

// VideoFrameSource pulls decoded video frames for one remote device of
// a group call.
type VideoFrameSource struct {
	engine        Engine
	groupCall     *GroupCall
	remoteDemuxID uint32
}

// VideoSource returns a frame source for the given remote device.
func (g *GroupCall) VideoSource(remoteDemuxID uint32) *VideoFrameSource {
	return &VideoFrameSource{
		engine:        g.engine,
		groupCall:     g,
		remoteDemuxID: remoteDemuxID,
	}
}

// ReceiveVideoFrame asks the engine to decode and scale the next
// available frame into buffer, returning the actual dimensions, or
// ok=false when no frame is ready. A received frame also refreshes the
// owning session's cached aspect ratio for this device.
func (s *VideoFrameSource) ReceiveVideoFrame(buffer []byte, maxWidth, maxHeight int) (int, int, bool) {
	width, height, ok := s.engine.ReceiveGroupCallVideoFrame(
		s.groupCall.ClientID(), s.remoteDemuxID, buffer, maxWidth, maxHeight)
	if ok && height > 0 {
		s.groupCall.SetRemoteAspectRatio(s.remoteDemuxID, float32(width)/float32(height))
	}
	return width, height, ok
}
