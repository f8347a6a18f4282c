package mock

import (
	"sync"

	"github.com/voicelink/go-call-manager/pkg/call"
)

// Capturer records the commands issued by a call to its video capturer.
type Capturer struct {
	mu  sync.Mutex
	log []string
}

var _ call.VideoCapturer = (*Capturer)(nil)

func NewCapturer() *Capturer { return &Capturer{} }

func (c *Capturer) StartPreview() {
	c.append("StartPreview")
}

func (c *Capturer) StartAndSend(target *call.Call) {
	c.append("StartAndSend")
}

func (c *Capturer) Stop() {
	c.append("Stop")
}

// Log returns a copy of the recorded commands in order.
func (c *Capturer) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.log))
	copy(out, c.log)
	return out
}

func (c *Capturer) append(cmd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, cmd)
}

// Renderer records enable/disable commands issued by a call.
type Renderer struct {
	mu  sync.Mutex
	log []string
}

var _ call.VideoRenderer = (*Renderer)(nil)

func NewRenderer() *Renderer { return &Renderer{} }

func (r *Renderer) Enable(target *call.Call) {
	r.append("Enable")
}

func (r *Renderer) Disable() {
	r.append("Disable")
}

func (r *Renderer) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.log))
	copy(out, r.log)
	return out
}

func (r *Renderer) append(cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, cmd)
}
