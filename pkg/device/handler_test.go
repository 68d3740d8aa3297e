package device

import (
	"sync"
)

// recordingHandler records device notifications.
type recordingHandler struct {
	mu     sync.Mutex
	events []string
	frames [][]byte
	refuse bool
}

func (h *recordingHandler) record(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHandler) TLSNotify() bool {
	h.record("tls")
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.refuse
}

func (h *recordingHandler) TLFNotify() bool {
	h.record("tlf")
	return true
}

func (h *recordingHandler) UpEvent() { h.record("up") }

func (h *recordingHandler) UpFailedEvent() { h.record("up-failed") }

func (h *recordingHandler) DownEvent() { h.record("down") }

func (h *recordingHandler) ReceiveFrame(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame)
	return nil
}

func (h *recordingHandler) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHandler) Frames() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.frames...)
}
