package options

import (
	"sync"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

// Compression negotiates one of the boolean framing options: Protocol-Field-
// Compression or Address-and-Control-Field-Compression. Both carry no data.
type Compression struct {
	*ppp.BaseOptionHandler

	mu       sync.Mutex
	request  bool
	rejected bool
	local    bool
	peer     bool
}

// NewPFC creates a Protocol-Field-Compression handler.
func NewPFC(request bool) *Compression {
	return &Compression{
		BaseOptionHandler: ppp.NewBaseOptionHandler(ppp.OptionPFC, "PFC"),
		request:           request,
	}
}

// NewACFC creates an Address-and-Control-Field-Compression handler.
func NewACFC(request bool) *Compression {
	return &Compression{
		BaseOptionHandler: ppp.NewBaseOptionHandler(ppp.OptionACFC, "ACFC"),
		request:           request,
	}
}

// Local reports whether the peer acknowledged our request, so it may
// compress frames it sends us.
func (h *Compression) Local() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.local
}

// Peer reports whether we acknowledged the peer's request, so we may
// compress frames we send.
func (h *Compression) Peer() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer
}

func (h *Compression) AddToRequest(req *ppp.ConfigurePacket) error {
	h.mu.Lock()
	add := h.request && !h.rejected
	h.mu.Unlock()

	if !add {
		return nil
	}
	return req.AddItem(ppp.ConfigureItem{Type: h.Type()})
}

func (h *Compression) ParseConfigureRequest(req *ppp.ConfigurePacket, index int, nak, reject *ppp.ConfigurePacket) error {
	item, err := itemAt(req, index)
	if err != nil {
		return err
	}
	if len(item.Data) != 0 {
		return malformed(h.Name(), len(item.Data))
	}
	return nil
}

func (h *Compression) SendingAck(ack *ppp.ConfigurePacket) error {
	_, ok := ack.ItemWithType(h.Type())

	h.mu.Lock()
	h.peer = ok
	h.mu.Unlock()
	return nil
}

func (h *Compression) ParseReject(reject *ppp.ConfigurePacket) error {
	if _, ok := reject.ItemWithType(h.Type()); !ok {
		return nil
	}

	h.mu.Lock()
	h.rejected = true
	h.mu.Unlock()
	return nil
}

func (h *Compression) ParseAck(ack *ppp.ConfigurePacket) error {
	_, ok := ack.ItemWithType(h.Type())

	h.mu.Lock()
	h.local = ok
	h.mu.Unlock()
	return nil
}

func (h *Compression) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = false
	h.local = false
	h.peer = false
}
