package options

import (
	"encoding/binary"
	"sync"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

// MinMRU is the smallest MRU accepted from a peer.
const MinMRU = 64

// MRU negotiates the Maximum-Receive-Unit option.
//
// The local MRU is what we ask the peer to send us; it is only requested when
// it differs from the default. The peer MRU is what the peer accepts from us
// and is reported through the callback once we acknowledge it.
type MRU struct {
	*ppp.BaseOptionHandler

	mu        sync.Mutex
	local     uint16
	requested uint16
	max       uint16
	peer      uint16
	onPeerMRU func(mru int)
}

// NewMRU creates an MRU handler requesting local. Peer values above maxMRU are
// Nak'ed down to maxMRU. onPeerMRU may be nil.
func NewMRU(local, maxMRU uint16, onPeerMRU func(mru int)) *MRU {
	if maxMRU < MinMRU {
		maxMRU = ppp.DefaultMRU
	}
	return &MRU{
		BaseOptionHandler: ppp.NewBaseOptionHandler(ppp.OptionMRU, "MRU"),
		local:             local,
		requested:         local,
		max:               maxMRU,
		peer:              ppp.DefaultMRU,
		onPeerMRU:         onPeerMRU,
	}
}

// LocalMRU returns the MRU currently requested from the peer.
func (h *MRU) LocalMRU() uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requested
}

// PeerMRU returns the acknowledged peer MRU.
func (h *MRU) PeerMRU() uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer
}

func (h *MRU) AddToRequest(req *ppp.ConfigurePacket) error {
	h.mu.Lock()
	requested := h.requested
	h.mu.Unlock()

	if requested == ppp.DefaultMRU {
		return nil
	}
	return req.AddItem(mruItem(requested))
}

func (h *MRU) ParseConfigureRequest(req *ppp.ConfigurePacket, index int, nak, reject *ppp.ConfigurePacket) error {
	item, err := itemAt(req, index)
	if err != nil {
		return err
	}
	if len(item.Data) != 2 {
		return malformed(h.Name(), len(item.Data))
	}

	mru := binary.BigEndian.Uint16(item.Data)
	switch {
	case mru < MinMRU:
		return nak.AddItem(mruItem(MinMRU))
	case mru > h.max:
		return nak.AddItem(mruItem(h.max))
	}
	return nil
}

// SendingAck records the peer MRU we are about to acknowledge. A request
// without the option means the peer uses the default.
func (h *MRU) SendingAck(ack *ppp.ConfigurePacket) error {
	mru := uint16(ppp.DefaultMRU)
	if item, ok := ack.ItemWithType(ppp.OptionMRU); ok && len(item.Data) == 2 {
		mru = binary.BigEndian.Uint16(item.Data)
	}

	h.mu.Lock()
	h.peer = mru
	cb := h.onPeerMRU
	h.mu.Unlock()

	if cb != nil {
		cb(int(mru))
	}
	return nil
}

func (h *MRU) ParseNak(nak *ppp.ConfigurePacket) error {
	item, ok := nak.ItemWithType(ppp.OptionMRU)
	if !ok {
		return nil
	}
	if len(item.Data) != 2 {
		return malformed(h.Name(), len(item.Data))
	}

	mru := binary.BigEndian.Uint16(item.Data)
	if mru < MinMRU || mru > h.max {
		return nil
	}

	h.mu.Lock()
	h.requested = mru
	h.mu.Unlock()
	return nil
}

func (h *MRU) ParseReject(reject *ppp.ConfigurePacket) error {
	if _, ok := reject.ItemWithType(ppp.OptionMRU); !ok {
		return nil
	}

	h.mu.Lock()
	h.requested = ppp.DefaultMRU
	h.mu.Unlock()
	return nil
}

func (h *MRU) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requested = h.local
	h.peer = ppp.DefaultMRU
}

func mruItem(mru uint16) ppp.ConfigureItem {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, mru)
	return ppp.ConfigureItem{Type: ppp.OptionMRU, Data: data}
}
