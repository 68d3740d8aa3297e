package options

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

// MagicNumber negotiates the Magic-Number option used for loopback
// detection. It also stamps Echo and Discard packets.
type MagicNumber struct {
	*ppp.BaseOptionHandler

	mu       sync.Mutex
	local    uint32
	peer     uint32
	rejected bool
	random   func() (uint32, error)
}

// NewMagicNumber creates a magic number handler backed by crypto/rand.
func NewMagicNumber() *MagicNumber {
	return newMagicNumber(generateMagicNumber)
}

func newMagicNumber(random func() (uint32, error)) *MagicNumber {
	return &MagicNumber{
		BaseOptionHandler: ppp.NewBaseOptionHandler(ppp.OptionMagicNumber, "Magic-Number"),
		random:            random,
	}
}

// LocalMagicNumber returns our magic number, or zero when the peer rejected
// the option.
func (h *MagicNumber) LocalMagicNumber() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rejected {
		return 0
	}
	return h.local
}

// PeerMagicNumber returns the magic number the peer requested.
func (h *MagicNumber) PeerMagicNumber() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer
}

func (h *MagicNumber) AddToRequest(req *ppp.ConfigurePacket) error {
	h.mu.Lock()
	if h.rejected {
		h.mu.Unlock()
		return nil
	}
	if h.local == 0 {
		if err := h.regenerateLocked(); err != nil {
			h.mu.Unlock()
			return err
		}
	}
	local := h.local
	h.mu.Unlock()

	return req.AddItem(magicItem(local))
}

func (h *MagicNumber) ParseConfigureRequest(req *ppp.ConfigurePacket, index int, nak, reject *ppp.ConfigurePacket) error {
	item, err := itemAt(req, index)
	if err != nil {
		return err
	}
	if len(item.Data) != 4 {
		return malformed(h.Name(), len(item.Data))
	}

	magic := binary.BigEndian.Uint32(item.Data)

	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case magic == 0:
	case magic == h.local && !h.rejected:
		// Either the link is looped back or both ends picked the same
		// number. Pick a new one for ourselves and suggest another to the peer.
		if err := h.regenerateLocked(); err != nil {
			return err
		}
	default:
		h.peer = magic
		return nil
	}

	suggestion, err := h.suggestLocked()
	if err != nil {
		return err
	}
	return nak.AddItem(magicItem(suggestion))
}

// ParseNak picks a new local magic number when the peer Nak'ed ours.
func (h *MagicNumber) ParseNak(nak *ppp.ConfigurePacket) error {
	if _, ok := nak.ItemWithType(ppp.OptionMagicNumber); !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.regenerateLocked()
}

func (h *MagicNumber) ParseReject(reject *ppp.ConfigurePacket) error {
	if _, ok := reject.ItemWithType(ppp.OptionMagicNumber); !ok {
		return nil
	}

	h.mu.Lock()
	h.rejected = true
	h.mu.Unlock()
	return nil
}

func (h *MagicNumber) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = false
	h.peer = 0
}

func (h *MagicNumber) regenerateLocked() error {
	for {
		magic, err := h.random()
		if err != nil {
			return err
		}
		if magic != 0 && magic != h.local && magic != h.peer {
			h.local = magic
			return nil
		}
	}
}

func (h *MagicNumber) suggestLocked() (uint32, error) {
	for {
		magic, err := h.random()
		if err != nil {
			return 0, err
		}
		if magic != 0 && magic != h.local {
			return magic, nil
		}
	}
}

func magicItem(magic uint32) ppp.ConfigureItem {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, magic)
	return ppp.ConfigureItem{Type: ppp.OptionMagicNumber, Data: data}
}

// generateMagicNumber generates a random 32-bit magic number
func generateMagicNumber() (uint32, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}
