package options

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

// CHAPAlgorithmMD5 is the CHAP algorithm from RFC 1994.
const CHAPAlgorithmMD5 = 5

// AuthProtocol negotiates the Authentication-Protocol option.
//
// As authenticator (required != 0) it asks the peer to authenticate with the
// required protocol, accepting a Nak towards any protocol in accept. As
// authenticatee it acknowledges a peer request naming a protocol in accept and
// Naks anything else with its first preference. With nothing in accept the
// peer's request is rejected.
type AuthProtocol struct {
	*ppp.BaseOptionHandler

	mu       sync.Mutex
	required uint16
	accept   []uint16
	local    uint16
	peer     uint16
	acked    bool
}

// NewAuthProtocol creates an authentication protocol handler.
func NewAuthProtocol(required uint16, accept ...uint16) *AuthProtocol {
	return &AuthProtocol{
		BaseOptionHandler: ppp.NewBaseOptionHandler(ppp.OptionAuthProtocol, "Authentication-Protocol"),
		required:          required,
		accept:            accept,
		local:             required,
	}
}

// LocalProtocol returns the protocol the peer agreed to authenticate with, or
// zero before the request was acknowledged.
func (h *AuthProtocol) LocalProtocol() uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.acked {
		return 0
	}
	return h.local
}

// PeerProtocol returns the protocol the peer asked us to authenticate with.
func (h *AuthProtocol) PeerProtocol() uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer
}

func (h *AuthProtocol) AddToRequest(req *ppp.ConfigurePacket) error {
	h.mu.Lock()
	local := h.local
	h.mu.Unlock()

	if local == 0 {
		return nil
	}
	return req.AddItem(authItem(local))
}

func (h *AuthProtocol) ParseConfigureRequest(req *ppp.ConfigurePacket, index int, nak, reject *ppp.ConfigurePacket) error {
	item, err := itemAt(req, index)
	if err != nil {
		return err
	}
	if len(item.Data) < 2 {
		return malformed(h.Name(), len(item.Data))
	}
	if len(h.accept) == 0 {
		return ppp.ErrUnhandled
	}

	protocol := binary.BigEndian.Uint16(item.Data)
	if supported(protocol, item.Data[2:]) && slices.Contains(h.accept, protocol) {
		h.mu.Lock()
		h.peer = protocol
		h.mu.Unlock()
		return nil
	}
	return nak.AddItem(authItem(h.accept[0]))
}

func (h *AuthProtocol) ParseNak(nak *ppp.ConfigurePacket) error {
	item, ok := nak.ItemWithType(ppp.OptionAuthProtocol)
	if !ok {
		return nil
	}
	if len(item.Data) < 2 {
		return malformed(h.Name(), len(item.Data))
	}

	protocol := binary.BigEndian.Uint16(item.Data)
	if !slices.Contains(h.accept, protocol) || !supported(protocol, item.Data[2:]) {
		return nil
	}

	h.mu.Lock()
	h.local = protocol
	h.mu.Unlock()
	return nil
}

// ParseReject fails when we require authentication: a peer that refuses to
// authenticate cannot be let in.
func (h *AuthProtocol) ParseReject(reject *ppp.ConfigurePacket) error {
	if _, ok := reject.ItemWithType(ppp.OptionAuthProtocol); !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.required != 0 {
		return fmt.Errorf("%w: 0x%04x", ErrAuthRejected, h.local)
	}
	h.local = 0
	return nil
}

func (h *AuthProtocol) ParseAck(ack *ppp.ConfigurePacket) error {
	_, ok := ack.ItemWithType(ppp.OptionAuthProtocol)

	h.mu.Lock()
	h.acked = ok
	h.mu.Unlock()
	return nil
}

func (h *AuthProtocol) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.local = h.required
	h.peer = 0
	h.acked = false
}

// supported reports whether we can run protocol with the given extra data.
func supported(protocol uint16, data []byte) bool {
	switch protocol {
	case ppp.ProtocolPAP:
		return len(data) == 0
	case ppp.ProtocolCHAP:
		return len(data) == 1 && data[0] == CHAPAlgorithmMD5
	}
	return false
}

func authItem(protocol uint16) ppp.ConfigureItem {
	data := make([]byte, 2, 3)
	binary.BigEndian.PutUint16(data, protocol)
	if protocol == ppp.ProtocolCHAP {
		data = append(data, CHAPAlgorithmMD5)
	}
	return ppp.ConfigureItem{Type: ppp.OptionAuthProtocol, Data: data}
}
