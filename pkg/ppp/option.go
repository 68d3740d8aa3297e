package ppp

import "sync/atomic"

// OptionHandler negotiates one LCP configuration option.
//
// ParseConfigureRequest is called for the item at index in a peer's request.
// It may append items to nak or reject. Returning ErrUnhandled rejects the
// item; any other error means the request is corrupt and the link is closed.
// ParseNak, ParseReject, ParseAck and SendingAck see every received or sent
// packet and pick out their own items. An error closes the link.
type OptionHandler interface {
	Type() uint8
	Name() string
	IsEnabled() bool

	AddToRequest(req *ConfigurePacket) error
	ParseConfigureRequest(req *ConfigurePacket, index int, nak, reject *ConfigurePacket) error
	ParseNak(nak *ConfigurePacket) error
	ParseReject(reject *ConfigurePacket) error
	ParseAck(ack *ConfigurePacket) error
	SendingAck(ack *ConfigurePacket) error

	// Reset restores the handler to its pre-negotiation values.
	Reset()
}

// NakAppender is implemented by handlers that suggest options the peer left
// out of its request. It is consulted once per request while Naks are still
// allowed.
type NakAppender interface {
	AppendToNak(req, nak *ConfigurePacket) error
}

// MagicNumberProvider is implemented by the handler owning the local magic
// number. Echo and Discard packets carry it.
type MagicNumberProvider interface {
	LocalMagicNumber() uint32
}

// BaseOptionHandler provides default behaviour for an OptionHandler: requests
// nothing, rejects every peer item and ignores Ack/Nak/Reject.
type BaseOptionHandler struct {
	optType  uint8
	name     string
	disabled atomic.Bool
}

// NewBaseOptionHandler creates an enabled base handler.
func NewBaseOptionHandler(optType uint8, name string) *BaseOptionHandler {
	return &BaseOptionHandler{optType: optType, name: name}
}

func (h *BaseOptionHandler) Type() uint8 { return h.optType }

func (h *BaseOptionHandler) Name() string { return h.name }

func (h *BaseOptionHandler) IsEnabled() bool { return !h.disabled.Load() }

// SetEnabled enables or disables the handler. Items of a disabled handler
// are rejected.
func (h *BaseOptionHandler) SetEnabled(enabled bool) { h.disabled.Store(!enabled) }

func (h *BaseOptionHandler) AddToRequest(*ConfigurePacket) error { return nil }

func (h *BaseOptionHandler) ParseConfigureRequest(*ConfigurePacket, int, *ConfigurePacket, *ConfigurePacket) error {
	return ErrUnhandled
}

func (h *BaseOptionHandler) ParseNak(*ConfigurePacket) error { return nil }

func (h *BaseOptionHandler) ParseReject(*ConfigurePacket) error { return nil }

func (h *BaseOptionHandler) ParseAck(*ConfigurePacket) error { return nil }

func (h *BaseOptionHandler) SendingAck(*ConfigurePacket) error { return nil }

func (h *BaseOptionHandler) Reset() {}
