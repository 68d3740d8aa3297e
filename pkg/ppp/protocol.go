// Package ppp implements the PPP Link Control Protocol option-negotiation
// automaton described in RFC 1661.
package ppp

import (
	"encoding/binary"
	"fmt"
)

// PPP protocol numbers
const (
	ProtocolLCP    uint16 = 0xC021 // Link Control Protocol
	ProtocolPAP    uint16 = 0xC023 // Password Authentication Protocol
	ProtocolCHAP   uint16 = 0xC223 // Challenge Handshake Auth Protocol
	ProtocolIPCP   uint16 = 0x8021 // IP Control Protocol
	ProtocolIPv6CP uint16 = 0x8057 // IPv6 Control Protocol
	ProtocolIP     uint16 = 0x0021 // Internet Protocol
	ProtocolIPv6   uint16 = 0x0057 // IPv6
)

// Code is an LCP packet code.
type Code uint8

// LCP codes
const (
	CodeConfigureRequest Code = 1
	CodeConfigureAck     Code = 2
	CodeConfigureNak     Code = 3
	CodeConfigureReject  Code = 4
	CodeTerminateRequest Code = 5
	CodeTerminateAck     Code = 6
	CodeCodeReject       Code = 7
	CodeProtocolReject   Code = 8
	CodeEchoRequest      Code = 9
	CodeEchoReply        Code = 10
	CodeDiscardRequest   Code = 11
)

// MinCode and MaxCode bound the codes this implementation understands.
const (
	MinCode = CodeConfigureRequest
	MaxCode = CodeDiscardRequest
)

func (c Code) String() string {
	switch c {
	case CodeConfigureRequest:
		return "Configure-Request"
	case CodeConfigureAck:
		return "Configure-Ack"
	case CodeConfigureNak:
		return "Configure-Nak"
	case CodeConfigureReject:
		return "Configure-Reject"
	case CodeTerminateRequest:
		return "Terminate-Request"
	case CodeTerminateAck:
		return "Terminate-Ack"
	case CodeCodeReject:
		return "Code-Reject"
	case CodeProtocolReject:
		return "Protocol-Reject"
	case CodeEchoRequest:
		return "Echo-Request"
	case CodeEchoReply:
		return "Echo-Reply"
	case CodeDiscardRequest:
		return "Discard-Request"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// IsConfigure reports whether c is one of the four Configure-* codes.
func (c Code) IsConfigure() bool {
	return c >= CodeConfigureRequest && c <= CodeConfigureReject
}

// LCP option types
const (
	OptionMRU          uint8 = 1 // Maximum Receive Unit
	OptionAuthProtocol uint8 = 3 // Authentication Protocol
	OptionMagicNumber  uint8 = 5 // Magic Number
	OptionPFC          uint8 = 7 // Protocol Field Compression
	OptionACFC         uint8 = 8 // Address/Control Field Compression
)

const (
	// HeaderLength is the size of the code, identifier and length fields.
	HeaderLength = 4

	// DefaultMRU is the MRU assumed until one is negotiated.
	DefaultMRU = 1500

	// MaxPacketSize bounds any LCP packet we build.
	MaxPacketSize = DefaultMRU
)

// Packet is a generic LCP packet.
type Packet struct {
	Code       Code
	Identifier uint8
	Data       []byte
}

// Length returns the wire length of the packet.
func (p *Packet) Length() int {
	return HeaderLength + len(p.Data)
}

// ParsePacket parses an LCP packet. Octets past the declared length are
// treated as padding and dropped.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("%w: %d bytes is too short for LCP header", ErrMalformedPacket, len(data))
	}

	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < HeaderLength {
		return nil, fmt.Errorf("%w: declared length %d below header size", ErrMalformedPacket, length)
	}
	if length > len(data) {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d bytes received", ErrMalformedPacket, length, len(data))
	}

	pkt := &Packet{
		Code:       Code(data[0]),
		Identifier: data[1],
	}
	if length > HeaderLength {
		pkt.Data = make([]byte, length-HeaderLength)
		copy(pkt.Data, data[HeaderLength:length])
	}

	return pkt, nil
}

// Serialize serializes the packet.
func (p *Packet) Serialize() []byte {
	buf := make([]byte, HeaderLength+len(p.Data))
	buf[0] = uint8(p.Code)
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(HeaderLength+len(p.Data)))
	copy(buf[HeaderLength:], p.Data)
	return buf
}
