package ppp

import (
	"encoding/binary"
	"fmt"
)

// MaxItemDataLength is the largest value an item can carry (length is one octet).
const MaxItemDataLength = 255 - 2

// ConfigureItem is a single type-length-value configuration option.
type ConfigureItem struct {
	Type uint8
	Data []byte
}

// Length returns the wire length of the item.
func (i ConfigureItem) Length() int {
	return 2 + len(i.Data)
}

// ConfigurePacket is a Configure-Request, -Ack, -Nak or -Reject.
type ConfigurePacket struct {
	Code       Code
	Identifier uint8
	items      []ConfigureItem
}

// NewConfigurePacket creates an empty configure packet.
func NewConfigurePacket(code Code) *ConfigurePacket {
	return &ConfigurePacket{Code: code}
}

// AddItem appends a copy of item.
func (p *ConfigurePacket) AddItem(item ConfigureItem) error {
	if len(item.Data) > MaxItemDataLength {
		return fmt.Errorf("%w: option %d carries %d bytes", ErrInvalidItem, item.Type, len(item.Data))
	}
	if p.length()+item.Length() > MaxPacketSize {
		return fmt.Errorf("%w: option %d would grow packet past %d bytes", ErrInvalidItem, item.Type, MaxPacketSize)
	}

	cp := ConfigureItem{Type: item.Type}
	if len(item.Data) > 0 {
		cp.Data = make([]byte, len(item.Data))
		copy(cp.Data, item.Data)
	}
	p.items = append(p.items, cp)
	return nil
}

// CountItems returns the number of items.
func (p *ConfigurePacket) CountItems() int {
	return len(p.items)
}

// ItemAt returns the item at index.
func (p *ConfigurePacket) ItemAt(index int) (ConfigureItem, error) {
	if index < 0 || index >= len(p.items) {
		return ConfigureItem{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(p.items))
	}
	return p.items[index], nil
}

// Items returns the items in order. The slice must not be modified.
func (p *ConfigurePacket) Items() []ConfigureItem {
	return p.items
}

// ItemWithType returns the first item of the given type.
func (p *ConfigurePacket) ItemWithType(optType uint8) (ConfigureItem, bool) {
	for _, item := range p.items {
		if item.Type == optType {
			return item, true
		}
	}
	return ConfigureItem{}, false
}

// CountItemsWithType returns how many items carry the given type.
func (p *ConfigurePacket) CountItemsWithType(optType uint8) int {
	n := 0
	for _, item := range p.items {
		if item.Type == optType {
			n++
		}
	}
	return n
}

func (p *ConfigurePacket) length() int {
	n := HeaderLength
	for _, item := range p.items {
		n += item.Length()
	}
	return n
}

// Marshal flattens the packet into an exactly-sized buffer.
func (p *ConfigurePacket) Marshal() ([]byte, error) {
	length := p.length()
	if length > MaxPacketSize {
		return nil, fmt.Errorf("%w: packet length %d exceeds %d", ErrInvalidItem, length, MaxPacketSize)
	}

	buf := make([]byte, length)
	buf[0] = uint8(p.Code)
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))

	offset := HeaderLength
	for _, item := range p.items {
		buf[offset] = item.Type
		buf[offset+1] = uint8(item.Length())
		copy(buf[offset+2:], item.Data)
		offset += item.Length()
	}

	return buf, nil
}

// ParseConfigurePacket parses a configure packet whose code must equal code.
// The declared length must match the buffer exactly.
func ParseConfigurePacket(code Code, data []byte) (*ConfigurePacket, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("%w: %d bytes is too short for LCP header", ErrMalformedPacket, len(data))
	}
	if Code(data[0]) != code {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrMalformedPacket, code, Code(data[0]))
	}

	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length != len(data) {
		return nil, fmt.Errorf("%w: declared length %d, buffer holds %d", ErrMalformedPacket, length, len(data))
	}

	pkt := &ConfigurePacket{
		Code:       code,
		Identifier: data[1],
	}

	offset := HeaderLength
	for offset < length {
		if offset+2 > length {
			return nil, fmt.Errorf("%w: truncated option header at offset %d", ErrMalformedPacket, offset)
		}
		optType := data[offset]
		optLen := int(data[offset+1])
		if optLen < 2 {
			return nil, fmt.Errorf("%w: option %d has length %d", ErrMalformedPacket, optType, optLen)
		}
		if offset+optLen > length {
			return nil, fmt.Errorf("%w: option %d overruns packet", ErrMalformedPacket, optType)
		}

		item := ConfigureItem{Type: optType}
		if optLen > 2 {
			item.Data = make([]byte, optLen-2)
			copy(item.Data, data[offset+2:offset+optLen])
		}
		pkt.items = append(pkt.items, item)

		offset += optLen
	}

	return pkt, nil
}

// rejectNaked turns a Nak into a Configure-Reject carrying the request items
// the Nak objected to, as received.
func rejectNaked(req, nak *ConfigurePacket) *ConfigurePacket {
	reject := &ConfigurePacket{Code: CodeConfigureReject, Identifier: nak.Identifier}
	if req != nil {
		for _, item := range req.items {
			if nak.CountItemsWithType(item.Type) > 0 {
				reject.items = append(reject.items, item)
			}
		}
	}
	if len(reject.items) == 0 {
		reject.items = nak.items
	}
	return reject
}
