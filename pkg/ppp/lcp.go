package ppp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// transport is how LCP reaches the wire.
type transport interface {
	ID() string
	MRU() int
	Send(packet []byte, protocol uint16) error
}

// LCP is the Link Control Protocol: it owns the option handlers and turns
// received packets into state machine events.
type LCP struct {
	transport transport
	sm        *StateMachine
	config    LCPConfig
	logger    *zap.Logger
	metrics   MetricsReporter

	mu       sync.RWMutex
	handlers []OptionHandler
}

func newLCP(t transport, sm *StateMachine, config LCPConfig, logger *zap.Logger, metrics MetricsReporter) *LCP {
	return &LCP{
		transport: t,
		sm:        sm,
		config:    config,
		logger:    logger,
		metrics:   metrics,
	}
}

// ProtocolNumber returns the LCP protocol number.
func (l *LCP) ProtocolNumber() uint16 {
	return ProtocolLCP
}

// AddOptionHandler registers h. It fails if a handler for the same option
// type is already registered.
func (l *LCP) AddOptionHandler(h OptionHandler) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.handlers {
		if existing == h || existing.Type() == h.Type() {
			return false
		}
	}
	l.handlers = append(l.handlers, h)
	return true
}

// RemoveOptionHandler unregisters h.
func (l *LCP) RemoveOptionHandler(h OptionHandler) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.handlers {
		if existing == h {
			l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// CountOptionHandlers returns the number of registered handlers.
func (l *LCP) CountOptionHandlers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

// OptionHandlerAt returns the handler at index, or nil.
func (l *LCP) OptionHandlerAt(index int) OptionHandler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.handlers) {
		return nil
	}
	return l.handlers[index]
}

// OptionHandlerFor returns the handler for an option type, or nil.
func (l *LCP) OptionHandlerFor(optType uint8) OptionHandler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.handlers {
		if h.Type() == optType {
			return h
		}
	}
	return nil
}

func (l *LCP) optionHandlers() []OptionHandler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]OptionHandler(nil), l.handlers...)
}

func (l *LCP) resetOptionHandlers() {
	for _, h := range l.optionHandlers() {
		h.Reset()
	}
}

func (l *LCP) localMagicNumber() uint32 {
	for _, h := range l.optionHandlers() {
		if p, ok := h.(MagicNumberProvider); ok {
			return p.LocalMagicNumber()
		}
	}
	return 0
}

// Receive processes an LCP packet. Malformed packets are dropped and
// reported as an error; everything else becomes a state machine event.
func (l *LCP) Receive(data []byte) error {
	pkt, err := ParsePacket(data)
	if err != nil {
		return l.dropMalformed(err)
	}
	raw := data[:pkt.Length()]

	l.metrics.RecordPacketReceived(l.transport.ID(), pkt.Code.String())
	l.logger.Debug("LCP packet received",
		zap.String("interface", l.transport.ID()),
		zap.String("code", pkt.Code.String()),
		zap.Uint8("identifier", pkt.Identifier),
	)

	switch pkt.Code {
	case CodeConfigureRequest:
		return l.receiveConfigureRequest(pkt, raw)
	case CodeConfigureAck, CodeConfigureNak, CodeConfigureReject:
		return l.receiveConfigureReply(pkt, raw)
	case CodeTerminateRequest:
		l.sm.rtrEvent(pkt)
	case CodeTerminateAck:
		if !l.sm.expectsReply(pkt.Code, pkt.Identifier) {
			l.dropStale(pkt)
			return nil
		}
		l.sm.rtaEvent(pkt)
	case CodeCodeReject, CodeProtocolReject:
		return l.receiveReject(pkt)
	case CodeEchoRequest, CodeEchoReply, CodeDiscardRequest:
		if len(pkt.Data) < 4 {
			return l.dropMalformed(fmt.Errorf("%w: %s without magic number", ErrMalformedPacket, pkt.Code))
		}
		if pkt.Code == CodeEchoRequest {
			magic := binary.BigEndian.Uint32(pkt.Data)
			if local := l.localMagicNumber(); local != 0 && magic == local {
				l.logger.Warn("Echo-Request carries our magic number, link may be looped back",
					zap.String("interface", l.transport.ID()),
				)
			}
		}
		l.sm.rxrEvent(pkt)
	default:
		l.sm.rucEvent(pkt, raw)
	}
	return nil
}

func (l *LCP) dropMalformed(err error) error {
	l.metrics.RecordMalformedPacket(l.transport.ID())
	l.logger.Debug("Dropping malformed LCP packet",
		zap.String("interface", l.transport.ID()),
		zap.Error(err),
	)
	return err
}

func (l *LCP) dropStale(pkt *Packet) {
	l.logger.Debug("Dropping LCP reply with unexpected identifier",
		zap.String("interface", l.transport.ID()),
		zap.String("code", pkt.Code.String()),
		zap.Uint8("identifier", pkt.Identifier),
	)
}

// receiveConfigureRequest asks the option handlers about every item and
// raises RCR+ or RCR- with the Nak or Reject to send.
func (l *LCP) receiveConfigureRequest(pkt *Packet, raw []byte) error {
	req, err := ParseConfigurePacket(CodeConfigureRequest, raw)
	if err != nil {
		return l.dropMalformed(err)
	}

	l.sm.avoidID(req.Identifier)

	nak := NewConfigurePacket(CodeConfigureNak)
	nak.Identifier = req.Identifier
	reject := NewConfigurePacket(CodeConfigureReject)
	reject.Identifier = req.Identifier

	for index, item := range req.Items() {
		h := l.OptionHandlerFor(item.Type)
		if h == nil || !h.IsEnabled() {
			l.addRejected(reject, item)
			continue
		}

		err := h.ParseConfigureRequest(req, index, nak, reject)
		switch {
		case err == nil:
		case errors.Is(err, ErrUnhandled):
			l.addRejected(reject, item)
		default:
			l.protocolViolation(h, err)
			return nil
		}
	}

	// Suggestions for missing options stop once Naks are exhausted.
	if l.sm.canNak() {
		for _, h := range l.optionHandlers() {
			appender, ok := h.(NakAppender)
			if !ok || !h.IsEnabled() {
				continue
			}
			if err := appender.AppendToNak(req, nak); err != nil {
				l.protocolViolation(h, err)
				return nil
			}
		}
	}

	switch {
	case reject.CountItems() > 0 && (nak.CountItems() == 0 || l.config.RejectFirst):
		l.sm.rcrEvent(pkt, req, nil, reject)
	case nak.CountItems() > 0:
		l.sm.rcrEvent(pkt, req, nak, nil)
	default:
		l.sm.rcrEvent(pkt, req, nil, nil)
	}
	return nil
}

func (l *LCP) addRejected(reject *ConfigurePacket, item ConfigureItem) {
	if err := reject.AddItem(item); err != nil {
		l.logger.Debug("Cannot reject option",
			zap.String("interface", l.transport.ID()),
			zap.Uint8("option", item.Type),
			zap.Error(err),
		)
	}
}

func (l *LCP) protocolViolation(h OptionHandler, err error) {
	l.logger.Warn("Peer sent an invalid option, closing link",
		zap.String("interface", l.transport.ID()),
		zap.String("option", h.Name()),
		zap.Error(err),
	)
	l.sm.Close()
}

// receiveConfigureReply hands an Ack, Nak or Reject to every handler.
func (l *LCP) receiveConfigureReply(pkt *Packet, raw []byte) error {
	if !l.sm.expectsReply(pkt.Code, pkt.Identifier) {
		l.dropStale(pkt)
		return nil
	}

	reply, err := ParseConfigurePacket(pkt.Code, raw)
	if err != nil {
		return l.dropMalformed(err)
	}

	for _, h := range l.optionHandlers() {
		if !h.IsEnabled() {
			continue
		}

		var err error
		switch pkt.Code {
		case CodeConfigureAck:
			err = h.ParseAck(reply)
		case CodeConfigureNak:
			err = h.ParseNak(reply)
		case CodeConfigureReject:
			err = h.ParseReject(reply)
		}
		if err != nil {
			l.protocolViolation(h, err)
			return nil
		}
	}

	if pkt.Code == CodeConfigureAck {
		l.sm.rcaEvent(pkt)
	} else {
		l.sm.rcnEvent(pkt)
	}
	return nil
}

// receiveReject classifies a Code-Reject or Protocol-Reject. Rejecting any
// LCP code or LCP itself is fatal; rejecting another protocol disables it.
func (l *LCP) receiveReject(pkt *Packet) error {
	if pkt.Code == CodeCodeReject {
		if len(pkt.Data) < 1 {
			return l.dropMalformed(fmt.Errorf("%w: empty Code-Reject", ErrMalformedPacket))
		}
		l.logger.Warn("Peer rejected LCP code",
			zap.String("interface", l.transport.ID()),
			zap.String("rejected", Code(pkt.Data[0]).String()),
		)
		l.sm.rxjEvent(pkt, false)
		return nil
	}

	if len(pkt.Data) < 2 {
		return l.dropMalformed(fmt.Errorf("%w: Protocol-Reject without protocol", ErrMalformedPacket))
	}
	rejected := binary.BigEndian.Uint16(pkt.Data)
	if rejected == ProtocolLCP {
		l.logger.Warn("Peer rejected LCP", zap.String("interface", l.transport.ID()))
		l.sm.rxjEvent(pkt, false)
		return nil
	}

	disabled := l.sm.link.disableProtocols(rejected)
	l.logger.Info("Peer rejected protocol",
		zap.String("interface", l.transport.ID()),
		zap.Uint16("protocol", rejected),
		zap.Int("disabled", disabled),
	)
	l.sm.rxjEvent(pkt, true)
	return nil
}

func (l *LCP) send(pkt *Packet) error {
	if err := l.transport.Send(pkt.Serialize(), ProtocolLCP); err != nil {
		l.logger.Debug("Failed to send LCP packet",
			zap.String("interface", l.transport.ID()),
			zap.String("code", pkt.Code.String()),
			zap.Error(err),
		)
		return err
	}
	l.metrics.RecordPacketSent(l.transport.ID(), pkt.Code.String())
	return nil
}

// sendTruncated sends pkt after cutting its data to fit the MRU.
func (l *LCP) sendTruncated(pkt *Packet) error {
	if limit := l.transport.MRU() - HeaderLength; limit >= 0 && len(pkt.Data) > limit {
		pkt.Data = pkt.Data[:limit]
	}
	return l.send(pkt)
}

func (l *LCP) sendConfigure(cp *ConfigurePacket) {
	buf, err := cp.Marshal()
	if err != nil {
		l.logger.Warn("Failed to build configure packet",
			zap.String("interface", l.transport.ID()),
			zap.String("code", cp.Code.String()),
			zap.Error(err),
		)
		return
	}
	if err := l.transport.Send(buf, ProtocolLCP); err != nil {
		l.logger.Debug("Failed to send LCP packet",
			zap.String("interface", l.transport.ID()),
			zap.String("code", cp.Code.String()),
			zap.Error(err),
		)
		return
	}
	l.metrics.RecordPacketSent(l.transport.ID(), cp.Code.String())
}

func (l *LCP) sendCodeReject(id uint8, rejected []byte) {
	data := make([]byte, len(rejected))
	copy(data, rejected)
	l.sendTruncated(&Packet{Code: CodeCodeReject, Identifier: id, Data: data})
}
