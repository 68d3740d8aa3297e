package ppp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Statistics holds interface traffic counters.
type Statistics struct {
	PacketsIn  uint64
	PacketsOut uint64
	BytesIn    uint64
	BytesOut   uint64
	Dropped    uint64
}

// Interface is one PPP link: a state machine, its LCP, the upper-layer
// protocols and the device beneath.
type Interface struct {
	id      string
	config  Config
	logger  *zap.Logger
	metrics MetricsReporter

	sm   *StateMachine
	lcp  *LCP
	echo *EchoMonitor

	mu          sync.RWMutex
	device      Device
	protocols   []Protocol
	mru         int
	redialTimer *time.Timer
	redials     int
	deleted     bool

	reports chan Report

	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64
	dropped    atomic.Uint64
}

// Option configures an Interface.
type Option func(*Interface)

// WithMetrics sets the metrics reporter.
func WithMetrics(m MetricsReporter) Option {
	return func(i *Interface) {
		if m != nil {
			i.metrics = m
		}
	}
}

// WithReportBuffer sets how many reports are buffered before new ones are
// dropped.
func WithReportBuffer(n int) Option {
	return func(i *Interface) {
		i.reports = make(chan Report, n)
	}
}

// WithID overrides the generated interface ID.
func WithID(id string) Option {
	return func(i *Interface) {
		i.id = id
	}
}

// NewInterface creates an interface. It accepts no events until Init.
func NewInterface(config Config, logger *zap.Logger, opts ...Option) *Interface {
	if config.MRU <= 0 {
		config.MRU = DefaultMRU
	}

	i := &Interface{
		id:      uuid.New().String(),
		config:  config,
		logger:  logger,
		metrics: noopMetrics{},
		mru:     config.MRU,
		reports: make(chan Report, 16),
	}
	for _, opt := range opts {
		opt(i)
	}

	i.sm = newStateMachine(i, config.LCP, logger, i.metrics)
	i.lcp = newLCP(i, i.sm, config.LCP, logger, i.metrics)
	i.sm.lcp = i.lcp
	i.echo = newEchoMonitor(i, config.KeepAlive, logger, i.metrics)

	return i
}

// Init leaves the construction phase and starts the keep-alive monitor.
func (i *Interface) Init() {
	i.sm.LeaveConstructionPhase()
	i.echo.Start()

	i.logger.Info("PPP interface initialised",
		zap.String("interface", i.id),
		zap.String("name", i.config.Name),
		zap.String("mode", i.config.Mode.String()),
	)
}

// Delete stops all timers and makes the interface ignore further events.
func (i *Interface) Delete() {
	i.mu.Lock()
	i.deleted = true
	if i.redialTimer != nil {
		i.redialTimer.Stop()
		i.redialTimer = nil
	}
	i.mu.Unlock()

	i.echo.Stop()
	i.sm.EnterDestructionPhase()

	i.logger.Info("PPP interface deleted", zap.String("interface", i.id))
}

func (i *Interface) ID() string { return i.id }

func (i *Interface) Name() string { return i.config.Name }

func (i *Interface) Mode() Mode { return i.config.Mode }

func (i *Interface) DoesAutoRedial() bool { return i.config.AutoRedial }

// StateMachine returns the interface's state machine.
func (i *Interface) StateMachine() *StateMachine { return i.sm }

// LCP returns the interface's LCP.
func (i *Interface) LCP() *LCP { return i.lcp }

// EchoMonitor returns the keep-alive monitor.
func (i *Interface) EchoMonitor() *EchoMonitor { return i.echo }

// Reports returns the channel connection reports are published on.
func (i *Interface) Reports() <-chan Report { return i.reports }

// MRU returns the largest packet that may be sent to the peer.
func (i *Interface) MRU() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.mru
}

// SetMRU sets the largest packet that may be sent to the peer.
func (i *Interface) SetMRU(mru int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.mru = mru
}

// Statistics returns a snapshot of the traffic counters.
func (i *Interface) Statistics() Statistics {
	return Statistics{
		PacketsIn:  i.packetsIn.Load(),
		PacketsOut: i.packetsOut.Load(),
		BytesIn:    i.bytesIn.Load(),
		BytesOut:   i.bytesOut.Load(),
		Dropped:    i.dropped.Load(),
	}
}

// SetDevice attaches the device. Only possible while the link is down.
func (i *Interface) SetDevice(dev Device) bool {
	if i.sm.State() != StateInitial {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.device = dev
	return true
}

// Device returns the attached device, or nil.
func (i *Interface) Device() Device {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.device
}

// AddProtocol registers an upper-layer protocol.
func (i *Interface) AddProtocol(p Protocol) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, existing := range i.protocols {
		if existing == p {
			return false
		}
	}
	i.protocols = append(i.protocols, p)
	return true
}

// RemoveProtocol unregisters p.
func (i *Interface) RemoveProtocol(p Protocol) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, existing := range i.protocols {
		if existing == p {
			i.protocols = append(i.protocols[:idx], i.protocols[idx+1:]...)
			return true
		}
	}
	return false
}

// CountProtocols returns the number of registered protocols.
func (i *Interface) CountProtocols() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.protocols)
}

// ProtocolFor returns the first enabled protocol with the given number.
func (i *Interface) ProtocolFor(number uint16) Protocol {
	for _, p := range i.protocolSnapshot() {
		if p.ProtocolNumber() == number && p.IsEnabled() {
			return p
		}
	}
	return nil
}

// hasDisabledProtocol reports whether number is registered but no protocol
// carrying it is enabled.
func (i *Interface) hasDisabledProtocol(number uint16) bool {
	registered := false
	for _, p := range i.protocolSnapshot() {
		if p.ProtocolNumber() != number {
			continue
		}
		if p.IsEnabled() {
			return false
		}
		registered = true
	}
	return registered
}

func (i *Interface) protocolSnapshot() []Protocol {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]Protocol(nil), i.protocols...)
}

// Up opens the link.
func (i *Interface) Up() {
	i.sm.Open()
}

// Down closes the link and cancels any pending redial.
func (i *Interface) Down() {
	i.mu.Lock()
	if i.redialTimer != nil {
		i.redialTimer.Stop()
		i.redialTimer = nil
	}
	i.redials = 0
	i.mu.Unlock()

	i.sm.Close()
}

// IsUp reports whether the link reached the established phase.
func (i *Interface) IsUp() bool {
	return i.sm.Phase() == PhaseEstablished
}

// Device notifications.

func (i *Interface) TLSNotify() bool { return i.sm.TLSNotify() }

func (i *Interface) TLFNotify() bool { return i.sm.TLFNotify() }

func (i *Interface) UpEvent() { i.sm.UpEvent() }

func (i *Interface) UpFailedEvent() { i.sm.UpFailedEvent() }

func (i *Interface) DownEvent() { i.sm.DownEvent() }

// ReceiveFrame accepts a PPP frame (protocol field and information) from the
// device.
func (i *Interface) ReceiveFrame(frame []byte) error {
	protocol, payload, err := decodeFrame(frame)
	if err != nil {
		i.dropped.Add(1)
		i.metrics.RecordMalformedPacket(i.id)
		return err
	}
	return i.Receive(payload, protocol)
}

// Receive demultiplexes a packet by protocol number.
func (i *Interface) Receive(packet []byte, protocol uint16) error {
	i.packetsIn.Add(1)
	i.bytesIn.Add(uint64(len(packet)))
	i.echo.touch()

	if protocol == ProtocolLCP {
		return i.lcp.Receive(packet)
	}

	// Only LCP may flow before the link is opened.
	if i.sm.State() != StateOpened {
		i.dropped.Add(1)
		i.logger.Debug("Dropping packet before link is opened",
			zap.String("interface", i.id),
			zap.Uint16("protocol", protocol),
		)
		return nil
	}

	if p := i.ProtocolFor(protocol); p != nil {
		return p.Receive(packet, protocol)
	}

	i.dropped.Add(1)
	i.sm.SendProtocolReject(protocol, packet)
	return nil
}

// Send frames packet with the protocol number and hands it to the device.
func (i *Interface) Send(packet []byte, protocol uint16) error {
	dev := i.Device()
	if dev == nil {
		return ErrNoDevice
	}
	if !dev.IsUp() {
		return ErrDeviceDown
	}
	if protocol != ProtocolLCP {
		if i.sm.State() != StateOpened {
			return ErrLinkNotOpen
		}
		if i.hasDisabledProtocol(protocol) {
			return fmt.Errorf("%w: 0x%04x", ErrProtocolDisabled, protocol)
		}
	}
	if len(packet) > i.MRU() {
		return fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, len(packet), i.MRU())
	}

	frame, err := encodeFrame(protocol, packet)
	if err != nil {
		return err
	}
	if err := dev.Send(frame); err != nil {
		return fmt.Errorf("device %s: %w", dev.Name(), err)
	}

	i.packetsOut.Add(1)
	i.bytesOut.Add(uint64(len(packet)))
	return nil
}

// ProtocolUp is called by a protocol that finished coming up.
func (i *Interface) ProtocolUp(p Protocol) {
	i.logger.Debug("Protocol up",
		zap.String("interface", i.id),
		zap.String("protocol", p.Name()),
	)
	i.bringProtocolsUp()
}

// ProtocolUpFailed is called by a protocol that could not come up. The link
// is closed.
func (i *Interface) ProtocolUpFailed(p Protocol) {
	i.logger.Warn("Protocol failed to come up, closing link",
		zap.String("interface", i.id),
		zap.String("protocol", p.Name()),
	)
	i.sm.Close()
}

// bringProtocolsUp walks the phases from authentication to established,
// starting each phase's protocols and stopping at the first phase that still
// has protocols coming up.
func (i *Interface) bringProtocolsUp() {
	for {
		phase := i.sm.Phase()
		if phase < PhaseAuthentication || phase > PhaseEstablished {
			return
		}
		if i.bringPhaseUp(phase) > 0 || phase == PhaseEstablished {
			return
		}
		if !i.sm.advancePhase(phase) {
			return
		}
		if phase+1 == PhaseEstablished {
			i.established()
		}
	}
}

// bringPhaseUp returns the number of protocols the phase is waiting for.
func (i *Interface) bringPhaseUp(phase Phase) int {
	client := i.config.Mode == ModeClient
	count := 0

	for _, p := range i.protocolSnapshot() {
		if !p.IsEnabled() || p.ActivationPhase() != phase {
			continue
		}
		switch p.State() {
		case ProtocolGoingUp:
			if client {
				count++
			}
		case ProtocolDown:
			p.Up()
			if client && p.State() != ProtocolUp {
				count++
			}
		}
	}

	// Servers only wait for authentication.
	if !client && i.sm.authenticationPending() {
		count++
	}
	return count
}

func (i *Interface) established() {
	i.mu.Lock()
	i.redials = 0
	i.mu.Unlock()
	i.report(ReportUpSuccessful)
}

func (i *Interface) downProtocols() {
	for _, p := range i.protocolSnapshot() {
		if p.IsEnabled() && p.State() != ProtocolDown {
			p.Down()
		}
	}
}

func (i *Interface) disableProtocols(number uint16) int {
	n := 0
	for _, p := range i.protocolSnapshot() {
		if p.ProtocolNumber() == number {
			p.SetEnabled(false)
			n++
		}
	}
	return n
}

func (i *Interface) report(code ReportCode) {
	r := Report{InterfaceID: i.id, Code: code, Timestamp: time.Now()}

	i.logger.Info("PPP connection report",
		zap.String("interface", i.id),
		zap.String("report", code.String()),
	)
	i.metrics.RecordReport(i.id, code.String())

	select {
	case i.reports <- r:
	default:
		i.logger.Debug("Report channel full, dropping report",
			zap.String("interface", i.id),
			zap.String("report", code.String()),
		)
	}
}

// lowerLayerFinished decides whether to dial again after the link fell back
// to Initial. retry is set when the device failed to come up.
func (i *Interface) lowerLayerFinished(retry bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.deleted || !(retry || i.config.AutoRedial) {
		return
	}
	i.redials++
	if i.redials > i.config.MaxRedials {
		i.logger.Info("Redial limit reached",
			zap.String("interface", i.id),
			zap.Int("attempts", i.redials-1),
		)
		i.redials = 0
		return
	}

	i.logger.Info("Redialing",
		zap.String("interface", i.id),
		zap.Int("attempt", i.redials),
		zap.Duration("delay", i.config.RedialDelay),
	)
	if i.redialTimer != nil {
		i.redialTimer.Stop()
	}
	i.redialTimer = time.AfterFunc(i.config.RedialDelay, i.redial)
}

func (i *Interface) redial() {
	i.mu.Lock()
	deleted := i.deleted
	i.redialTimer = nil
	i.mu.Unlock()

	if !deleted {
		i.sm.Open()
	}
}

func (i *Interface) echoReplyReceived(id uint8) {
	i.echo.OnEchoReply(id)
}

// decodeFrame splits a PPP frame into protocol number and information field.
func decodeFrame(frame []byte) (uint16, []byte, error) {
	if len(frame) < 2 {
		return 0, nil, fmt.Errorf("%w: %d byte frame", ErrMalformedPacket, len(frame))
	}

	packet := gopacket.NewPacket(frame, layers.LayerTypePPP, gopacket.NoCopy)
	layer, ok := packet.Layer(layers.LayerTypePPP).(*layers.PPP)
	if !ok {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrMalformedPacket, errLayer.Error())
		}
		return 0, nil, fmt.Errorf("%w: no PPP header", ErrMalformedPacket)
	}
	return uint16(layer.PPPType), layer.LayerPayload(), nil
}

// encodeFrame prefixes packet with the uncompressed protocol field.
func encodeFrame(protocol uint16, packet []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{},
		&layers.PPP{PPPType: layers.PPPType(protocol)},
		gopacket.Payload(packet),
	)
	if err != nil {
		return nil, fmt.Errorf("encode PPP frame: %w", err)
	}
	return buf.Bytes(), nil
}
