package ppp

import (
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/zap"
)

// link is the part of the owning Interface the state machine drives.
type link interface {
	ID() string
	Mode() Mode
	Device() Device
	MRU() int
	DoesAutoRedial() bool

	bringProtocolsUp()
	downProtocols()
	disableProtocols(number uint16) int
	report(code ReportCode)
	lowerLayerFinished(retry bool)
	echoReplyReceived(id uint8)
}

// RestartCounters is a snapshot of the three restart counters.
type RestartCounters struct {
	Configure int
	Terminate int
	Failure   int
}

// eventInput carries the received packet data an action may need.
type eventInput struct {
	packet   *Packet          // received packet, nil for local events
	request  *ConfigurePacket // RCR: peer request, acked by sca
	response *ConfigurePacket // RCR-: Nak or Reject sent by scn
	rejected []byte           // RUC: offending packet, returned by scj
}

// StateMachine runs the RFC 1661 automaton for one interface.
//
// State, phase, counters and identifiers are guarded by mu. Each event
// computes its actions under mu and queues their side effects; the goroutine
// that finds the queue idle runs them with mu released. Effects raised while
// draining (device callbacks, handler failures) queue behind the current one.
type StateMachine struct {
	link    link
	lcp     *LCP
	config  LCPConfig
	logger  *zap.Logger
	metrics MetricsReporter

	mu    sync.Mutex
	state State
	phase Phase

	configureCount int
	terminateCount int
	failureCount   int

	nextID      uint8
	configureID uint8
	terminateID uint8
	echoID      uint8
	echoPending bool

	localAuth     AuthStatus
	localAuthName string
	peerAuth      AuthStatus
	peerAuthName  string

	illegalEvents uint64

	timer      *time.Timer
	timerGen   uint64
	timerArmed bool

	queue    []func()
	draining bool
}

func newStateMachine(l link, config LCPConfig, logger *zap.Logger, metrics MetricsReporter) *StateMachine {
	return &StateMachine{
		link:    l,
		config:  config,
		logger:  logger,
		metrics: metrics,
		state:   StateInitial,
		phase:   PhaseConstructionDestruction,
		nextID:  uint8(time.Now().UnixNano()),
	}
}

// State returns the current automaton state.
func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// Phase returns the current link phase.
func (sm *StateMachine) Phase() Phase {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.phase
}

// Counters returns the restart counters.
func (sm *StateMachine) Counters() RestartCounters {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return RestartCounters{
		Configure: sm.configureCount,
		Terminate: sm.terminateCount,
		Failure:   sm.failureCount,
	}
}

// IllegalEvents returns how many events arrived in a state that does not
// accept them.
func (sm *StateMachine) IllegalEvents() uint64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.illegalEvents
}

// LocalAuthenticationStatus returns the status and name of our own
// authentication towards the peer.
func (sm *StateMachine) LocalAuthenticationStatus() (AuthStatus, string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.localAuth, sm.localAuthName
}

// PeerAuthenticationStatus returns the status and name of the peer's
// authentication towards us.
func (sm *StateMachine) PeerAuthenticationStatus() (AuthStatus, string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.peerAuth, sm.peerAuthName
}

// run executes fn under mu and then drains queued effects unless another
// goroutine is already doing so.
func (sm *StateMachine) run(fn func() []func()) {
	sm.mu.Lock()
	sm.queue = append(sm.queue, fn()...)
	if sm.draining {
		sm.mu.Unlock()
		return
	}

	sm.draining = true
	for len(sm.queue) > 0 {
		effect := sm.queue[0]
		sm.queue[0] = nil
		sm.queue = sm.queue[1:]

		sm.mu.Unlock()
		effect()
		sm.mu.Lock()
	}
	sm.draining = false
	sm.mu.Unlock()
}

// LeaveConstructionPhase makes the state machine accept events.
func (sm *StateMachine) LeaveConstructionPhase() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.phase == PhaseConstructionDestruction {
		sm.setPhaseLocked(PhaseDown)
	}
}

// EnterDestructionPhase stops the restart timer and makes every later event
// a no-op.
func (sm *StateMachine) EnterDestructionPhase() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.disarmTimerLocked()
	sm.setPhaseLocked(PhaseConstructionDestruction)
}

// handleLocked applies event and prepares the side effects of its actions.
func (sm *StateMachine) handleLocked(event Event, in eventInput) []func() {
	if sm.phase == PhaseConstructionDestruction {
		sm.logger.Debug("LCP event outside link lifetime",
			zap.String("interface", sm.link.ID()),
			zap.String("event", event.String()),
		)
		return nil
	}

	res := ApplyEvent(sm.state, sm.phase, event)
	if !res.Legal {
		sm.illegalLocked(event.String())
		return nil
	}

	if res.PhaseChanged {
		sm.setPhaseLocked(res.Phase)
	}
	effects := sm.setStateLocked(res.NewState)

	for _, action := range res.Actions {
		if fx := sm.prepareLocked(action, in); fx != nil {
			effects = append(effects, fx)
		}
	}
	return effects
}

func (sm *StateMachine) illegalLocked(event string) {
	sm.illegalEvents++
	sm.logger.Warn("Illegal LCP event",
		zap.String("interface", sm.link.ID()),
		zap.String("event", event),
		zap.String("state", sm.state.String()),
		zap.String("phase", sm.phase.String()),
	)
	sm.metrics.RecordIllegalEvent(sm.link.ID(), sm.state.String(), event)
}

func (sm *StateMachine) setStateLocked(next State) []func() {
	if !next.needsTimer() {
		sm.disarmTimerLocked()
	}
	if next == sm.state {
		return nil
	}

	old := sm.state
	sm.state = next

	sm.logger.Debug("LCP state change",
		zap.String("interface", sm.link.ID()),
		zap.String("from", old.String()),
		zap.String("to", next.String()),
	)
	sm.metrics.RecordStateTransition(sm.link.ID(), old.String(), next.String())

	if old == StateOpened {
		return []func(){sm.lcp.resetOptionHandlers}
	}
	return nil
}

func (sm *StateMachine) setPhaseLocked(next Phase) {
	if next == sm.phase {
		return
	}
	old := sm.phase
	sm.phase = next

	sm.logger.Debug("Link phase change",
		zap.String("interface", sm.link.ID()),
		zap.String("from", old.String()),
		zap.String("to", next.String()),
	)
	sm.metrics.RecordPhaseTransition(sm.link.ID(), old.String(), next.String())
}

// newIDLocked returns the next packet identifier.
func (sm *StateMachine) newIDLocked() uint8 {
	id := sm.nextID
	sm.nextID++
	return id
}

// avoidIDLocked keeps our identifiers away from the peer's.
func (sm *StateMachine) avoidIDLocked(peerID uint8) {
	if sm.nextID == peerID {
		sm.nextID -= 128
	}
}

func (sm *StateMachine) armTimerLocked() {
	sm.timerGen++
	sm.timerArmed = true
	gen := sm.timerGen
	if sm.timer != nil {
		sm.timer.Stop()
	}
	sm.timer = time.AfterFunc(sm.config.RestartTimer, func() {
		sm.timerFired(gen)
	})
}

func (sm *StateMachine) disarmTimerLocked() {
	sm.timerArmed = false
	if sm.timer != nil {
		sm.timer.Stop()
		sm.timer = nil
	}
}

// TimerExpired fires the restart timer now. It does nothing when the timer
// is not armed.
func (sm *StateMachine) TimerExpired() {
	sm.mu.Lock()
	gen := sm.timerGen
	sm.mu.Unlock()
	sm.timerFired(gen)
}

func (sm *StateMachine) timerFired(gen uint64) {
	sm.run(func() []func() {
		if !sm.timerArmed || gen != sm.timerGen || !sm.state.needsTimer() {
			return nil
		}
		sm.disarmTimerLocked()

		counter := sm.configureCount
		if sm.state.terminating() {
			counter = sm.terminateCount
		}
		if counter > 0 {
			return sm.handleLocked(EventTimeoutPlus, eventInput{})
		}
		return sm.handleLocked(EventTimeoutMinus, eventInput{})
	})
}

// prepareLocked performs the bookkeeping part of an action and returns the
// part that must run without the lock.
func (sm *StateMachine) prepareLocked(action Action, in eventInput) func() {
	switch action {
	case ActionThisLayerUp:
		// Only the first tlu after establishment starts the upper layers.
		if sm.phase != PhaseEstablishment {
			return nil
		}
		sm.setPhaseLocked(PhaseAuthentication)
		return sm.link.bringProtocolsUp

	case ActionThisLayerDown:
		return sm.link.downProtocols

	case ActionThisLayerStarted:
		return sm.thisLayerStarted

	case ActionThisLayerFinished:
		return sm.thisLayerFinished

	case ActionInitRestartCount:
		sm.configureCount = sm.config.MaxConfigure
		sm.terminateCount = sm.config.MaxTerminate
		sm.failureCount = sm.config.MaxFailure
		return nil

	case ActionZeroRestartCount:
		sm.configureCount = 0
		sm.terminateCount = 0
		sm.failureCount = 0
		sm.armTimerLocked()
		return nil

	case ActionSendConfigureRequest:
		sm.configureCount--
		id := sm.newIDLocked()
		sm.configureID = id
		sm.armTimerLocked()
		return func() { sm.sendConfigureRequest(id) }

	case ActionSendConfigureAck:
		req := in.request
		if req == nil {
			return nil
		}
		return func() { sm.sendConfigureAck(req) }

	case ActionSendConfigureNak:
		resp := in.response
		if resp == nil {
			return nil
		}
		if resp.Code == CodeConfigureNak {
			if sm.failureCount <= 0 {
				// Enough Naks were sent; reject what we could not agree on.
				resp = rejectNaked(in.request, resp)
			} else {
				sm.failureCount--
			}
		}
		return func() { sm.lcp.sendConfigure(resp) }

	case ActionSendTerminateRequest:
		sm.terminateCount--
		id := sm.newIDLocked()
		sm.terminateID = id
		sm.armTimerLocked()
		return func() {
			sm.lcp.send(&Packet{Code: CodeTerminateRequest, Identifier: id})
		}

	case ActionSendTerminateAck:
		var id uint8
		if in.packet != nil {
			id = in.packet.Identifier
		} else {
			id = sm.newIDLocked()
		}
		return func() {
			sm.lcp.send(&Packet{Code: CodeTerminateAck, Identifier: id})
		}

	case ActionSendCodeReject:
		if in.rejected == nil {
			return nil
		}
		id := sm.newIDLocked()
		rejected := in.rejected
		return func() { sm.lcp.sendCodeReject(id, rejected) }

	case ActionSendEchoReply:
		if in.packet == nil || in.packet.Code != CodeEchoRequest {
			return nil
		}
		req := in.packet
		return func() { sm.sendEchoReply(req) }
	}
	return nil
}

func (sm *StateMachine) thisLayerStarted() {
	dev := sm.link.Device()
	if dev == nil {
		sm.logger.Debug("No device to start", zap.String("interface", sm.link.ID()))
		return
	}
	if !dev.Up() {
		sm.UpFailedEvent()
	}
}

func (sm *StateMachine) thisLayerFinished() {
	if dev := sm.link.Device(); dev != nil {
		dev.Down()
	}
}

// Open is the administrative Open event.
func (sm *StateMachine) Open() {
	sm.run(func() []func() {
		if sm.phase == PhaseConstructionDestruction {
			return nil
		}

		var effects []func()
		if sm.phase != PhaseEstablished {
			effects = append(effects, sm.link.downProtocols, sm.lcp.resetOptionHandlers)
		}
		if sm.state == StateInitial {
			effects = append(effects, func() { sm.link.report(ReportGoingUp) })
		}
		return append(effects, sm.handleLocked(EventOpen, eventInput{})...)
	})
}

// Close is the administrative Close event.
func (sm *StateMachine) Close() {
	sm.run(func() []func() {
		return sm.handleLocked(EventClose, eventInput{})
	})
}

// UpEvent notifies that the device came up.
func (sm *StateMachine) UpEvent() {
	if dev := sm.link.Device(); dev == nil || !dev.IsUp() {
		return
	}
	sm.run(func() []func() {
		return sm.handleLocked(EventUp, eventInput{})
	})
}

// UpFailedEvent notifies that the device failed to come up.
func (sm *StateMachine) UpFailedEvent() {
	sm.run(func() []func() {
		if sm.phase == PhaseConstructionDestruction {
			return nil
		}
		if sm.state != StateStarting {
			sm.illegalLocked("UpFailed")
			return nil
		}

		// A Down phase tells the down handling the link never came up.
		sm.setPhaseLocked(PhaseDown)
		effects := []func(){func() { sm.link.report(ReportDeviceUpFailed) }}
		return append(effects, sm.downLocked()...)
	})
}

// DownEvent notifies that the device went down.
func (sm *StateMachine) DownEvent() {
	if dev := sm.link.Device(); dev != nil && dev.IsUp() {
		return
	}
	sm.run(func() []func() {
		if sm.phase == PhaseConstructionDestruction {
			return nil
		}
		return sm.downLocked()
	})
}

func (sm *StateMachine) downLocked() []func() {
	if !ApplyEvent(sm.state, sm.phase, EventDown).Legal {
		sm.illegalLocked(EventDown.String())
		return nil
	}

	oldPhase := sm.phase
	effects := sm.handleLocked(EventDown, eventInput{})

	sm.setPhaseLocked(PhaseDown)
	effects = append(effects, sm.link.downProtocols)

	if sm.state == StateStarting {
		authFailed := sm.localAuth == AuthDenied || sm.localAuth == AuthRequested ||
			sm.peerAuth == AuthDenied || sm.peerAuth == AuthRequested

		var report ReportCode
		retry := false
		switch {
		case authFailed:
			report = ReportAuthenticationFailed
		case oldPhase == PhaseDown:
			// the device failed to come up
			retry = true
		default:
			report = ReportConnectionLost
		}

		effects = append(effects, sm.setStateLocked(StateInitial)...)
		effects = append(effects, func() {
			if report != 0 {
				sm.link.report(report)
			}
			if !authFailed {
				sm.link.lowerLayerFinished(retry)
			}
		})
	} else {
		effects = append(effects, func() { sm.link.report(ReportDownSuccessful) })
	}

	sm.localAuth, sm.localAuthName = AuthNotAuthenticated, ""
	sm.peerAuth, sm.peerAuthName = AuthNotAuthenticated, ""
	return effects
}

// TLSNotify is called by the device before it starts coming up. It returns
// false when the link no longer wants the device.
func (sm *StateMachine) TLSNotify() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateStarting {
		return false
	}
	if sm.phase == PhaseDown {
		sm.setPhaseLocked(PhaseEstablishment)
	}
	return true
}

// TLFNotify is called by the device before it goes down.
func (sm *StateMachine) TLFNotify() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.phase != PhaseConstructionDestruction {
		sm.setPhaseLocked(PhaseTermination)
	}
	return true
}

// Reconfigure restarts option negotiation on a link that is negotiating or
// open. It returns false when there is nothing to renegotiate.
func (sm *StateMachine) Reconfigure() bool {
	ok := false
	sm.run(func() []func() {
		switch sm.state {
		case StateReqSent, StateAckRcvd, StateAckSent, StateOpened:
		default:
			return nil
		}
		ok = true

		sm.setPhaseLocked(PhaseEstablishment)
		effects := sm.setStateLocked(StateReqSent)
		effects = append(effects, sm.link.downProtocols, sm.lcp.resetOptionHandlers)
		sm.prepareLocked(ActionInitRestartCount, eventInput{})
		return append(effects, sm.prepareLocked(ActionSendConfigureRequest, eventInput{}))
	})
	return ok
}

// SendEchoRequest sends an Echo-Request and returns its identifier. It
// returns false unless the link is opened.
func (sm *StateMachine) SendEchoRequest() (uint8, bool) {
	return sm.sendMagicPacket(CodeEchoRequest)
}

// SendDiscardRequest sends a Discard-Request. It returns false unless the
// link is opened.
func (sm *StateMachine) SendDiscardRequest() bool {
	_, ok := sm.sendMagicPacket(CodeDiscardRequest)
	return ok
}

func (sm *StateMachine) sendMagicPacket(code Code) (uint8, bool) {
	sm.mu.Lock()
	if sm.state != StateOpened {
		sm.mu.Unlock()
		return 0, false
	}
	id := sm.newIDLocked()
	if code == CodeEchoRequest {
		sm.echoID = id
		sm.echoPending = true
	}
	sm.mu.Unlock()

	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, sm.lcp.localMagicNumber())
	if err := sm.lcp.send(&Packet{Code: code, Identifier: id, Data: data}); err != nil {
		return id, false
	}
	return id, true
}

// SendProtocolReject rejects a packet of an unsupported protocol. It only
// sends while the link is opened.
func (sm *StateMachine) SendProtocolReject(protocol uint16, packet []byte) bool {
	sm.mu.Lock()
	if sm.state != StateOpened {
		sm.mu.Unlock()
		return false
	}
	id := sm.newIDLocked()
	sm.mu.Unlock()

	data := make([]byte, 2+len(packet))
	binary.BigEndian.PutUint16(data, protocol)
	copy(data[2:], packet)
	return sm.lcp.sendTruncated(&Packet{Code: CodeProtocolReject, Identifier: id, Data: data}) == nil
}

func (sm *StateMachine) sendConfigureRequest(id uint8) {
	req := NewConfigurePacket(CodeConfigureRequest)
	req.Identifier = id

	for _, h := range sm.lcp.optionHandlers() {
		if !h.IsEnabled() {
			continue
		}
		if err := h.AddToRequest(req); err != nil {
			sm.logger.Warn("Option handler failed to build request",
				zap.String("interface", sm.link.ID()),
				zap.String("option", h.Name()),
				zap.Error(err),
			)
			sm.Close()
			return
		}
	}

	sm.lcp.sendConfigure(req)
}

func (sm *StateMachine) sendConfigureAck(req *ConfigurePacket) {
	ack := &ConfigurePacket{
		Code:       CodeConfigureAck,
		Identifier: req.Identifier,
		items:      req.items,
	}

	for _, h := range sm.lcp.optionHandlers() {
		if err := h.SendingAck(ack); err != nil {
			sm.logger.Warn("Option handler refused to ack",
				zap.String("interface", sm.link.ID()),
				zap.String("option", h.Name()),
				zap.Error(err),
			)
			sm.Close()
			return
		}
	}

	sm.lcp.sendConfigure(ack)
}

func (sm *StateMachine) sendEchoReply(req *Packet) {
	data := make([]byte, len(req.Data))
	copy(data, req.Data)
	if len(data) < 4 {
		data = make([]byte, 4)
	}
	binary.BigEndian.PutUint32(data, sm.lcp.localMagicNumber())

	sm.lcp.sendTruncated(&Packet{Code: CodeEchoReply, Identifier: req.Identifier, Data: data})
}

// Received events, raised by the LCP adapter.

func (sm *StateMachine) rcrEvent(pkt *Packet, req, nak, reject *ConfigurePacket) {
	sm.run(func() []func() {
		if nak != nil || reject != nil {
			resp := nak
			if resp == nil {
				resp = reject
			}
			return sm.handleLocked(EventRCRBad, eventInput{packet: pkt, request: req, response: resp})
		}
		return sm.handleLocked(EventRCRGood, eventInput{packet: pkt, request: req})
	})
}

func (sm *StateMachine) rcaEvent(pkt *Packet) {
	sm.run(func() []func() {
		return sm.handleLocked(EventRCA, eventInput{packet: pkt})
	})
}

func (sm *StateMachine) rcnEvent(pkt *Packet) {
	sm.run(func() []func() {
		return sm.handleLocked(EventRCN, eventInput{packet: pkt})
	})
}

func (sm *StateMachine) rtrEvent(pkt *Packet) {
	sm.run(func() []func() {
		sm.avoidIDLocked(pkt.Identifier)
		sm.localAuth, sm.localAuthName = AuthNotAuthenticated, ""
		sm.peerAuth, sm.peerAuthName = AuthNotAuthenticated, ""
		return sm.handleLocked(EventRTR, eventInput{packet: pkt})
	})
}

func (sm *StateMachine) rtaEvent(pkt *Packet) {
	sm.run(func() []func() {
		return sm.handleLocked(EventRTA, eventInput{packet: pkt})
	})
}

func (sm *StateMachine) rucEvent(pkt *Packet, raw []byte) {
	sm.run(func() []func() {
		return sm.handleLocked(EventRUC, eventInput{packet: pkt, rejected: raw})
	})
}

func (sm *StateMachine) rxjEvent(pkt *Packet, good bool) {
	sm.run(func() []func() {
		if good {
			return sm.handleLocked(EventRXJGood, eventInput{packet: pkt})
		}
		return sm.handleLocked(EventRXJBad, eventInput{packet: pkt})
	})
}

func (sm *StateMachine) rxrEvent(pkt *Packet) {
	sm.run(func() []func() {
		effects := sm.handleLocked(EventRXR, eventInput{packet: pkt})
		if pkt.Code == CodeEchoReply && sm.state == StateOpened {
			if !sm.echoPending || pkt.Identifier != sm.echoID {
				sm.logger.Debug("Unexpected echo reply",
					zap.String("interface", sm.link.ID()),
					zap.Uint8("expected", sm.echoID),
					zap.Uint8("received", pkt.Identifier),
				)
				return effects
			}
			sm.echoPending = false
			id := pkt.Identifier
			effects = append(effects, func() { sm.link.echoReplyReceived(id) })
		}
		return effects
	})
}

// expectsReply reports whether id answers our outstanding request of code.
func (sm *StateMachine) expectsReply(code Code, id uint8) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	switch code {
	case CodeConfigureAck, CodeConfigureNak, CodeConfigureReject:
		return id == sm.configureID
	case CodeTerminateAck:
		return id == sm.terminateID
	default:
		return true
	}
}

func (sm *StateMachine) avoidID(peerID uint8) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.avoidIDLocked(peerID)
}

func (sm *StateMachine) canNak() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.failureCount > 0
}

// Authentication hooks, called by authentication protocols.

// LocalAuthenticationRequested notes that we started authenticating to the peer.
func (sm *StateMachine) LocalAuthenticationRequested() {
	sm.run(func() []func() {
		sm.localAuth, sm.localAuthName = AuthRequested, ""
		return []func(){func() { sm.link.report(ReportAuthenticationRequested) }}
	})
}

// LocalAuthenticationAccepted notes that the peer accepted name.
func (sm *StateMachine) LocalAuthenticationAccepted(name string) {
	sm.run(func() []func() {
		sm.localAuth, sm.localAuthName = AuthAccepted, name
		return []func(){sm.link.bringProtocolsUp}
	})
}

// LocalAuthenticationDenied notes that the peer refused name. The link goes
// down when the authentication protocol reports failure.
func (sm *StateMachine) LocalAuthenticationDenied(name string) {
	sm.run(func() []func() {
		sm.localAuth, sm.localAuthName = AuthDenied, name
		return nil
	})
}

// PeerAuthenticationRequested notes that the peer started authenticating to us.
func (sm *StateMachine) PeerAuthenticationRequested() {
	sm.run(func() []func() {
		sm.peerAuth, sm.peerAuthName = AuthRequested, ""
		return []func(){func() { sm.link.report(ReportAuthenticationRequested) }}
	})
}

// PeerAuthenticationAccepted notes that we accepted the peer as name.
func (sm *StateMachine) PeerAuthenticationAccepted(name string) {
	sm.run(func() []func() {
		sm.peerAuth, sm.peerAuthName = AuthAccepted, name
		return []func(){sm.link.bringProtocolsUp}
	})
}

// PeerAuthenticationDenied notes that we refused the peer as name and closes
// the link.
func (sm *StateMachine) PeerAuthenticationDenied(name string) {
	sm.run(func() []func() {
		sm.peerAuth, sm.peerAuthName = AuthDenied, name
		return sm.handleLocked(EventClose, eventInput{})
	})
}

// advancePhase moves from phase to the next upper-layer phase. It fails if
// another event changed the phase meanwhile.
func (sm *StateMachine) advancePhase(from Phase) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.phase != from || from < PhaseAuthentication || from >= PhaseEstablished {
		return false
	}
	sm.setPhaseLocked(from + 1)
	return true
}

// authenticationPending reports whether either direction is still
// authenticating.
func (sm *StateMachine) authenticationPending() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.localAuth == AuthRequested || sm.peerAuth == AuthRequested
}
