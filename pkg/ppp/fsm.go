package ppp

// This file implements the LCP option-negotiation automaton (RFC 1661
// Section 4) as a pure function over a transition table. The table knows
// nothing about packets, timers or devices: it maps (state, event) to a new
// state and an ordered list of actions the StateMachine executes.

// State is an RFC 1661 automaton state.
type State uint8

const (
	StateInitial  State = iota // Lower layer unavailable, no Open
	StateStarting              // Lower layer unavailable, Open
	StateClosed                // Lower layer available, no Open
	StateStopped               // Open, waiting for Configure-Request
	StateClosing               // Terminate-Request sent
	StateStopping              // Terminate-Request sent (from Opened)
	StateReqSent               // Configure-Request sent
	StateAckRcvd               // Configure-Request sent, Configure-Ack received
	StateAckSent               // Configure-Request and Configure-Ack sent
	StateOpened                // Connection fully established
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateStarting:
		return "Starting"
	case StateClosed:
		return "Closed"
	case StateStopped:
		return "Stopped"
	case StateClosing:
		return "Closing"
	case StateStopping:
		return "Stopping"
	case StateReqSent:
		return "Req-Sent"
	case StateAckRcvd:
		return "Ack-Rcvd"
	case StateAckSent:
		return "Ack-Sent"
	case StateOpened:
		return "Opened"
	default:
		return "Unknown"
	}
}

// needsTimer reports whether the restart timer runs in s.
func (s State) needsTimer() bool {
	switch s {
	case StateClosing, StateStopping, StateReqSent, StateAckRcvd, StateAckSent:
		return true
	default:
		return false
	}
}

// terminating reports whether s counts Terminate-Requests rather than
// Configure-Requests against its restart counter.
func (s State) terminating() bool {
	return s == StateClosing || s == StateStopping
}

// Phase is the link phase the interface is in.
type Phase uint8

const (
	PhaseConstructionDestruction Phase = iota // Being built or torn down, events ignored
	PhaseDown                                 // Device down
	PhaseEstablishment                        // LCP negotiating
	PhaseAuthentication                       // Authentication protocols running
	PhaseEstablished                          // Network protocols up
	PhaseTermination                          // Link being terminated
)

func (p Phase) String() string {
	switch p {
	case PhaseConstructionDestruction:
		return "ConstructionDestruction"
	case PhaseDown:
		return "Down"
	case PhaseEstablishment:
		return "Establishment"
	case PhaseAuthentication:
		return "Authentication"
	case PhaseEstablished:
		return "Established"
	case PhaseTermination:
		return "Termination"
	default:
		return "Unknown"
	}
}

// Event is an RFC 1661 automaton event.
type Event uint8

const (
	EventUp             Event = iota // Lower layer is Up
	EventDown                        // Lower layer is Down
	EventOpen                        // Administrative Open
	EventClose                       // Administrative Close
	EventTimeoutPlus                 // TO+: timeout with counter > 0
	EventTimeoutMinus                // TO-: timeout with counter expired
	EventRCRGood                     // RCR+: receive acceptable Configure-Request
	EventRCRBad                      // RCR-: receive unacceptable Configure-Request
	EventRCA                         // Receive Configure-Ack
	EventRCN                         // Receive Configure-Nak/Rej
	EventRTR                         // Receive Terminate-Request
	EventRTA                         // Receive Terminate-Ack
	EventRUC                         // Receive unknown code
	EventRXJGood                     // RXJ+: receive permitted Code-Reject or Protocol-Reject
	EventRXJBad                      // RXJ-: receive catastrophic Code-Reject or Protocol-Reject
	EventRXR                         // Receive Echo-Request, Echo-Reply or Discard-Request
)

func (e Event) String() string {
	switch e {
	case EventUp:
		return "Up"
	case EventDown:
		return "Down"
	case EventOpen:
		return "Open"
	case EventClose:
		return "Close"
	case EventTimeoutPlus:
		return "TO+"
	case EventTimeoutMinus:
		return "TO-"
	case EventRCRGood:
		return "RCR+"
	case EventRCRBad:
		return "RCR-"
	case EventRCA:
		return "RCA"
	case EventRCN:
		return "RCN"
	case EventRTR:
		return "RTR"
	case EventRTA:
		return "RTA"
	case EventRUC:
		return "RUC"
	case EventRXJGood:
		return "RXJ+"
	case EventRXJBad:
		return "RXJ-"
	case EventRXR:
		return "RXR"
	default:
		return "Unknown"
	}
}

// Action is a side effect of a transition, executed by the StateMachine in
// the order listed.
type Action uint8

const (
	ActionThisLayerUp          Action = iota + 1 // tlu
	ActionThisLayerDown                          // tld
	ActionThisLayerStarted                       // tls
	ActionThisLayerFinished                      // tlf
	ActionInitRestartCount                       // irc
	ActionZeroRestartCount                       // zrc
	ActionSendConfigureRequest                   // scr
	ActionSendConfigureAck                       // sca
	ActionSendConfigureNak                       // scn, Nak or Reject
	ActionSendTerminateRequest                   // str
	ActionSendTerminateAck                       // sta
	ActionSendCodeReject                         // scj
	ActionSendEchoReply                          // ser
)

func (a Action) String() string {
	switch a {
	case ActionThisLayerUp:
		return "tlu"
	case ActionThisLayerDown:
		return "tld"
	case ActionThisLayerStarted:
		return "tls"
	case ActionThisLayerFinished:
		return "tlf"
	case ActionInitRestartCount:
		return "irc"
	case ActionZeroRestartCount:
		return "zrc"
	case ActionSendConfigureRequest:
		return "scr"
	case ActionSendConfigureAck:
		return "sca"
	case ActionSendConfigureNak:
		return "scn"
	case ActionSendTerminateRequest:
		return "str"
	case ActionSendTerminateAck:
		return "sta"
	case ActionSendCodeReject:
		return "scj"
	case ActionSendEchoReply:
		return "ser"
	default:
		return "Unknown"
	}
}

type stateEvent struct {
	state State
	event Event
}

type transition struct {
	newState State
	actions  []Action
	// phase is applied when setPhase is true.
	phase    Phase
	setPhase bool
}

// FSMResult is the outcome of applying an event.
type FSMResult struct {
	OldState State
	NewState State
	Actions  []Action

	// Phase is the phase after the event; PhaseChanged marks a change.
	Phase        Phase
	PhaseChanged bool

	// Changed is true when NewState differs from OldState.
	Changed bool

	// Legal is false when the event has no meaning in OldState. Nothing
	// else in the result is meaningful then.
	Legal bool
}

func to(s State, actions ...Action) transition {
	return transition{newState: s, actions: actions}
}

func toPhase(s State, p Phase, actions ...Action) transition {
	return transition{newState: s, actions: actions, phase: p, setPhase: true}
}

// fsmTable is the RFC 1661 Section 4.1 state transition table. Pairs not
// listed are the table's "-" cells and are illegal.
//
//nolint:gochecknoglobals // transition table is package-level.
var fsmTable = map[stateEvent]transition{
	// Up
	{StateInitial, EventUp}:  to(StateClosed),
	{StateStarting, EventUp}: toPhase(StateReqSent, PhaseEstablishment,
		ActionInitRestartCount, ActionSendConfigureRequest),

	// Down. Stopped does not restart the lower layer; redial policy decides.
	{StateStarting, EventDown}: to(StateStarting),
	{StateClosed, EventDown}:   to(StateInitial),
	{StateStopped, EventDown}:  to(StateStarting),
	{StateClosing, EventDown}:  to(StateInitial),
	{StateStopping, EventDown}: to(StateStarting),
	{StateReqSent, EventDown}:  to(StateStarting),
	{StateAckRcvd, EventDown}:  to(StateStarting),
	{StateAckSent, EventDown}:  to(StateStarting),
	{StateOpened, EventDown}:   to(StateStarting, ActionThisLayerDown),

	// Open
	{StateInitial, EventOpen}:  to(StateStarting, ActionThisLayerStarted),
	{StateStarting, EventOpen}: to(StateStarting),
	{StateClosed, EventOpen}: toPhase(StateReqSent, PhaseEstablishment,
		ActionInitRestartCount, ActionSendConfigureRequest),
	{StateStopped, EventOpen}:  to(StateStopped),
	{StateClosing, EventOpen}:  to(StateStopping),
	{StateStopping, EventOpen}: to(StateStopping),
	{StateReqSent, EventOpen}:  to(StateReqSent),
	{StateAckRcvd, EventOpen}:  to(StateAckRcvd),
	{StateAckSent, EventOpen}:  to(StateAckSent),
	{StateOpened, EventOpen}:   to(StateOpened),

	// Close. Starting is resolved in ApplyEvent because it depends on phase.
	{StateInitial, EventClose}:  to(StateInitial),
	{StateStarting, EventClose}: to(StateInitial),
	{StateClosed, EventClose}:   to(StateClosed),
	{StateStopped, EventClose}:  to(StateStopped),
	{StateClosing, EventClose}:  to(StateClosing),
	{StateStopping, EventClose}: to(StateClosing),
	{StateReqSent, EventClose}: toPhase(StateClosing, PhaseTermination,
		ActionInitRestartCount, ActionSendTerminateRequest),
	{StateAckRcvd, EventClose}: toPhase(StateClosing, PhaseTermination,
		ActionInitRestartCount, ActionSendTerminateRequest),
	{StateAckSent, EventClose}: toPhase(StateClosing, PhaseTermination,
		ActionInitRestartCount, ActionSendTerminateRequest),
	{StateOpened, EventClose}: toPhase(StateClosing, PhaseTermination,
		ActionThisLayerDown, ActionInitRestartCount, ActionSendTerminateRequest),

	// TO+
	{StateClosing, EventTimeoutPlus}:  to(StateClosing, ActionSendTerminateRequest),
	{StateStopping, EventTimeoutPlus}: to(StateStopping, ActionSendTerminateRequest),
	{StateReqSent, EventTimeoutPlus}:  to(StateReqSent, ActionSendConfigureRequest),
	{StateAckRcvd, EventTimeoutPlus}:  to(StateReqSent, ActionSendConfigureRequest),
	{StateAckSent, EventTimeoutPlus}:  to(StateAckSent, ActionSendConfigureRequest),

	// TO-
	{StateClosing, EventTimeoutMinus}:  toPhase(StateClosed, PhaseTermination, ActionThisLayerFinished),
	{StateStopping, EventTimeoutMinus}: toPhase(StateStopped, PhaseTermination, ActionThisLayerFinished),
	{StateReqSent, EventTimeoutMinus}:  toPhase(StateStopped, PhaseTermination, ActionThisLayerFinished),
	{StateAckRcvd, EventTimeoutMinus}:  toPhase(StateStopped, PhaseTermination, ActionThisLayerFinished),
	{StateAckSent, EventTimeoutMinus}:  toPhase(StateStopped, PhaseTermination, ActionThisLayerFinished),

	// RCR+
	{StateClosed, EventRCRGood}: to(StateClosed, ActionSendTerminateAck),
	{StateStopped, EventRCRGood}: to(StateAckSent,
		ActionInitRestartCount, ActionSendConfigureRequest, ActionSendConfigureAck),
	{StateClosing, EventRCRGood}:  to(StateClosing),
	{StateStopping, EventRCRGood}: to(StateStopping),
	{StateReqSent, EventRCRGood}:  to(StateAckSent, ActionSendConfigureAck),
	{StateAckRcvd, EventRCRGood}:  to(StateOpened, ActionSendConfigureAck, ActionThisLayerUp),
	{StateAckSent, EventRCRGood}:  to(StateAckSent, ActionSendConfigureAck),
	{StateOpened, EventRCRGood}: toPhase(StateAckSent, PhaseEstablishment,
		ActionThisLayerDown, ActionSendConfigureRequest, ActionSendConfigureAck),

	// RCR-
	{StateClosed, EventRCRBad}: to(StateClosed, ActionSendTerminateAck),
	{StateStopped, EventRCRBad}: to(StateReqSent,
		ActionInitRestartCount, ActionSendConfigureRequest, ActionSendConfigureNak),
	{StateClosing, EventRCRBad}:  to(StateClosing),
	{StateStopping, EventRCRBad}: to(StateStopping),
	{StateReqSent, EventRCRBad}:  to(StateReqSent, ActionSendConfigureNak),
	{StateAckRcvd, EventRCRBad}:  to(StateAckRcvd, ActionSendConfigureNak),
	{StateAckSent, EventRCRBad}:  to(StateReqSent, ActionSendConfigureNak),
	{StateOpened, EventRCRBad}: toPhase(StateReqSent, PhaseEstablishment,
		ActionThisLayerDown, ActionSendConfigureRequest, ActionSendConfigureNak),

	// RCA
	{StateClosed, EventRCA}:   to(StateClosed, ActionSendTerminateAck),
	{StateStopped, EventRCA}:  to(StateStopped, ActionSendTerminateAck),
	{StateClosing, EventRCA}:  to(StateClosing),
	{StateStopping, EventRCA}: to(StateStopping),
	{StateReqSent, EventRCA}:  to(StateAckRcvd, ActionInitRestartCount),
	{StateAckRcvd, EventRCA}:  to(StateReqSent, ActionSendConfigureRequest),
	{StateAckSent, EventRCA}:  to(StateOpened, ActionInitRestartCount, ActionThisLayerUp),
	{StateOpened, EventRCA}: toPhase(StateReqSent, PhaseEstablishment,
		ActionThisLayerDown, ActionSendConfigureRequest),

	// RCN
	{StateClosed, EventRCN}:   to(StateClosed, ActionSendTerminateAck),
	{StateStopped, EventRCN}:  to(StateStopped, ActionSendTerminateAck),
	{StateClosing, EventRCN}:  to(StateClosing),
	{StateStopping, EventRCN}: to(StateStopping),
	{StateReqSent, EventRCN}:  to(StateReqSent, ActionInitRestartCount, ActionSendConfigureRequest),
	{StateAckRcvd, EventRCN}:  to(StateReqSent, ActionSendConfigureRequest),
	{StateAckSent, EventRCN}:  to(StateAckSent, ActionInitRestartCount, ActionSendConfigureRequest),
	{StateOpened, EventRCN}: toPhase(StateReqSent, PhaseEstablishment,
		ActionThisLayerDown, ActionSendConfigureRequest),

	// RTR
	{StateClosed, EventRTR}:   to(StateClosed, ActionSendTerminateAck),
	{StateStopped, EventRTR}:  to(StateStopped, ActionSendTerminateAck),
	{StateClosing, EventRTR}:  to(StateClosing, ActionSendTerminateAck),
	{StateStopping, EventRTR}: to(StateStopping, ActionSendTerminateAck),
	{StateReqSent, EventRTR}:  to(StateReqSent, ActionSendTerminateAck),
	{StateAckRcvd, EventRTR}:  toPhase(StateReqSent, PhaseTermination, ActionSendTerminateAck),
	{StateAckSent, EventRTR}:  toPhase(StateReqSent, PhaseTermination, ActionSendTerminateAck),
	{StateOpened, EventRTR}: toPhase(StateStopping, PhaseTermination,
		ActionThisLayerDown, ActionZeroRestartCount, ActionSendTerminateAck),

	// RTA
	{StateClosed, EventRTA}:   to(StateClosed),
	{StateStopped, EventRTA}:  to(StateStopped),
	{StateClosing, EventRTA}:  to(StateClosed, ActionThisLayerFinished),
	{StateStopping, EventRTA}: to(StateStopped, ActionThisLayerFinished),
	{StateReqSent, EventRTA}:  to(StateReqSent),
	{StateAckRcvd, EventRTA}:  to(StateReqSent),
	{StateAckSent, EventRTA}:  to(StateAckSent),
	{StateOpened, EventRTA}: toPhase(StateReqSent, PhaseEstablishment,
		ActionThisLayerDown, ActionSendConfigureRequest),

	// RUC
	{StateClosed, EventRUC}:   to(StateClosed, ActionSendCodeReject),
	{StateStopped, EventRUC}:  to(StateStopped, ActionSendCodeReject),
	{StateClosing, EventRUC}:  to(StateClosing, ActionSendCodeReject),
	{StateStopping, EventRUC}: to(StateStopping, ActionSendCodeReject),
	{StateReqSent, EventRUC}:  to(StateReqSent, ActionSendCodeReject),
	{StateAckRcvd, EventRUC}:  to(StateAckRcvd, ActionSendCodeReject),
	{StateAckSent, EventRUC}:  to(StateAckSent, ActionSendCodeReject),
	{StateOpened, EventRUC}:   to(StateOpened, ActionSendCodeReject),

	// RXJ+
	{StateClosed, EventRXJGood}:   to(StateClosed),
	{StateStopped, EventRXJGood}:  to(StateStopped),
	{StateClosing, EventRXJGood}:  to(StateClosing),
	{StateStopping, EventRXJGood}: to(StateStopping),
	{StateReqSent, EventRXJGood}:  to(StateReqSent),
	{StateAckRcvd, EventRXJGood}:  to(StateReqSent),
	{StateAckSent, EventRXJGood}:  to(StateAckSent),
	{StateOpened, EventRXJGood}:   to(StateOpened),

	// RXJ-
	{StateClosed, EventRXJBad}:   to(StateClosed, ActionThisLayerFinished),
	{StateStopped, EventRXJBad}:  to(StateStopped, ActionThisLayerFinished),
	{StateClosing, EventRXJBad}:  to(StateClosed, ActionThisLayerFinished),
	{StateStopping, EventRXJBad}: toPhase(StateStopped, PhaseTermination, ActionThisLayerFinished),
	{StateReqSent, EventRXJBad}:  toPhase(StateStopped, PhaseTermination, ActionThisLayerFinished),
	{StateAckRcvd, EventRXJBad}:  toPhase(StateStopped, PhaseTermination, ActionThisLayerFinished),
	{StateAckSent, EventRXJBad}:  toPhase(StateStopped, PhaseTermination, ActionThisLayerFinished),
	{StateOpened, EventRXJBad}: toPhase(StateStopping, PhaseTermination,
		ActionThisLayerDown, ActionInitRestartCount, ActionSendTerminateRequest),

	// RXR. Only Opened answers echoes.
	{StateClosed, EventRXR}:   to(StateClosed),
	{StateStopped, EventRXR}:  to(StateStopped),
	{StateClosing, EventRXR}:  to(StateClosing),
	{StateStopping, EventRXR}: to(StateStopping),
	{StateReqSent, EventRXR}:  to(StateReqSent),
	{StateAckRcvd, EventRXR}:  to(StateAckRcvd),
	{StateAckSent, EventRXR}:  to(StateAckSent),
	{StateOpened, EventRXR}:   to(StateOpened, ActionSendEchoReply),
}

// ApplyEvent applies event to state and returns the resulting transition.
// It has no side effects. An event with no table entry yields Legal=false
// and leaves state and phase untouched.
func ApplyEvent(state State, phase Phase, event Event) FSMResult {
	tr, ok := fsmTable[stateEvent{state: state, event: event}]
	if !ok {
		return FSMResult{OldState: state, NewState: state, Phase: phase}
	}

	// Closing while the lower layer is still coming up aborts it.
	if state == StateStarting && event == EventClose && phase == PhaseEstablishment {
		tr = toPhase(StateInitial, PhaseDown, ActionThisLayerFinished)
	}

	res := FSMResult{
		OldState: state,
		NewState: tr.newState,
		Actions:  tr.actions,
		Phase:    phase,
		Changed:  state != tr.newState,
		Legal:    true,
	}
	if tr.setPhase && tr.phase != phase {
		res.Phase = tr.phase
		res.PhaseChanged = true
	}
	return res
}
