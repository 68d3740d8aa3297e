package ppp

// Device is the transport beneath an interface. Up and Down start the
// transition and report its outcome through the interface's TLSNotify,
// UpEvent, UpFailedEvent, TLFNotify and DownEvent.
type Device interface {
	Name() string
	MTU() int
	IsUp() bool
	Up() bool
	Down() bool
	Send(frame []byte) error
}

// ProtocolState is the state of an upper-layer protocol.
type ProtocolState uint8

const (
	ProtocolDown ProtocolState = iota
	ProtocolGoingUp
	ProtocolUp
	ProtocolGoingDown
)

func (s ProtocolState) String() string {
	switch s {
	case ProtocolDown:
		return "Down"
	case ProtocolGoingUp:
		return "GoingUp"
	case ProtocolUp:
		return "Up"
	case ProtocolGoingDown:
		return "GoingDown"
	default:
		return "Unknown"
	}
}

// Protocol is an upper-layer protocol carried over the link, such as an
// authentication protocol or a network control protocol. Up is called once
// the link reaches ActivationPhase; the protocol reports completion through
// Interface.ProtocolUp or Interface.ProtocolUpFailed.
type Protocol interface {
	Name() string
	ProtocolNumber() uint16
	ActivationPhase() Phase
	IsEnabled() bool
	SetEnabled(enabled bool)
	State() ProtocolState
	Up() bool
	Down() bool
	Receive(packet []byte, protocol uint16) error
}
