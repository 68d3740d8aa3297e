// Package device provides the transports a PPP interface runs over: an
// in-memory pipe connecting two interfaces and a PPPoE session on a raw
// Ethernet socket.
package device

import "errors"

var (
	// ErrDown is returned when sending on a device that is not up.
	ErrDown = errors.New("device is down")

	// ErrClosed is returned when using a closed device.
	ErrClosed = errors.New("device is closed")

	// ErrUnsupported is returned by the PPPoE device on platforms without
	// AF_PACKET sockets.
	ErrUnsupported = errors.New("PPPoE session sockets require Linux")
)

// Handler receives notifications from a device. *ppp.Interface implements it.
type Handler interface {
	// TLSNotify is called before the device comes up. Returning false
	// aborts the attempt.
	TLSNotify() bool
	// TLFNotify is called before the device goes down.
	TLFNotify() bool
	UpEvent()
	UpFailedEvent()
	DownEvent()
	ReceiveFrame(frame []byte) error
}
