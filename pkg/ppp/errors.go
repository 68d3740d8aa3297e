package ppp

import "errors"

var (
	// ErrMalformedPacket is returned when a received packet fails structural validation.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrInvalidItem is returned when a configure item cannot be added to a packet.
	ErrInvalidItem = errors.New("invalid configure item")

	// ErrIndexOutOfRange is returned by ItemAt for an index past the last item.
	ErrIndexOutOfRange = errors.New("item index out of range")

	// ErrUnhandled is returned by an option handler that does not know how to
	// negotiate an item. The item is rejected.
	ErrUnhandled = errors.New("option not handled")

	// ErrNoDevice is returned when sending on an interface without a device.
	ErrNoDevice = errors.New("no device attached")

	// ErrDeviceDown is returned when sending while the device is down.
	ErrDeviceDown = errors.New("device is down")

	// ErrPacketTooLarge is returned when a packet exceeds the negotiated MRU.
	ErrPacketTooLarge = errors.New("packet exceeds MRU")

	// ErrLinkNotOpen is returned when sending a non-LCP packet before LCP is opened.
	ErrLinkNotOpen = errors.New("link not opened")

	// ErrProtocolDisabled is returned when sending on a protocol that is not enabled.
	ErrProtocolDisabled = errors.New("protocol disabled")
)
