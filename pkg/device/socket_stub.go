//go:build !linux

package device

import (
	"fmt"
	"net"
	"runtime"
)

// unsupportedSocket stands in for the AF_PACKET socket so the PPPoE device
// builds everywhere. Every Up fails, leaving the link in Starting.
type unsupportedSocket struct{}

func newRawSocket() rawSocket {
	return unsupportedSocket{}
}

func (unsupportedSocket) open(iface string, etherType uint16) error {
	return fmt.Errorf("%w: cannot bind %s for ethertype %#04x on %s", ErrUnsupported, iface, etherType, runtime.GOOS)
}

func (unsupportedSocket) close() error { return nil }

func (unsupportedSocket) recv([]byte) (int, error) {
	return 0, fmt.Errorf("%w: no session socket on %s", ErrUnsupported, runtime.GOOS)
}

func (unsupportedSocket) send(dst net.HardwareAddr, _ uint16, _ []byte) error {
	return fmt.Errorf("%w: cannot reach %s on %s", ErrUnsupported, dst, runtime.GOOS)
}
