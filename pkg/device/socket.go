package device

import "net"

// rawSocket is a platform-specific link layer socket.
type rawSocket interface {
	open(iface string, etherType uint16) error
	close() error
	recv(buf []byte) (int, error)
	send(dstMAC net.HardwareAddr, etherType uint16, data []byte) error
}

// htons converts a short from host to network byte order.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
