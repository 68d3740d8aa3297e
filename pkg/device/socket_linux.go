//go:build linux

package device

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// linuxRawSocket implements rawSocket using AF_PACKET
type linuxRawSocket struct {
	fd      int
	ifindex int
}

// newRawSocket creates a new platform-specific raw socket
func newRawSocket() rawSocket {
	return &linuxRawSocket{fd: -1}
}

// open opens the raw socket and binds to the interface
func (s *linuxRawSocket) open(iface string, etherType uint16) error {
	netIface, err := net.InterfaceByName(iface)
	if err != nil {
		return err
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(htons(etherType)))
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(etherType),
		Ifindex:  netIface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind %s: %w", iface, err)
	}

	// A receive timeout lets the read loop notice Down.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set receive timeout: %w", err)
	}

	s.fd = fd
	s.ifindex = netIface.Index
	return nil
}

// close closes the raw socket
func (s *linuxRawSocket) close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// recv receives a frame, returning errTimeout when none arrived in time.
func (s *linuxRawSocket) recv(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return 0, errTimeout
	}
	return n, err
}

// send sends a frame on the socket
func (s *linuxRawSocket) send(dstMAC net.HardwareAddr, etherType uint16, data []byte) error {
	addr := unix.SockaddrLinklayer{
		Protocol: htons(etherType),
		Ifindex:  s.ifindex,
		Halen:    6,
	}
	copy(addr.Addr[:], dstMAC)

	return unix.Sendto(s.fd, data, 0, &addr)
}
