package device

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

var _ ppp.Device = (*PPPoE)(nil)

// PPPoEOverhead is the PPPoE header size taken from the Ethernet MTU.
const PPPoEOverhead = 8

var errTimeout = errors.New("receive timeout")

// PPPoEConfig describes an established PPPoE session. Discovery (PADI to
// PADS) happens elsewhere; this device only carries the session stage.
type PPPoEConfig struct {
	Interface string           // Ethernet interface name
	LocalMAC  net.HardwareAddr // Our MAC address
	PeerMAC   net.HardwareAddr // Access concentrator or client MAC
	SessionID uint16           // PPPoE session ID
	MTU       int              // Ethernet MTU (default: 1500)
}

// PPPoE is a device carrying PPP frames in a PPPoE session (RFC 2516).
type PPPoE struct {
	config PPPoEConfig
	logger *zap.Logger

	handler   atomic.Pointer[handlerRef]
	up        atomic.Bool
	newSocket func() rawSocket

	mu     sync.Mutex
	sock   rawSocket
	stopCh chan struct{}
	wg     sync.WaitGroup

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
}

// NewPPPoE creates a PPPoE session device.
func NewPPPoE(config PPPoEConfig, logger *zap.Logger) (*PPPoE, error) {
	if config.Interface == "" {
		return nil, fmt.Errorf("pppoe: interface name required")
	}
	if len(config.PeerMAC) != 6 || len(config.LocalMAC) != 6 {
		return nil, fmt.Errorf("pppoe: local and peer MAC addresses required")
	}
	if config.SessionID == 0 || config.SessionID == 0xFFFF {
		return nil, fmt.Errorf("pppoe: invalid session ID %d", config.SessionID)
	}
	if config.MTU <= 0 {
		config.MTU = 1500
	}

	return &PPPoE{
		config:    config,
		logger:    logger,
		newSocket: newRawSocket,
	}, nil
}

// Attach sets the handler notified by the device.
func (d *PPPoE) Attach(h Handler) {
	d.handler.Store(&handlerRef{h: h})
}

func (d *PPPoE) notify() Handler {
	if ref := d.handler.Load(); ref != nil {
		return ref.h
	}
	return nil
}

func (d *PPPoE) Name() string { return d.config.Interface }

// MTU returns the largest PPP frame the session carries.
func (d *PPPoE) MTU() int { return d.config.MTU - PPPoEOverhead }

func (d *PPPoE) IsUp() bool { return d.up.Load() }

// Up opens the session socket and starts the receive loop.
func (d *PPPoE) Up() bool {
	h := d.notify()
	if h != nil && !h.TLSNotify() {
		return false
	}

	d.mu.Lock()
	if d.sock == nil {
		sock := d.newSocket()
		if err := sock.open(d.config.Interface, uint16(layers.EthernetTypePPPoESession)); err != nil {
			d.mu.Unlock()
			d.logger.Warn("Failed to open PPPoE session socket",
				zap.String("device", d.config.Interface),
				zap.Uint16("session_id", d.config.SessionID),
				zap.Error(err),
			)
			return false
		}
		d.sock = sock
		d.stopCh = make(chan struct{})
		d.wg.Add(1)
		go d.recvLoop(sock, d.stopCh)
	}
	d.up.Store(true)
	d.mu.Unlock()

	d.logger.Info("PPPoE session device up",
		zap.String("device", d.config.Interface),
		zap.Uint16("session_id", d.config.SessionID),
		zap.String("peer", d.config.PeerMAC.String()),
	)
	if h != nil {
		h.UpEvent()
	}
	return true
}

// Down stops the receive loop. The socket is closed by the loop itself, so
// Down may be called from a receive callback.
func (d *PPPoE) Down() bool {
	if !d.up.Load() {
		return true
	}
	h := d.notify()
	if h != nil {
		h.TLFNotify()
	}
	if !d.stop() {
		return true
	}

	d.logger.Info("PPPoE session device down",
		zap.String("device", d.config.Interface),
		zap.Uint16("session_id", d.config.SessionID),
	)
	if h != nil {
		h.DownEvent()
	}
	return true
}

func (d *PPPoE) stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.up.CompareAndSwap(true, false) {
		return false
	}
	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}
	d.sock = nil
	return true
}

// Close takes the device down and waits for the receive loop to exit.
func (d *PPPoE) Close() error {
	d.Down()
	d.wg.Wait()
	return nil
}

// Send wraps frame in Ethernet and PPPoE session headers.
func (d *PPPoE) Send(frame []byte) error {
	d.mu.Lock()
	sock := d.sock
	d.mu.Unlock()

	if sock == nil || !d.up.Load() {
		return ErrDown
	}
	if len(frame) > d.MTU() {
		return fmt.Errorf("pppoe: %d byte frame exceeds MTU %d", len(frame), d.MTU())
	}

	data, err := encodeSession(d.config.LocalMAC, d.config.PeerMAC, d.config.SessionID, frame)
	if err != nil {
		return err
	}
	if err := sock.send(d.config.PeerMAC, uint16(layers.EthernetTypePPPoESession), data); err != nil {
		return fmt.Errorf("pppoe send: %w", err)
	}
	d.framesOut.Add(1)
	return nil
}

// FramesIn returns the number of session frames delivered to the handler.
func (d *PPPoE) FramesIn() uint64 { return d.framesIn.Load() }

// FramesOut returns the number of session frames sent.
func (d *PPPoE) FramesOut() uint64 { return d.framesOut.Load() }

func (d *PPPoE) recvLoop(sock rawSocket, stopCh chan struct{}) {
	defer d.wg.Done()
	defer sock.close()

	buf := make([]byte, 65536)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := sock.recv(buf)
		if errors.Is(err, errTimeout) {
			continue
		}
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
			}
			d.logger.Warn("PPPoE receive failed, taking device down",
				zap.String("device", d.config.Interface),
				zap.Error(err),
			)
			go d.Down()
			return
		}

		frame, ok := d.accept(buf[:n])
		if !ok {
			continue
		}
		d.framesIn.Add(1)

		if h := d.notify(); h != nil {
			if err := h.ReceiveFrame(frame); err != nil {
				d.logger.Debug("Frame rejected",
					zap.String("device", d.config.Interface),
					zap.Error(err),
				)
			}
		}
	}
}

// accept decodes data and checks that it belongs to this session.
func (d *PPPoE) accept(data []byte) ([]byte, bool) {
	src, sessionID, frame, err := decodeSession(data)
	if err != nil {
		d.logger.Debug("Dropping non-session frame",
			zap.String("device", d.config.Interface),
			zap.Error(err),
		)
		return nil, false
	}
	if sessionID != d.config.SessionID || !bytes.Equal(src, d.config.PeerMAC) {
		return nil, false
	}
	return frame, true
}

// encodeSession builds an Ethernet frame carrying a PPPoE session packet.
func encodeSession(src, dst net.HardwareAddr, sessionID uint16, frame []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{
			SrcMAC:       src,
			DstMAC:       dst,
			EthernetType: layers.EthernetTypePPPoESession,
		},
		&layers.PPPoE{
			Version:   1,
			Type:      1,
			Code:      layers.PPPoECodeSession,
			SessionId: sessionID,
		},
		gopacket.Payload(frame),
	)
	if err != nil {
		return nil, fmt.Errorf("encode PPPoE session frame: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSession returns the source MAC, session ID and PPP frame of an
// Ethernet frame carrying a PPPoE session packet.
func decodeSession(data []byte) (net.HardwareAddr, uint16, []byte, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	eth, ok := packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return nil, 0, nil, fmt.Errorf("not an ethernet frame")
	}
	if eth.EthernetType != layers.EthernetTypePPPoESession {
		return nil, 0, nil, fmt.Errorf("unexpected ethertype %s", eth.EthernetType)
	}

	session, ok := packet.Layer(layers.LayerTypePPPoE).(*layers.PPPoE)
	if !ok {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return nil, 0, nil, fmt.Errorf("pppoe: %w", errLayer.Error())
		}
		return nil, 0, nil, fmt.Errorf("pppoe: no session header")
	}
	if session.Code != layers.PPPoECodeSession {
		return nil, 0, nil, fmt.Errorf("unexpected PPPoE code %s", session.Code)
	}
	return eth.SrcMAC, session.SessionId, session.LayerPayload(), nil
}
