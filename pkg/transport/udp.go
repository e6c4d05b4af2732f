// Package transport implements the UDP locator-to-socket mapping RTPS runs
// over: one PacketConn per unicast locator, plus multicast group membership
// for discovery traffic.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// ReceivedPacket is one inbound UDP datagram, tagged with where it came
// from so the message receiver can reply to it.
type ReceivedPacket struct {
	Data []byte
	From net.Addr
}

// UDPTransport owns a single UDP socket and the goroutine reading from it.
// Locators map onto sockets the way the teacher's Server maps listen
// addresses onto accept loops: one Start, one read loop, one Close.
type UDPTransport struct {
	logger zerolog.Logger

	conn    *net.UDPConn
	locator rtpstypes.Locator

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewUDPUnicastTransport binds a UDP socket on the given port across all
// interfaces, matching the teacher's preference for a plain net.Listen over
// custom socket options, which caused bind issues in containers.
func NewUDPUnicastTransport(logger zerolog.Logger, port uint16) (*UDPTransport, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: int(port)}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	loc := rtpstypes.NewLocatorUDPv4([4]byte{}, uint32(localAddr.Port))
	return &UDPTransport{logger: logger.With().Str("component", "transport").Uint16("port", port).Logger(), conn: conn, locator: loc}, nil
}

// NewUDPMulticastTransport binds a UDP socket and joins the given multicast
// group, as SPDP requires for peer discovery.
func NewUDPMulticastTransport(logger zerolog.Logger, group net.IP, port uint16, iface *net.Interface) (*UDPTransport, error) {
	addr := &net.UDPAddr{IP: group, Port: int(port)}
	conn, err := net.ListenMulticastUDP("udp4", iface, addr)
	if err != nil {
		return nil, fmt.Errorf("listen multicast udp: %w", err)
	}
	groupV4 := group.To4()
	loc := rtpstypes.NewLocatorUDPv4([4]byte{groupV4[0], groupV4[1], groupV4[2], groupV4[3]}, uint32(port))
	return &UDPTransport{logger: logger.With().Str("component", "transport").Str("group", group.String()).Logger(), conn: conn, locator: loc}, nil
}

// Locator returns the locator this transport listens on.
func (t *UDPTransport) Locator() rtpstypes.Locator { return t.locator }

// ReadLoop reads datagrams until ctx is cancelled or the socket is closed,
// delivering each to handle.
func (t *UDPTransport) ReadLoop(ctx context.Context, handle func(ReceivedPacket)) {
	t.wg.Add(1)
	defer t.wg.Done()

	buf := make([]byte, 65507)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, from, err := t.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			t.logger.Debug().Err(err).Msg("read error")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		handle(ReceivedPacket{Data: data, From: from})
	}
}

// SendTo writes data to the given UDP address.
func (t *UDPTransport) SendTo(data []byte, addr *net.UDPAddr) error {
	_, err := t.conn.WriteTo(data, addr)
	return err
}

// Close shuts down the socket and waits for the read loop to exit.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	err := t.conn.Close()
	t.wg.Wait()
	return err
}

// LocatorToUDPAddr converts an RTPS locator to a net.UDPAddr for sending.
func LocatorToUDPAddr(loc rtpstypes.Locator) (*net.UDPAddr, error) {
	switch loc.Kind {
	case rtpstypes.LocatorKindUDPv4:
		ip := net.IPv4(loc.Address[12], loc.Address[13], loc.Address[14], loc.Address[15])
		return &net.UDPAddr{IP: ip, Port: int(loc.Port)}, nil
	case rtpstypes.LocatorKindUDPv6:
		ip := make(net.IP, 16)
		copy(ip, loc.Address[:])
		return &net.UDPAddr{IP: ip, Port: int(loc.Port)}, nil
	default:
		return nil, fmt.Errorf("unsupported locator kind %d", loc.Kind)
	}
}
