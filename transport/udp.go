package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/adamgarcia4/rendezvous/barrier"
)

// maxDatagram is larger than any message we send; longer payloads are
// truncated and then rejected as unknown by the coordinator.
const maxDatagram = 512

// UDP is the single socket a node uses for both sending and receiving.
type UDP struct {
	conn *net.UDPConn
	buf  []byte
}

var _ barrier.Transport = (*UDP)(nil)

// ListenUDP binds bindAddr:port. An empty bindAddr listens on all interfaces.
func ListenUDP(bindAddr string, port int) (*UDP, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", port)
	}

	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(bindAddr, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	return &UDP{
		conn: conn,
		buf:  make([]byte, maxDatagram),
	}, nil
}

// Send writes one datagram. Delivery is not guaranteed.
func (u *UDP) Send(addr netip.AddrPort, payload []byte) error {
	_, err := u.conn.WriteToUDPAddrPort(payload, addr)
	return err
}

// Poll waits up to timeout for one datagram. A passed deadline is not an error.
func (u *UDP) Poll(timeout time.Duration) (barrier.Datagram, bool, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return barrier.Datagram{}, false, err
	}

	n, from, err := u.conn.ReadFromUDPAddrPort(u.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return barrier.Datagram{}, false, nil
		}
		return barrier.Datagram{}, false, err
	}

	payload := make([]byte, n)
	copy(payload, u.buf[:n])
	return barrier.Datagram{Payload: payload, From: from}, true, nil
}

// LocalAddr returns the bound address, useful when port 0 was requested.
func (u *UDP) LocalAddr() netip.AddrPort {
	ap := u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
