package peers

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/adamgarcia4/rendezvous/barrier"
)

var ErrUnresolvable = errors.New("cannot resolve host")

// Resolver maps a hostname to the address its peer listens on.
type Resolver func(hostname string, port int) (netip.AddrPort, error)

// ResolveUDP looks hostname up once, preferring an IPv4 address.
func ResolveUDP(hostname string, port int) (netip.AddrPort, error) {
	hostport := net.JoinHostPort(hostname, strconv.Itoa(port))

	addr, err := net.ResolveUDPAddr("udp4", hostport)
	if err != nil {
		addr, err = net.ResolveUDPAddr("udp", hostport)
	}
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w %s: %v", ErrUnresolvable, hostname, err)
	}

	ap := addr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

// ResolveAll resolves every host in order. The first failure is returned.
func ResolveAll(hosts []string, port int, resolve Resolver) ([]barrier.Entry, error) {
	if resolve == nil {
		resolve = ResolveUDP
	}

	entries := make([]barrier.Entry, 0, len(hosts))
	for _, h := range hosts {
		addr, err := resolve(h, port)
		if err != nil {
			return nil, err
		}
		entries = append(entries, barrier.Entry{Hostname: h, Addr: addr})
	}
	return entries, nil
}

// StaticResolver resolves from a fixed table, for tests and simulations.
func StaticResolver(table map[string]netip.AddrPort) Resolver {
	return func(hostname string, _ int) (netip.AddrPort, error) {
		addr, ok := table[hostname]
		if !ok {
			return netip.AddrPort{}, fmt.Errorf("%w %s: not in table", ErrUnresolvable, hostname)
		}
		return addr, nil
	}
}
