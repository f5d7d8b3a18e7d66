package node

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/adamgarcia4/rendezvous/peers"
	"github.com/adamgarcia4/rendezvous/transport"
)

// Manager runs a whole peer set inside one process on loopback sockets.
// Every node gets its own ephemeral UDP port; a static resolver maps the
// generated hostnames to those ports.
type Manager struct {
	template *Config

	nodes     []*Node        // maintain order with slice
	nodeMap   map[string]int // map hostname to index for quick lookup
	hostnames []string
	mu        sync.RWMutex
}

// NewManager creates a manager whose nodes copy template's timing and policy.
// Identity, socket, and server addresses are assigned per node.
func NewManager(template *Config) *Manager {
	if template == nil {
		template = DefaultConfig()
	}
	return &Manager{
		template: template,
		nodeMap:  make(map[string]int),
	}
}

// CreateCluster starts size nodes named node-1..node-size. The last absent
// hostnames are listed in every peer set but never started, so the rest see
// them as unreachable.
func (m *Manager) CreateCluster(ctx context.Context, size, absent int) error {
	if size <= 0 {
		return fmt.Errorf("cluster size must be positive: %d", size)
	}
	if absent < 0 || absent >= size {
		return fmt.Errorf("absent must be in the range 0-%d: %d", size-1, absent)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.nodes) > 0 {
		return fmt.Errorf("cluster already created")
	}

	hostnames := make([]string, size)
	sockets := make([]*transport.UDP, size)
	table := make(map[string]netip.AddrPort, size)
	for i := range hostnames {
		hostnames[i] = fmt.Sprintf("node-%d", i+1)

		sock, err := transport.ListenUDP("127.0.0.1", 0)
		if err != nil {
			closeSockets(sockets)
			return fmt.Errorf("failed to bind %s: %w", hostnames[i], err)
		}
		sockets[i] = sock
		table[hostnames[i]] = sock.LocalAddr()
	}

	// absent peers keep no socket, so nothing answers on their port
	for i := size - absent; i < size; i++ {
		sockets[i].Close()
		sockets[i] = nil
	}

	resolver := peers.StaticResolver(table)
	for i := 0; i < size-absent; i++ {
		config := *m.template
		config.Hostname = hostnames[i]
		config.BindAddress = "127.0.0.1"
		config.Port = int(table[hostnames[i]].Port())
		config.EtcdEndpoints = nil
		config.StatusAddr = ""
		config.MetricsAddr = ""

		node, err := New(&config,
			WithHosts(hostnames),
			WithResolver(resolver),
			WithTransport(sockets[i]),
		)
		if err == nil {
			err = node.Start(ctx)
		}
		if err != nil {
			closeSockets(sockets[i:])
			m.stopLocked()
			return fmt.Errorf("failed to start %s: %w", hostnames[i], err)
		}

		m.nodes = append(m.nodes, node)
		m.nodeMap[hostnames[i]] = len(m.nodes) - 1
	}

	m.hostnames = hostnames
	return nil
}

// GetNodes returns a list of all started nodes (maintains order)
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to avoid race conditions
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// GetNode looks a started node up by hostname.
func (m *Manager) GetNode(hostname string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.nodeMap[hostname]
	if !ok {
		return nil, false
	}
	return m.nodes[i], true
}

// Hostnames returns the whole peer set, absent hosts included.
func (m *Manager) Hostnames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.hostnames...)
}

// RunAll runs every started node concurrently and returns each outcome.
func (m *Manager) RunAll(ctx context.Context) map[string]barrier.State {
	nodes := m.GetNodes()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]barrier.State, len(nodes))
	)
	for _, n := range nodes {
		wg.Add(1)
		go func(n *Node) {
			defer wg.Done()
			state, err := n.Run(ctx)
			if err != nil {
				state = barrier.StateTimedOut
			}
			mu.Lock()
			results[n.Hostname()] = state
			mu.Unlock()
		}(n)
	}
	wg.Wait()
	return results
}

// StopAll stops all nodes
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Manager) stopLocked() error {
	var errs []error
	for _, node := range m.nodes {
		if err := node.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	m.nodes = nil
	m.nodeMap = make(map[string]int)

	if len(errs) > 0 {
		return fmt.Errorf("errors stopping nodes: %v", errs)
	}
	return nil
}

func closeSockets(sockets []*transport.UDP) {
	for _, s := range sockets {
		if s != nil {
			s.Close()
		}
	}
}
