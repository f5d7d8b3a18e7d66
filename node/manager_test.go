package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/rendezvous/barrier"
)

func TestClusterReachesBarrier(t *testing.T) {
	c := fastConfig()
	c.ExitOnReady = true

	m := NewManager(c)
	require.NoError(t, m.CreateCluster(context.Background(), 3, 0))
	defer m.StopAll()

	assert.Equal(t, []string{"node-1", "node-2", "node-3"}, m.Hostnames())
	require.Len(t, m.GetNodes(), 3)

	results := m.RunAll(context.Background())
	assert.Equal(t, map[string]barrier.State{
		"node-1": barrier.StateComplete,
		"node-2": barrier.StateComplete,
		"node-3": barrier.StateComplete,
	}, results)

	n, ok := m.GetNode("node-2")
	require.True(t, ok)
	select {
	case <-n.Ready():
	default:
		t.Fatal("node-2 not ready")
	}
	for _, p := range n.BarrierStatus().Peers {
		if !p.Self {
			assert.True(t, p.HeartbeatReceived && p.AckReceived, p.Hostname)
		}
	}
}

func TestClusterWithAbsentPeerTimesOut(t *testing.T) {
	c := fastConfig()
	c.TotalTimeout = 500 * time.Millisecond

	m := NewManager(c)
	require.NoError(t, m.CreateCluster(context.Background(), 3, 1))
	defer m.StopAll()

	_, ok := m.GetNode("node-3")
	assert.False(t, ok)

	start := time.Now()
	results := m.RunAll(context.Background())
	assert.Less(t, time.Since(start), c.TotalTimeout+time.Second)

	assert.Equal(t, map[string]barrier.State{
		"node-1": barrier.StateTimedOut,
		"node-2": barrier.StateTimedOut,
	}, results)

	// the reachable pair still proved liveness to each other
	n, _ := m.GetNode("node-1")
	for _, p := range n.BarrierStatus().Peers {
		switch p.Hostname {
		case "node-2":
			assert.True(t, p.HeartbeatReceived && p.AckReceived)
		case "node-3":
			assert.False(t, p.HeartbeatReceived || p.AckReceived)
		}
	}
}

func TestClusterCancel(t *testing.T) {
	m := NewManager(fastConfig())
	require.NoError(t, m.CreateCluster(context.Background(), 2, 1))
	defer m.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	results := m.RunAll(ctx)
	assert.Equal(t, barrier.StateTimedOut, results["node-1"])
}

func TestCreateClusterValidation(t *testing.T) {
	m := NewManager(nil)
	assert.Error(t, m.CreateCluster(context.Background(), 0, 0))
	assert.Error(t, m.CreateCluster(context.Background(), 2, 2))

	require.NoError(t, m.CreateCluster(context.Background(), 1, 0))
	defer m.StopAll()
	assert.Error(t, m.CreateCluster(context.Background(), 1, 0))
}
