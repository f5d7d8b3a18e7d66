package transport

import (
	"context"
	"testing"
	"time"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus struct {
	st barrier.Status
}

func (s staticStatus) BarrierStatus() barrier.Status { return s.st }

func sampleStatus() barrier.Status {
	return barrier.Status{
		State:   barrier.StateRunning,
		Elapsed: 1500 * time.Millisecond,
		Peers: []barrier.PeerStatus{
			{Hostname: "a", Addr: "10.0.0.1:8888", Self: true},
			{Hostname: "b", Addr: "10.0.0.2:8888", HeartbeatReceived: true, LastSent: time.Date(2024, 1, 1, 0, 0, 2, 0, time.UTC)},
		},
	}
}

func TestNewGRPCValidation(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		hostname string
		status   StatusProvider
	}{
		{"empty address", "", "a", staticStatus{}},
		{"no port", "localhost", "a", staticStatus{}},
		{"no hostname", "127.0.0.1:0", "", staticStatus{}},
		{"no provider", "127.0.0.1:0", "a", nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewGRPC(test.addr, test.hostname, "run", test.status)
			assert.Error(t, err)
		})
	}
}

func TestStatusRoundTrip(t *testing.T) {
	s, err := StatusToStruct("a", "run-1", sampleStatus())
	require.NoError(t, err)

	report := StatusFromStruct(s)
	assert.Equal(t, "a", report.Hostname)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "RUNNING", report.State)
	assert.Equal(t, 1500*time.Millisecond, report.Elapsed)
	assert.Equal(t, sampleStatus().Peers, report.Peers)
}

func TestStatusServer(t *testing.T) {
	g, err := NewGRPC("127.0.0.1:0", "a", "run-1", staticStatus{st: sampleStatus()})
	require.NoError(t, err)
	require.NoError(t, g.Start())
	t.Cleanup(func() { g.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := FetchStatus(ctx, g.Addr())
	require.NoError(t, err)
	assert.Equal(t, "a", report.Hostname)
	assert.Equal(t, "RUNNING", report.State)
	assert.False(t, report.Serving)
	require.Len(t, report.Peers, 2)
	assert.True(t, report.Peers[1].HeartbeatReceived)

	g.SetServing(true)
	report, err = FetchStatus(ctx, g.Addr())
	require.NoError(t, err)
	assert.True(t, report.Serving)
}

func TestStartPortInUse(t *testing.T) {
	first, err := NewGRPC("127.0.0.1:0", "a", "run", staticStatus{})
	require.NoError(t, err)
	require.NoError(t, first.Start())
	t.Cleanup(func() { first.Stop() })

	second, err := NewGRPC(first.Addr(), "b", "run", staticStatus{})
	require.NoError(t, err)
	assert.Error(t, second.Start())
}
