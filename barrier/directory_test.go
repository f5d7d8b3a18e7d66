package barrier

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirectory(t *testing.T) {
	tests := []struct {
		name      string
		entries   []Entry
		self      string
		wantErr   error
		wantLen   int
		wantPeers []string
	}{
		{"three hosts", threeHosts(), "b", nil, 3, []string{"a", "c"}},
		{"self only", []Entry{{Hostname: "a", Addr: addrA}}, "a", nil, 1, []string{}},
		{"duplicate keeps first", append(threeHosts(), Entry{Hostname: "b", Addr: addrC}), "a", nil, 3, []string{"b", "c"}},
		{"self missing", threeHosts(), "z", ErrSelfNotFound, 0, nil},
		{"empty", nil, "a", ErrNoPeers, 0, nil},
		{"empty hostname", []Entry{{Hostname: "", Addr: addrA}}, "a", ErrEmptyHost, 0, nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, err := NewDirectory(test.entries, test.self)
			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.wantLen, d.Len())
			assert.Equal(t, test.self, d.Self().Hostname)
			assert.True(t, d.Self().IsSelf())

			names := []string{}
			for _, p := range d.Peers() {
				names = append(names, p.Hostname)
			}
			assert.Equal(t, test.wantPeers, names)
		})
	}
}

func TestDuplicateKeepsFirstAddress(t *testing.T) {
	d, err := NewDirectory(append(threeHosts(), Entry{Hostname: "b", Addr: addrC}), "a")
	require.NoError(t, err)

	p, ok := d.LookupBySender(addrB)
	require.True(t, ok)
	assert.Equal(t, "b", p.Hostname)
}

func TestLookupBySender(t *testing.T) {
	d, err := NewDirectory(threeHosts(), "a")
	require.NoError(t, err)

	tests := []struct {
		name   string
		addr   netip.AddrPort
		wantOK bool
		want   string
	}{
		{"configured peer", addrB, true, "b"},
		{"ipv4-mapped", netip.MustParseAddrPort("[::ffff:10.0.0.3]:8888"), true, "c"},
		{"self is never matched", addrA, false, ""},
		{"unknown ip", netip.MustParseAddrPort("10.9.9.9:8888"), false, ""},
		{"known ip wrong port", netip.MustParseAddrPort("10.0.0.2:9999"), false, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, ok := d.LookupBySender(test.addr)
			assert.Equal(t, test.wantOK, ok)
			if test.wantOK {
				assert.Equal(t, test.want, p.Hostname)
			}
		})
	}
}

func TestMarkIsIdempotentAndMonotonic(t *testing.T) {
	d, err := NewDirectory(threeHosts(), "a")
	require.NoError(t, err)
	b, _ := d.LookupBySender(addrB)

	assert.True(t, d.MarkHeartbeatReceived(b))
	assert.False(t, d.MarkHeartbeatReceived(b))
	assert.True(t, b.HeartbeatReceived)

	assert.True(t, d.MarkAckReceived(b))
	assert.False(t, d.MarkAckReceived(b))
	assert.True(t, b.AckReceived)

	// marking one flag again never clears the other
	d.MarkHeartbeatReceived(b)
	assert.True(t, b.AckReceived)
	assert.True(t, b.Live())
}

func TestIsBarrierComplete(t *testing.T) {
	solo, err := NewDirectory([]Entry{{Hostname: "a", Addr: addrA}}, "a")
	require.NoError(t, err)
	assert.True(t, solo.IsBarrierComplete(), "self-only set is vacuously complete")

	d, err := NewDirectory(threeHosts(), "a")
	require.NoError(t, err)
	assert.False(t, d.IsBarrierComplete())

	b, _ := d.LookupBySender(addrB)
	c, _ := d.LookupBySender(addrC)
	d.MarkHeartbeatReceived(b)
	d.MarkAckReceived(b)
	d.MarkHeartbeatReceived(c)
	assert.False(t, d.IsBarrierComplete(), "c has not acked")

	d.MarkAckReceived(c)
	assert.True(t, d.IsBarrierComplete())
}

func TestSnapshotIsACopy(t *testing.T) {
	d, err := NewDirectory(threeHosts(), "a")
	require.NoError(t, err)

	snap := d.Snapshot()
	require.Len(t, snap, 3)
	assert.True(t, snap[0].Self)
	assert.Equal(t, "10.0.0.2:8888", snap[1].Addr)

	b, _ := d.LookupBySender(addrB)
	d.MarkHeartbeatReceived(b)
	assert.False(t, snap[1].HeartbeatReceived)
	assert.True(t, d.Snapshot()[1].HeartbeatReceived)
}
