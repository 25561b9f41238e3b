//go:build !tinygo && !baremetal

package stub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/nowhub/protocol"
)

var node = protocol.Address{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}

func TestSendRequiresInitAndPeer(t *testing.T) {
	d := New()
	assert.ErrorIs(t, d.Send(node, []byte{0x08}), ErrNotInitialised)

	require.NoError(t, d.Init())
	assert.ErrorIs(t, d.Send(node, []byte{0x08}), ErrPeerNotFound)

	require.NoError(t, d.AddPeer(node))
	require.NoError(t, d.Send(node, []byte{0x08}))
	assert.ErrorIs(t, d.Send(node, make([]byte, MaxFrameSize+1)), ErrFrameTooLarge)

	log := d.GetTxLog()
	require.Len(t, log, 1)
	assert.Equal(t, Transmission{To: node, Data: []byte{0x08}}, log[0])
}

func TestPeerTable(t *testing.T) {
	d := New()
	require.NoError(t, d.AddPeer(node))
	assert.ErrorIs(t, d.AddPeer(node), ErrPeerExists)
	require.NoError(t, d.AddBroadcastPeer())
	assert.True(t, d.HasPeer(protocol.BroadcastAddress))
	assert.Equal(t, 2, d.PeerCount())

	require.NoError(t, d.RemovePeer(node))
	assert.ErrorIs(t, d.RemovePeer(node), ErrPeerNotFound)

	d.SetFailAddPeer(node, true)
	assert.ErrorIs(t, d.AddPeer(node), ErrPeerRejected)
}

func TestSendCompletion(t *testing.T) {
	d := New()
	require.NoError(t, d.Init())
	require.NoError(t, d.AddPeer(node))

	var results []bool
	d.OnSendComplete(func(addr protocol.Address, ok bool) {
		assert.Equal(t, node, addr)
		results = append(results, ok)
	})
	var aired int
	d.SetAir(func(protocol.Address, []byte) bool {
		aired++
		return true
	})

	require.NoError(t, d.Send(node, []byte{0x08}))
	d.SetUnreachable(node, true)
	require.NoError(t, d.Send(node, []byte{0x08}))

	assert.Equal(t, []bool{true, false}, results)
	assert.Equal(t, 1, aired, "unreachable nodes never see the frame")

	d.SetRejectSend(node, true)
	assert.ErrorIs(t, d.Send(node, []byte{0x08}), ErrSendRejected)
	assert.Len(t, results, 2)

	d.SetRejectSend(node, false)
	d.SetUnreachable(node, false)
	d.SetAir(func(protocol.Address, []byte) bool { return false })
	require.NoError(t, d.Send(node, []byte{0x08}))
	assert.Equal(t, []bool{true, false, false}, results, "nobody listening")
}

func TestInjectRx(t *testing.T) {
	d := New()
	assert.False(t, d.InjectRx(node, []byte{1}))

	var got []byte
	d.OnReceive(func(addr protocol.Address, data []byte) { got = data })
	buf := []byte{1, 2, 3}
	require.True(t, d.InjectRx(node, buf))
	buf[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestReset(t *testing.T) {
	d := New()
	require.NoError(t, d.AddPeer(node))
	d.OnReceive(func(protocol.Address, []byte) {})

	d.SetFailReset(true)
	assert.ErrorIs(t, d.Reset(), ErrResetFailed)
	assert.True(t, d.HasPeer(node))

	d.SetFailReset(false)
	require.NoError(t, d.Reset())
	assert.Zero(t, d.PeerCount())
	assert.False(t, d.InjectRx(node, []byte{1}))
}

func TestTxLogBounded(t *testing.T) {
	d := New()
	require.NoError(t, d.Init())
	require.NoError(t, d.AddPeer(node))
	for i := 0; i < ringCapacity+10; i++ {
		require.NoError(t, d.Send(node, []byte{byte(i)}))
	}
	log := d.GetTxLog()
	require.Len(t, log, ringCapacity)
	assert.Equal(t, byte(10), log[0].Data[0])
	assert.Equal(t, byte(ringCapacity+9), log[len(log)-1].Data[0])

	d.ClearTxLog()
	assert.Empty(t, d.GetTxLog())
}
