package registry

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/nowhub/protocol"
)

var errRadio = errors.New("radio rejected")

// fakePeers records the peer table and fails on demand.
type fakePeers struct {
	mu         sync.Mutex
	peers      map[protocol.Address]bool
	failAdd    map[protocol.Address]bool
	failRemove map[protocol.Address]bool
}

func newFakePeers() *fakePeers {
	return &fakePeers{
		peers:      make(map[protocol.Address]bool),
		failAdd:    make(map[protocol.Address]bool),
		failRemove: make(map[protocol.Address]bool),
	}
}

func (p *fakePeers) AddPeer(addr protocol.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAdd[addr] {
		return errRadio
	}
	p.peers[addr] = true
	return nil
}

func (p *fakePeers) RemovePeer(addr protocol.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failRemove[addr] {
		return errRadio
	}
	delete(p.peers, addr)
	return nil
}

func (p *fakePeers) has(addr protocol.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peers[addr]
}

func addr(last byte) protocol.Address {
	return protocol.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, last}
}

func thNode(last byte, name string) protocol.NodeInfo {
	return protocol.NodeInfo{
		Address:  addr(last),
		Type:     protocol.NodeTypeTemperatureHumidity,
		Name:     name,
		Firmware: protocol.FirmwareVersion{1, 0, 0},
	}
}

func relayNode(last byte, name string) protocol.NodeInfo {
	return protocol.NodeInfo{
		Address:  addr(last),
		Type:     protocol.NodeTypeRelay,
		Name:     name,
		Firmware: protocol.FirmwareVersion{2, 1, 0},
	}
}

func TestAddTemperatureHumidityDevice(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	peers := newFakePeers()
	r := New(peers, WithClock(func() time.Time { return now }))

	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))

	assert.Equal(t, 1, r.DeviceCount())
	assert.True(t, peers.has(addr(0x01)))

	d, ok := r.FindDevice(addr(0x01))
	require.True(t, ok)
	assert.Equal(t, "Kitchen", d.Name)
	assert.Equal(t, now, d.LastSeen)

	sensors := r.Sensors()
	require.Len(t, sensors, 2)
	assert.Equal(t, protocol.VariableTemperature, sensors[0].Variable)
	assert.Equal(t, protocol.VariableHumidity, sensors[1].Variable)
	for _, s := range sensors {
		assert.False(t, s.Connected)
		assert.Equal(t, "Kitchen", s.DeviceName)
		f, ok := s.Value.Float()
		assert.True(t, ok)
		assert.True(t, math.IsNaN(f))
	}
	assert.Zero(t, r.ActuatorCount())
}

func TestAddRelayDevice(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(relayNode(0x02, "Heater")))

	assert.Zero(t, r.SensorCount())
	require.Equal(t, 1, r.ActuatorCount())
	a := r.ActuatorAt(0)
	assert.Equal(t, addr(0x02), a.Address)
	assert.False(t, a.Connected)
	assert.False(t, a.State)
}

func TestAddUnknownNodeTypeDerivesNothing(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(protocol.NodeInfo{Address: addr(0x03), Type: 0x7F}))

	assert.Equal(t, 1, r.DeviceCount())
	assert.Zero(t, r.SensorCount())
	assert.Zero(t, r.ActuatorCount())
}

func TestAddDuplicateFails(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))

	err := r.AddDevice(thNode(0x01, "Kitchen again"))
	assert.ErrorIs(t, err, ErrDevicePaired)
	assert.Equal(t, 1, r.DeviceCount())
	assert.Equal(t, 2, r.SensorCount())
}

func TestAddBroadcastFails(t *testing.T) {
	peers := newFakePeers()
	r := New(peers)

	err := r.AddDevice(protocol.NodeInfo{Address: protocol.BroadcastAddress, Type: protocol.NodeTypeRelay})
	assert.ErrorIs(t, err, ErrBroadcastAddress)
	assert.Zero(t, r.DeviceCount())
	assert.False(t, peers.has(protocol.BroadcastAddress))
}

func TestCapacity(t *testing.T) {
	r := New(newFakePeers())
	for i := 0; i < protocol.MaxDevices; i++ {
		require.NoError(t, r.AddDevice(relayNode(byte(i), "relay")))
	}
	before := r.Devices()

	err := r.AddDevice(relayNode(0xF0, "thirteenth"))
	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.Equal(t, before, r.Devices())
	assert.Equal(t, protocol.MaxDevices, r.ActuatorCount())
}

func TestCapacityOption(t *testing.T) {
	r := New(newFakePeers(), WithCapacity(1))
	require.NoError(t, r.AddDevice(relayNode(0x01, "a")))
	assert.ErrorIs(t, r.AddDevice(relayNode(0x02, "b")), ErrRegistryFull)
}

func TestAddRollsBackOnPeerFailure(t *testing.T) {
	peers := newFakePeers()
	peers.failAdd[addr(0x01)] = true
	r := New(peers)

	err := r.AddDevice(thNode(0x01, "Kitchen"))
	assert.ErrorIs(t, err, ErrPeerAdd)
	assert.ErrorIs(t, err, errRadio)
	assert.Zero(t, r.DeviceCount())
	assert.Zero(t, r.SensorCount())
	assert.False(t, r.IsDevicePaired(addr(0x01)))
}

func TestRemoveDevice(t *testing.T) {
	peers := newFakePeers()
	r := New(peers)
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))

	require.NoError(t, r.RemoveDevice(addr(0x01)))
	assert.False(t, r.IsDevicePaired(addr(0x01)))
	assert.False(t, peers.has(addr(0x01)))
	assert.Equal(t, 2, r.SensorCount(), "entries are pruned by the caller")

	assert.Equal(t, 2, r.PruneEntries(addr(0x01)))
	assert.Zero(t, r.SensorCount())

	assert.ErrorIs(t, r.RemoveDevice(addr(0x01)), ErrDeviceNotFound)
}

func TestRemoveDeviceKeepsStateOnPeerFailure(t *testing.T) {
	peers := newFakePeers()
	r := New(peers)
	require.NoError(t, r.AddDevice(relayNode(0x02, "Heater")))
	peers.failRemove[addr(0x02)] = true

	err := r.RemoveDevice(addr(0x02))
	assert.ErrorIs(t, err, ErrPeerRemove)
	assert.True(t, r.IsDevicePaired(addr(0x02)))
	assert.True(t, peers.has(addr(0x02)))
}

func TestReAddAfterRemoveDoesNotDuplicateEntries(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))
	require.NoError(t, r.RemoveDevice(addr(0x01)))

	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))
	assert.Equal(t, 2, r.SensorCount())
}

func TestRemoveAllIsBestEffort(t *testing.T) {
	peers := newFakePeers()
	r := New(peers)
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))
	require.NoError(t, r.AddDevice(relayNode(0x02, "Heater")))
	require.NoError(t, r.AddDevice(relayNode(0x03, "Lamp")))
	peers.failRemove[addr(0x02)] = true

	err := r.RemoveAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPeerRemove)
	assert.Contains(t, err.Error(), "1 of 3")

	assert.Equal(t, []protocol.Address{addr(0x02)}, r.Addresses())
	assert.Zero(t, r.SensorCount())
	require.Equal(t, 1, r.ActuatorCount())
	assert.Equal(t, addr(0x02), r.ActuatorAt(0).Address)
	assert.False(t, peers.has(addr(0x01)))
	assert.False(t, peers.has(addr(0x03)))

	peers.failRemove[addr(0x02)] = false
	require.NoError(t, r.RemoveAll())
	assert.Zero(t, r.DeviceCount())
	assert.Zero(t, r.ActuatorCount())
}

func TestClear(t *testing.T) {
	peers := newFakePeers()
	r := New(peers)
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))

	r.Clear()
	assert.Zero(t, r.DeviceCount())
	assert.Zero(t, r.SensorCount())
	assert.True(t, peers.has(addr(0x01)), "Clear leaves the peer table alone")
}

func TestSensorDisconnectIsReversible(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))

	require.True(t, r.UpdateSensorData(addr(0x01), protocol.VariableTemperature, FloatValue(20)))
	require.True(t, r.DisconnectSensor(addr(0x01), protocol.VariableTemperature))
	assert.False(t, r.SensorAt(0).Connected)

	require.True(t, r.UpdateSensorData(addr(0x01), protocol.VariableTemperature, FloatValue(22.5)))
	s := r.SensorAt(0)
	assert.True(t, s.Connected)
	f, _ := s.Value.Float()
	assert.Equal(t, 22.5, f)
}

func TestDisconnectSensorsAndActuator(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))
	require.NoError(t, r.AddDevice(relayNode(0x02, "Heater")))
	r.UpdateSensorData(addr(0x01), protocol.VariableTemperature, FloatValue(20))
	r.UpdateSensorData(addr(0x01), protocol.VariableHumidity, FloatValue(50))
	r.UpdateActuatorState(addr(0x02), true)

	assert.Equal(t, 2, r.DisconnectSensors(addr(0x01)))
	assert.True(t, r.DisconnectActuator(addr(0x02)))

	for _, s := range r.Sensors() {
		assert.False(t, s.Connected)
	}
	a := r.ActuatorAt(0)
	assert.False(t, a.Connected)
	assert.True(t, a.State, "disconnect keeps the last known state")
	assert.Equal(t, 2, r.DeviceCount())
}

func TestUpdatesForUnknownAddressCreateNothing(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))

	assert.False(t, r.UpdateSensorData(addr(0x09), protocol.VariableTemperature, FloatValue(1)))
	assert.False(t, r.UpdateSensorData(addr(0x01), "Pressure", FloatValue(1)))
	assert.False(t, r.UpdateActuatorState(addr(0x01), true))
	assert.False(t, r.DisconnectSensor(addr(0x09), protocol.VariableTemperature))
	assert.False(t, r.DisconnectActuator(addr(0x09)))
	assert.False(t, r.UpdateDeviceLastSeen(addr(0x09)))

	assert.Equal(t, 1, r.DeviceCount())
	assert.Equal(t, 2, r.SensorCount())
	assert.Zero(t, r.ActuatorCount())
}

func TestUpdateDeviceLastSeen(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	r := New(newFakePeers(), WithClock(func() time.Time { return now }))
	require.NoError(t, r.AddDevice(relayNode(0x02, "Heater")))

	now = now.Add(time.Minute)
	require.True(t, r.UpdateDeviceLastSeen(addr(0x02)))

	d, _ := r.FindDevice(addr(0x02))
	assert.Equal(t, now, d.LastSeen)
}

func TestIndexPlaceholders(t *testing.T) {
	r := New(newFakePeers())

	for _, i := range []int{-1, 0, 5} {
		s := r.SensorAt(i)
		assert.Equal(t, protocol.UnknownNodeName, s.DeviceName)
		assert.False(t, s.Connected)
		assert.False(t, s.Value.Valid())

		a := r.ActuatorAt(i)
		assert.Equal(t, protocol.UnknownNodeName, a.DeviceName)
		assert.False(t, a.Connected)
		assert.False(t, a.State)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))

	sensors := r.Sensors()
	sensors[0].Connected = true
	devices := r.Devices()
	devices[0].Name = "changed"

	assert.False(t, r.SensorAt(0).Connected)
	d, _ := r.FindDevice(addr(0x01))
	assert.Equal(t, "Kitchen", d.Name)
}

func TestConcurrentAccess(t *testing.T) {
	r := New(newFakePeers())
	require.NoError(t, r.AddDevice(thNode(0x01, "Kitchen")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.UpdateSensorData(addr(0x01), protocol.VariableTemperature, FloatValue(float64(i*j)))
				r.UpdateDeviceLastSeen(addr(0x01))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Sensors()
				_ = r.SensorAt(0)
			}
		}()
	}
	wg.Wait()
	assert.True(t, r.SensorAt(0).Connected)
}
