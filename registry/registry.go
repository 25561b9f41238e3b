// Package registry keeps the bounded set of paired nodes and the sensor and
// actuator entries derived from them.
//
// Collections are ordered slices searched linearly by address: at most
// protocol.MaxDevices devices with at most two sensors each.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ystepanoff/nowhub/protocol"
)

var (
	ErrRegistryFull     = errors.New("registry is full")
	ErrDevicePaired     = errors.New("device already paired")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrBroadcastAddress = errors.New("broadcast address cannot be paired")
	ErrPeerAdd          = errors.New("failed to add peer")
	ErrPeerRemove       = errors.New("failed to remove peer")
)

// PeerTable is the part of the radio transport the registry keeps in step with.
// Every device in the registry is a registered peer.
type PeerTable interface {
	AddPeer(addr protocol.Address) error
	RemovePeer(addr protocol.Address) error
}

// Sensor is one published variable of a device.
type Sensor struct {
	Address    protocol.Address
	DeviceName string
	Connected  bool
	Variable   string
	Unit       string
	Value      Value
}

// Actuator is the switchable output of a device.
type Actuator struct {
	Address    protocol.Address
	DeviceName string
	Connected  bool
	State      bool
}

// Registry is safe for concurrent use. Mutations that touch the peer table
// change the peer table first and only then the in-memory collections.
type Registry struct {
	mu        sync.RWMutex
	peers     PeerTable
	capacity  int
	now       func() time.Time
	devices   []protocol.DeviceInfo
	sensors   []Sensor
	actuators []Actuator
}

type Option func(*Registry)

// WithCapacity overrides the device limit.
func WithCapacity(n int) Option {
	return func(r *Registry) { r.capacity = n }
}

// WithClock overrides the time source used for last-seen stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(peers PeerTable, opts ...Option) *Registry {
	r := &Registry{
		peers:    peers,
		capacity: protocol.MaxDevices,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddDevice pairs a node: it registers the peer at the transport and then
// records the device with the sensor and actuator entries its type implies.
// Nothing is recorded when the peer cannot be registered.
func (r *Registry) AddDevice(info protocol.NodeInfo) error {
	if info.Address.IsBroadcast() {
		return ErrBroadcastAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deviceIndex(info.Address) >= 0 {
		return fmt.Errorf("%w: %s", ErrDevicePaired, info.Address)
	}
	if len(r.devices) >= r.capacity {
		return ErrRegistryFull
	}
	if err := r.peers.AddPeer(info.Address); err != nil {
		return fmt.Errorf("%w %s: %w", ErrPeerAdd, info.Address, err)
	}

	r.devices = append(r.devices, protocol.NewDeviceInfo(info, r.now()))

	// Entries left behind by an earlier RemoveDevice are replaced, not duplicated.
	r.pruneLocked(info.Address)
	for _, v := range info.Type.Variables() {
		r.sensors = append(r.sensors, Sensor{
			Address:    info.Address,
			DeviceName: info.Name,
			Variable:   v.Name,
			Unit:       v.Unit,
			Value:      NoReading(),
		})
	}
	if info.Type.IsActuator() {
		r.actuators = append(r.actuators, Actuator{
			Address:    info.Address,
			DeviceName: info.Name,
		})
	}
	return nil
}

// RemoveDevice unregisters the peer and then drops the device. Sensor and
// actuator entries stay until PruneEntries is called for the address.
func (r *Registry) RemoveDevice(addr protocol.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.deviceIndex(addr)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, addr)
	}
	if err := r.peers.RemovePeer(addr); err != nil {
		return fmt.Errorf("%w %s: %w", ErrPeerRemove, addr, err)
	}
	r.devices = append(r.devices[:i], r.devices[i+1:]...)
	return nil
}

// PruneEntries drops the sensor and actuator entries of addr and returns how
// many were removed.
func (r *Registry) PruneEntries(addr protocol.Address) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked(addr)
}

// RemoveAll unpairs every device on a best-effort basis. Each peer removal is
// attempted; devices whose peer was removed are dropped with their entries,
// the others stay paired. The first failure is returned.
func (r *Registry) RemoveAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		first  error
		failed int
		kept   = r.devices[:0]
	)
	total := len(r.devices)
	for _, d := range r.devices {
		if err := r.peers.RemovePeer(d.Address); err != nil {
			if first == nil {
				first = fmt.Errorf("%w %s: %w", ErrPeerRemove, d.Address, err)
			}
			failed++
			kept = append(kept, d)
			continue
		}
		r.pruneLocked(d.Address)
	}
	for i := len(kept); i < total; i++ {
		r.devices[i] = protocol.DeviceInfo{}
	}
	r.devices = kept

	if first != nil {
		return fmt.Errorf("%d of %d peers not removed: %w", failed, total, first)
	}
	return nil
}

// Clear wipes the registry without touching the peer table. It is meant for
// use right after the transport itself dropped every peer.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = nil
	r.sensors = nil
	r.actuators = nil
}

// UpdateSensorData stores a reading and marks the sensor connected. Unknown
// (address, variable) pairs are ignored and reported as false.
func (r *Registry) UpdateSensorData(addr protocol.Address, variable string, v Value) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.sensorIndex(addr, variable)
	if i < 0 {
		return false
	}
	r.sensors[i].Value = v
	r.sensors[i].Connected = true
	return true
}

// UpdateActuatorState stores the reported state and marks the actuator connected.
func (r *Registry) UpdateActuatorState(addr protocol.Address, state bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.actuatorIndex(addr)
	if i < 0 {
		return false
	}
	r.actuators[i].State = state
	r.actuators[i].Connected = true
	return true
}

// DisconnectSensor marks one sensor unreachable without removing it.
func (r *Registry) DisconnectSensor(addr protocol.Address, variable string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.sensorIndex(addr, variable)
	if i < 0 {
		return false
	}
	r.sensors[i].Connected = false
	return true
}

// DisconnectSensors marks every sensor of addr unreachable and returns how many matched.
func (r *Registry) DisconnectSensors(addr protocol.Address) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for i := range r.sensors {
		if r.sensors[i].Address == addr {
			r.sensors[i].Connected = false
			n++
		}
	}
	return n
}

// DisconnectActuator marks the actuator of addr unreachable without removing it.
func (r *Registry) DisconnectActuator(addr protocol.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.actuatorIndex(addr)
	if i < 0 {
		return false
	}
	r.actuators[i].Connected = false
	return true
}

func (r *Registry) FindDevice(addr protocol.Address) (protocol.DeviceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.deviceIndex(addr)
	if i < 0 {
		return protocol.DeviceInfo{}, false
	}
	return r.devices[i], true
}

func (r *Registry) IsDevicePaired(addr protocol.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deviceIndex(addr) >= 0
}

// UpdateDeviceLastSeen stamps the device with the current time; unknown
// addresses are ignored.
func (r *Registry) UpdateDeviceLastSeen(addr protocol.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.deviceIndex(addr)
	if i < 0 {
		return false
	}
	r.devices[i].UpdateLastSeen(r.now())
	return true
}

func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Devices returns a snapshot of the paired devices in pairing order.
func (r *Registry) Devices() []protocol.DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]protocol.DeviceInfo(nil), r.devices...)
}

// Addresses returns the addresses of the paired devices in pairing order.
func (r *Registry) Addresses() []protocol.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Address, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.Address
	}
	return out
}

func (r *Registry) SensorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}

// Sensors returns a snapshot of the sensor entries.
func (r *Registry) Sensors() []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Sensor(nil), r.sensors...)
}

// SensorAt returns the sensor at index i, or a disconnected placeholder with
// no reading when i is out of range.
func (r *Registry) SensorAt(i int) Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.sensors) {
		return Sensor{DeviceName: protocol.UnknownNodeName, Value: NoReading()}
	}
	return r.sensors[i]
}

func (r *Registry) ActuatorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actuators)
}

// Actuators returns a snapshot of the actuator entries.
func (r *Registry) Actuators() []Actuator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Actuator(nil), r.actuators...)
}

// ActuatorAt returns the actuator at index i, or a disconnected, off
// placeholder when i is out of range.
func (r *Registry) ActuatorAt(i int) Actuator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.actuators) {
		return Actuator{DeviceName: protocol.UnknownNodeName}
	}
	return r.actuators[i]
}

func (r *Registry) deviceIndex(addr protocol.Address) int {
	for i := range r.devices {
		if r.devices[i].Address == addr {
			return i
		}
	}
	return -1
}

func (r *Registry) sensorIndex(addr protocol.Address, variable string) int {
	for i := range r.sensors {
		if r.sensors[i].Address == addr && r.sensors[i].Variable == variable {
			return i
		}
	}
	return -1
}

func (r *Registry) actuatorIndex(addr protocol.Address) int {
	for i := range r.actuators {
		if r.actuators[i].Address == addr {
			return i
		}
	}
	return -1
}

func (r *Registry) pruneLocked(addr protocol.Address) int {
	n := 0
	sensors := r.sensors[:0]
	for _, s := range r.sensors {
		if s.Address == addr {
			n++
			continue
		}
		sensors = append(sensors, s)
	}
	r.sensors = sensors

	actuators := r.actuators[:0]
	for _, a := range r.actuators {
		if a.Address == addr {
			n++
			continue
		}
		actuators = append(actuators, a)
	}
	r.actuators = actuators
	return n
}
