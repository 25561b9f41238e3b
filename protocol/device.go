package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Address is the 6-byte link-layer address that identifies a node.
type Address [AddressSize]byte

// BroadcastAddress reaches every node in range. It is never a paired device.
var BroadcastAddress = Address{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

func (a Address) IsBroadcast() bool { return a == BroadcastAddress }

// ParseAddress accepts "AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff" or "aabbccddeeff".
func ParseAddress(s string) (Address, error) {
	var a Address
	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != AddressSize*2 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.Decode(a[:], []byte(clean)); err != nil {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return a, nil
}

// FirmwareVersion is a major.minor.patch triple.
type FirmwareVersion [FirmwareSize]byte

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// ParseFirmwareVersion parses "major.minor.patch" with each part in 0-255.
func ParseFirmwareVersion(s string) (FirmwareVersion, error) {
	var v FirmwareVersion
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != FirmwareSize {
		return v, fmt.Errorf("%w: %q", ErrInvalidFirmware, s)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return FirmwareVersion{}, fmt.Errorf("%w: %q", ErrInvalidFirmware, s)
		}
		v[i] = byte(n)
	}
	return v, nil
}

// NodeType tags what a node can do; it decides which sensor and actuator
// entries the hub derives for it.
type NodeType uint8

const (
	NodeTypeTemperatureHumidity NodeType = 0x01
	NodeTypeRelay               NodeType = 0x02
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeTemperatureHumidity:
		return "temperature-humidity"
	case NodeTypeRelay:
		return "relay"
	}
	return fmt.Sprintf("node-type(0x%02X)", uint8(t))
}

// IsSensor reports whether the node publishes sensor variables.
func (t NodeType) IsSensor() bool { return len(t.Variables()) > 0 }

// IsActuator reports whether the node drives an actuator.
func (t NodeType) IsActuator() bool { return t == NodeTypeRelay }

// Variable describes one sensor variable published by a node type.
type Variable struct {
	Name string
	Unit string
}

// Variables returns the sensor variables a node of type t publishes.
func (t NodeType) Variables() []Variable {
	if t == NodeTypeTemperatureHumidity {
		return []Variable{
			{Name: VariableTemperature, Unit: UnitCelsius},
			{Name: VariableHumidity, Unit: UnitPercent},
		}
	}
	return nil
}

// NodeInfo is the durable identity of a node, as kept by the configuration store.
type NodeInfo struct {
	Address  Address
	Type     NodeType
	Name     string
	Firmware FirmwareVersion
}

// DeviceInfo is a paired node held in memory with its last-seen timestamp.
type DeviceInfo struct {
	NodeInfo
	LastSeen time.Time
}

func NewDeviceInfo(info NodeInfo, now time.Time) DeviceInfo {
	return DeviceInfo{NodeInfo: info, LastSeen: now}
}

func (d *DeviceInfo) UpdateLastSeen(now time.Time) { d.LastSeen = now }

func (d DeviceInfo) IsAlive(now time.Time, timeout time.Duration) bool {
	return now.Sub(d.LastSeen) < timeout
}
