// Package nowhub is the core of a home-automation hub that pairs battery
// nodes over a connectionless radio link, collects their telemetry and
// drives their relays.
//
// The protocol, registry and transport packages hold the pieces; Hub wires
// them around a single owning goroutine.
package nowhub

import (
	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/registry"
	"github.com/ystepanoff/nowhub/transport"
)

// Re-export types for callers that only need the hub
type (
	Address         = protocol.Address
	NodeType        = protocol.NodeType
	NodeInfo        = protocol.NodeInfo
	DeviceInfo      = protocol.DeviceInfo
	FirmwareVersion = protocol.FirmwareVersion
	Sensor          = registry.Sensor
	Actuator        = registry.Actuator
	Status          = transport.Status
)

// Error constants exposed in the public API
var (
	ErrTransferDisabled   = transport.ErrTransferDisabled
	ErrNoSuchActuator     = transport.ErrNoSuchActuator
	ErrRadioUnrecoverable = transport.ErrRadioUnrecoverable
	ErrRegistryFull       = registry.ErrRegistryFull
)

// Constants exposed in the public API
const (
	NodeTypeTemperatureHumidity = protocol.NodeTypeTemperatureHumidity
	NodeTypeRelay               = protocol.NodeTypeRelay

	MaxDevices = protocol.MaxDevices
	Never      = protocol.Never
)
