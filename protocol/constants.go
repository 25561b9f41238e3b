package protocol

import "time"

// Generic link & protocol constants (platform independent). All higher layers should depend on this file.
const (
	// AddressSize is the length of a link-layer (MAC) address.
	AddressSize = 6

	// MaxDevices bounds the number of paired nodes the hub keeps.
	MaxDevices = 12

	// Sizes of individual components
	TagSize      = 1
	ChecksumSize = 1
	FirmwareSize = 3

	// Message sizes on air, tag and checksum included. Records are unpadded:
	// 6, 6, 1, 10, 3, 3, 10 and 1 bytes.
	SyncBroadcastSize       = TagSize + 4 + ChecksumSize
	RegistrationSize        = TagSize + 1 + FirmwareSize + ChecksumSize
	ConfirmRegistrationSize = TagSize
	TemperatureHumiditySize = TagSize + 4 + 4 + ChecksumSize
	SetActuatorSize         = TagSize + 1 + ChecksumSize
	ActuatorStateSize       = TagSize + 1 + ChecksumSize
	ScheduleActuatorSize    = TagSize + 4 + 4 + ChecksumSize
	PingSize                = TagSize

	// MaxMessageSize is the largest record in the message set.
	MaxMessageSize = TemperatureHumiditySize

	// Timeouts / intervals
	SyncModeTimeout        = 30 * time.Second
	SyncBroadcastInterval  = time.Second
	IndicatorBlinkInterval = 500 * time.Millisecond
	PingInterval           = time.Minute
	DeviceTimeout          = 5 * time.Minute

	// DefaultNodeName is given to nodes registered through sync mode.
	DefaultNodeName = "Secondary Node"

	// UnknownNodeName is reported by index lookups that fall out of range.
	UnknownNodeName = "Unknown Node"
)

// Sensor variables derived from a temperature/humidity node.
const (
	VariableTemperature = "Temp"
	VariableHumidity    = "Hum"

	UnitCelsius = "°C"
	UnitPercent = "%"
)
