package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Every message is a fixed-size, unpadded record:
//
//	+-----+------------------+----------+
//	| Tag |     Payload      | Checksum |
//	+-----+------------------+----------+
//	| 1 B | 0-8 B (per kind) | 1 B      |
//	+-----+------------------+----------+
//
// ConfirmRegistration and Ping are a bare tag with no checksum. Multi-byte
// fields are little-endian. The checksum covers every byte before it.

// Kind is the discriminant carried in the first byte of every message.
type Kind byte

const (
	KindSyncBroadcast       Kind = 0x55
	KindRegistration        Kind = 0xAA
	KindConfirmRegistration Kind = 0xCC
	KindTemperatureHumidity Kind = 0x1A
	KindSetActuator         Kind = 0xB3
	KindActuatorState       Kind = 0x26
	KindScheduleActuator    Kind = 0x33
	KindPing                Kind = 0x11
)

var kindNames = map[Kind]string{
	KindSyncBroadcast:       "sync-broadcast",
	KindRegistration:        "registration",
	KindConfirmRegistration: "confirm-registration",
	KindTemperatureHumidity: "temperature-humidity",
	KindSetActuator:         "set-actuator",
	KindActuatorState:       "actuator-state",
	KindScheduleActuator:    "schedule-actuator",
	KindPing:                "ping",
}

// Kinds lists the message set in tag order of the wire table.
var Kinds = []Kind{
	KindSyncBroadcast,
	KindRegistration,
	KindConfirmRegistration,
	KindTemperatureHumidity,
	KindSetActuator,
	KindActuatorState,
	KindScheduleActuator,
	KindPing,
}

// Size returns the exact on-air length of k, or 0 for an unknown tag.
func (k Kind) Size() int {
	switch k {
	case KindSyncBroadcast:
		return SyncBroadcastSize
	case KindRegistration:
		return RegistrationSize
	case KindConfirmRegistration:
		return ConfirmRegistrationSize
	case KindTemperatureHumidity:
		return TemperatureHumiditySize
	case KindSetActuator:
		return SetActuatorSize
	case KindActuatorState:
		return ActuatorStateSize
	case KindScheduleActuator:
		return ScheduleActuatorSize
	case KindPing:
		return PingSize
	}
	return 0
}

// HasChecksum reports whether records of kind k end in a checksum byte.
func (k Kind) HasChecksum() bool {
	switch k {
	case KindConfirmRegistration, KindPing:
		return false
	}
	return k.Size() > 0
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(0x%02X)", byte(k))
}

// ParseKind resolves a kind by its name as returned by String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Message is implemented by every record of the message set.
type Message interface {
	Kind() Kind
	// put writes the payload into buf, which is exactly Kind().Size() long.
	put(buf []byte)
}

// SyncBroadcast invites nodes in range to register during sync mode.
type SyncBroadcast struct {
	PairingCode uint32
}

// Registration is a node's answer to a SyncBroadcast.
type Registration struct {
	NodeType NodeType
	Firmware FirmwareVersion
}

// ConfirmRegistration acknowledges a Registration to the node that sent it.
type ConfirmRegistration struct{}

// TemperatureHumidity carries one reading of a temperature/humidity node.
type TemperatureHumidity struct {
	Temperature float32
	Humidity    float32
}

// SetActuator asks a relay node to switch to State.
type SetActuator struct {
	State bool
}

// ActuatorState reports the current state of a relay node.
type ActuatorState struct {
	State bool
}

// ScheduleActuator asks a relay node to switch on after Offset milliseconds
// and back off after Duration milliseconds. NeverMillis disables the switch-off.
type ScheduleActuator struct {
	Offset   uint32
	Duration uint32
}

// Ping is a liveness probe; delivery is observed through the send-completion callback.
type Ping struct{}

func (SyncBroadcast) Kind() Kind       { return KindSyncBroadcast }
func (Registration) Kind() Kind        { return KindRegistration }
func (ConfirmRegistration) Kind() Kind { return KindConfirmRegistration }
func (TemperatureHumidity) Kind() Kind { return KindTemperatureHumidity }
func (SetActuator) Kind() Kind         { return KindSetActuator }
func (ActuatorState) Kind() Kind       { return KindActuatorState }
func (ScheduleActuator) Kind() Kind    { return KindScheduleActuator }
func (Ping) Kind() Kind                { return KindPing }

func (m SyncBroadcast) put(b []byte) {
	binary.LittleEndian.PutUint32(b[1:5], m.PairingCode)
}

func (m Registration) put(b []byte) {
	b[1] = byte(m.NodeType)
	copy(b[2:2+FirmwareSize], m.Firmware[:])
}

func (ConfirmRegistration) put([]byte) {}

func (m TemperatureHumidity) put(b []byte) {
	binary.LittleEndian.PutUint32(b[1:5], math.Float32bits(m.Temperature))
	binary.LittleEndian.PutUint32(b[5:9], math.Float32bits(m.Humidity))
}

func (m SetActuator) put(b []byte) { b[1] = boolByte(m.State) }

func (m ActuatorState) put(b []byte) { b[1] = boolByte(m.State) }

func (m ScheduleActuator) put(b []byte) {
	binary.LittleEndian.PutUint32(b[1:5], m.Offset)
	binary.LittleEndian.PutUint32(b[5:9], m.Duration)
}

func (Ping) put([]byte) {}

// EncodeTo serialises m into buf without allocating and returns the number
// of bytes written, which is always m.Kind().Size().
func EncodeTo(buf []byte, m Message) (int, error) {
	k := m.Kind()
	n := k.Size()
	if len(buf) < n {
		return 0, ErrBufferTooSmall
	}
	b := buf[:n]
	for i := range b {
		b[i] = 0
	}
	b[0] = byte(k)
	m.put(b)
	if k.HasChecksum() {
		stamp(b)
	}
	return n, nil
}

// Encode serialises m into a new slice of exactly m.Kind().Size() bytes.
func Encode(m Message) []byte {
	buf := make([]byte, m.Kind().Size())
	_, _ = EncodeTo(buf, m)
	return buf
}

// Validate reports whether data is a well-formed record of kind k: the length
// matches exactly, the tag is k and, where the kind carries one, the checksum
// matches.
func Validate(k Kind, data []byte) bool {
	return check(k, data) == nil
}

func check(k Kind, data []byte) error {
	n := k.Size()
	if n == 0 {
		return ErrUnknownKind
	}
	if len(data) != n {
		return ErrInvalidLength
	}
	if Kind(data[0]) != k {
		return ErrUnexpectedKind
	}
	if k.HasChecksum() && !verify(data) {
		return ErrChecksumMismatch
	}
	return nil
}

func DecodeSyncBroadcast(data []byte) (SyncBroadcast, error) {
	if err := check(KindSyncBroadcast, data); err != nil {
		return SyncBroadcast{}, err
	}
	return SyncBroadcast{PairingCode: binary.LittleEndian.Uint32(data[1:5])}, nil
}

func DecodeRegistration(data []byte) (Registration, error) {
	if err := check(KindRegistration, data); err != nil {
		return Registration{}, err
	}
	m := Registration{NodeType: NodeType(data[1])}
	copy(m.Firmware[:], data[2:2+FirmwareSize])
	return m, nil
}

func DecodeTemperatureHumidity(data []byte) (TemperatureHumidity, error) {
	if err := check(KindTemperatureHumidity, data); err != nil {
		return TemperatureHumidity{}, err
	}
	return TemperatureHumidity{
		Temperature: math.Float32frombits(binary.LittleEndian.Uint32(data[1:5])),
		Humidity:    math.Float32frombits(binary.LittleEndian.Uint32(data[5:9])),
	}, nil
}

func DecodeSetActuator(data []byte) (SetActuator, error) {
	if err := check(KindSetActuator, data); err != nil {
		return SetActuator{}, err
	}
	return SetActuator{State: data[1] != 0}, nil
}

func DecodeActuatorState(data []byte) (ActuatorState, error) {
	if err := check(KindActuatorState, data); err != nil {
		return ActuatorState{}, err
	}
	return ActuatorState{State: data[1] != 0}, nil
}

func DecodeScheduleActuator(data []byte) (ScheduleActuator, error) {
	if err := check(KindScheduleActuator, data); err != nil {
		return ScheduleActuator{}, err
	}
	return ScheduleActuator{
		Offset:   binary.LittleEndian.Uint32(data[1:5]),
		Duration: binary.LittleEndian.Uint32(data[5:9]),
	}, nil
}

// Decode validates data against the kind named by its first byte and returns
// the decoded record.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrInvalidLength
	}
	var (
		m   Message
		err error
	)
	switch k := Kind(data[0]); k {
	case KindSyncBroadcast:
		m, err = DecodeSyncBroadcast(data)
	case KindRegistration:
		m, err = DecodeRegistration(data)
	case KindTemperatureHumidity:
		m, err = DecodeTemperatureHumidity(data)
	case KindSetActuator:
		m, err = DecodeSetActuator(data)
	case KindActuatorState:
		m, err = DecodeActuatorState(data)
	case KindScheduleActuator:
		m, err = DecodeScheduleActuator(data)
	case KindConfirmRegistration:
		m, err = ConfirmRegistration{}, check(k, data)
	case KindPing:
		m, err = Ping{}, check(k, data)
	default:
		return nil, ErrUnknownKind
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
