package protocol

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// NeverMillis as a ScheduleActuator duration keeps the actuator on until told otherwise.
const NeverMillis uint32 = math.MaxUint32

// Never is the duration that encodes as NeverMillis.
const Never time.Duration = -1

// Preset is a named schedule choice offered by the menu.
type Preset struct {
	Label string
	Value time.Duration
}

// ConnectPresets are the switch-on offsets offered to the user.
var ConnectPresets = []Preset{
	{"now", 0},
	{"15m", 15 * time.Minute},
	{"30m", 30 * time.Minute},
	{"45m", 45 * time.Minute},
	{"1h", time.Hour},
	{"2h", 2 * time.Hour},
	{"4h", 4 * time.Hour},
	{"8h", 8 * time.Hour},
}

// DisconnectPresets are the on-durations offered to the user.
var DisconnectPresets = []Preset{
	{"never", Never},
	{"5m", 5 * time.Minute},
	{"15m", 15 * time.Minute},
	{"30m", 30 * time.Minute},
	{"45m", 45 * time.Minute},
	{"1h", time.Hour},
	{"2h", 2 * time.Hour},
	{"4h", 4 * time.Hour},
}

// LookupPreset finds label in presets.
func LookupPreset(presets []Preset, label string) (Preset, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, p := range presets {
		if p.Label == label {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, label)
}

// NewScheduleActuator builds a schedule from durations, rejecting values that
// do not fit the 32-bit millisecond fields. A duration of Never maps to NeverMillis.
func NewScheduleActuator(offset, duration time.Duration) (ScheduleActuator, error) {
	off, err := toMillis(offset)
	if err != nil {
		return ScheduleActuator{}, fmt.Errorf("offset: %w", err)
	}
	dur := NeverMillis
	if duration != Never {
		if dur, err = toMillis(duration); err != nil {
			return ScheduleActuator{}, fmt.Errorf("duration: %w", err)
		}
		if dur == NeverMillis {
			return ScheduleActuator{}, fmt.Errorf("duration: %w", ErrOutOfRange)
		}
	}
	return ScheduleActuator{Offset: off, Duration: dur}, nil
}

func toMillis(d time.Duration) (uint32, error) {
	if d < 0 {
		return 0, ErrOutOfRange
	}
	ms := d.Milliseconds()
	if ms > math.MaxUint32 {
		return 0, ErrOutOfRange
	}
	return uint32(ms), nil
}

// OffsetDuration returns the schedule offset as a time.Duration.
func (m ScheduleActuator) OffsetDuration() time.Duration {
	return time.Duration(m.Offset) * time.Millisecond
}

// OnDuration returns the on-duration, or Never for the NeverMillis sentinel.
func (m ScheduleActuator) OnDuration() time.Duration {
	if m.Duration == NeverMillis {
		return Never
	}
	return time.Duration(m.Duration) * time.Millisecond
}
