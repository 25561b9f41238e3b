package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ystepanoff/nowhub/protocol"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Validate and print a radio frame",
		Long: "Validate and print a radio frame given as hex.\n" +
			"usage:\n" +
			"\tnowhub decode 1a0000ac410000204288",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			m, err := protocol.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %x: %w", data, err)
			}
			printf(cmd, "%s\n", describe(m))
			return nil
		},
	}
}

func newEncodeCmd() *cobra.Command {
	kinds := make([]string, 0, len(protocol.Kinds))
	for _, k := range protocol.Kinds {
		kinds = append(kinds, k.String())
	}

	return &cobra.Command{
		Use:   "encode <kind> [args]",
		Short: "Build a radio frame and print it as hex",
		Long: "Build a radio frame and print it as hex.\n" +
			"kinds: " + strings.Join(kinds, ", ") + "\n" +
			"usage:\n" +
			"\tnowhub encode sync-broadcast <code>\n" +
			"\tnowhub encode registration <node-type> <major.minor.patch>\n" +
			"\tnowhub encode temperature-humidity <celsius> <percent>\n" +
			"\tnowhub encode set-actuator on|off\n" +
			"\tnowhub encode actuator-state on|off\n" +
			"\tnowhub encode schedule-actuator <offset> <duration>\n" +
			"\tnowhub encode confirm-registration|ping",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := protocol.ParseKind(args[0])
			if err != nil {
				return err
			}
			m, err := buildMessage(k, args[1:])
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			printf(cmd, "%s\n", hex.EncodeToString(protocol.Encode(m)))
			return nil
		},
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "").Replace(strings.ToLower(s))
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}

func buildMessage(k protocol.Kind, args []string) (protocol.Message, error) {
	want := map[protocol.Kind]int{
		protocol.KindSyncBroadcast:       1,
		protocol.KindRegistration:        2,
		protocol.KindConfirmRegistration: 0,
		protocol.KindTemperatureHumidity: 2,
		protocol.KindSetActuator:         1,
		protocol.KindActuatorState:       1,
		protocol.KindScheduleActuator:    2,
		protocol.KindPing:                0,
	}
	if n := want[k]; len(args) != n {
		return nil, fmt.Errorf("want %d arguments, got %d", n, len(args))
	}

	switch k {
	case protocol.KindSyncBroadcast:
		code, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return nil, err
		}
		return protocol.SyncBroadcast{PairingCode: uint32(code)}, nil
	case protocol.KindRegistration:
		t, err := parseNodeType(args[0])
		if err != nil {
			return nil, err
		}
		fw, err := protocol.ParseFirmwareVersion(args[1])
		if err != nil {
			return nil, err
		}
		return protocol.Registration{NodeType: t, Firmware: fw}, nil
	case protocol.KindConfirmRegistration:
		return protocol.ConfirmRegistration{}, nil
	case protocol.KindTemperatureHumidity:
		temp, err := strconv.ParseFloat(args[0], 32)
		if err != nil {
			return nil, err
		}
		hum, err := strconv.ParseFloat(args[1], 32)
		if err != nil {
			return nil, err
		}
		return protocol.TemperatureHumidity{Temperature: float32(temp), Humidity: float32(hum)}, nil
	case protocol.KindSetActuator:
		on, err := parseOnOff(args[0])
		return protocol.SetActuator{State: on}, err
	case protocol.KindActuatorState:
		on, err := parseOnOff(args[0])
		return protocol.ActuatorState{State: on}, err
	case protocol.KindScheduleActuator:
		offset, err := parseSchedule(protocol.ConnectPresets, args[0])
		if err != nil {
			return nil, err
		}
		duration, err := parseSchedule(protocol.DisconnectPresets, args[1])
		if err != nil {
			return nil, err
		}
		return protocol.NewScheduleActuator(offset, duration)
	case protocol.KindPing:
		return protocol.Ping{}, nil
	}
	return nil, protocol.ErrUnknownKind
}

func parseNodeType(s string) (protocol.NodeType, error) {
	switch strings.ToLower(s) {
	case "thermometer", protocol.NodeTypeTemperatureHumidity.String():
		return protocol.NodeTypeTemperatureHumidity, nil
	case protocol.NodeTypeRelay.String():
		return protocol.NodeTypeRelay, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid node type %q", s)
	}
	return protocol.NodeType(n), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}

// parseSchedule accepts a preset label or any Go duration.
func parseSchedule(presets []protocol.Preset, s string) (time.Duration, error) {
	if p, err := protocol.LookupPreset(presets, s); err == nil {
		return p.Value, nil
	}
	return time.ParseDuration(s)
}

func describe(m protocol.Message) string {
	switch m := m.(type) {
	case protocol.SyncBroadcast:
		return fmt.Sprintf("%s code=0x%08X", m.Kind(), m.PairingCode)
	case protocol.Registration:
		return fmt.Sprintf("%s type=%s firmware=%s", m.Kind(), m.NodeType, m.Firmware)
	case protocol.TemperatureHumidity:
		return fmt.Sprintf("%s temp=%.1f%s hum=%.1f%s", m.Kind(),
			m.Temperature, protocol.UnitCelsius, m.Humidity, protocol.UnitPercent)
	case protocol.SetActuator:
		return fmt.Sprintf("%s state=%s", m.Kind(), onOff(m.State))
	case protocol.ActuatorState:
		return fmt.Sprintf("%s state=%s", m.Kind(), onOff(m.State))
	case protocol.ScheduleActuator:
		duration := "never"
		if d := m.OnDuration(); d != protocol.Never {
			duration = d.String()
		}
		return fmt.Sprintf("%s offset=%s duration=%s", m.Kind(), m.OffsetDuration(), duration)
	}
	return m.Kind().String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
