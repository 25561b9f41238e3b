package transport

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/registry"
	"github.com/ystepanoff/nowhub/telemetry"
)

// Dispatcher validates inbound telemetry, applies it to the registry and
// composes outbound commands. Everything is gated by the data-transfer flag,
// which is closed while a sync-mode session runs.
type Dispatcher struct {
	driver   RadioDriver
	registry *registry.Registry
	sink     telemetry.Sink
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	enabled  atomic.Bool
}

type DispatcherOption func(*Dispatcher)

func WithSink(s telemetry.Sink) DispatcherOption {
	return func(d *Dispatcher) { d.sink = s }
}

func WithMetrics(m *telemetry.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher returns a dispatcher with the gate closed.
func NewDispatcher(driver RadioDriver, reg *registry.Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		driver:   driver,
		registry: reg,
		sink:     telemetry.NopSink{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "dispatcher").Logger()
	return d
}

func (d *Dispatcher) EnableTransfer()       { d.enabled.Store(true) }
func (d *Dispatcher) DisableTransfer()      { d.enabled.Store(false) }
func (d *Dispatcher) TransferEnabled() bool { return d.enabled.Load() }

func (d *Dispatcher) SendSetActuator(addr protocol.Address, state bool) error {
	return d.send(addr, protocol.SetActuator{State: state})
}

// SendScheduleActuator asks the relay at addr to switch on after offset and
// off again after duration (protocol.Never keeps it on).
func (d *Dispatcher) SendScheduleActuator(addr protocol.Address, offset, duration time.Duration) error {
	if !d.enabled.Load() {
		return ErrTransferDisabled
	}
	m, err := protocol.NewScheduleActuator(offset, duration)
	if err != nil {
		return err
	}
	return d.send(addr, m)
}

func (d *Dispatcher) SendPing(addr protocol.Address) error {
	return d.send(addr, protocol.Ping{})
}

// PingAll pings every paired device and joins the send errors.
func (d *Dispatcher) PingAll() error {
	if !d.enabled.Load() {
		return ErrTransferDisabled
	}
	var errs []error
	for _, addr := range d.registry.Addresses() {
		if err := d.SendPing(addr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ToggleActuatorAt asks the actuator at index i to switch to the opposite of
// its last reported state. The registry is updated when the node reports back.
func (d *Dispatcher) ToggleActuatorAt(i int) error {
	if !d.enabled.Load() {
		return ErrTransferDisabled
	}
	a, err := d.actuatorAt(i)
	if err != nil {
		return err
	}
	return d.SendSetActuator(a.Address, !a.State)
}

func (d *Dispatcher) ScheduleActuatorAt(i int, offset, duration time.Duration) error {
	if !d.enabled.Load() {
		return ErrTransferDisabled
	}
	a, err := d.actuatorAt(i)
	if err != nil {
		return err
	}
	return d.SendScheduleActuator(a.Address, offset, duration)
}

func (d *Dispatcher) actuatorAt(i int) (registry.Actuator, error) {
	actuators := d.registry.Actuators()
	if i < 0 || i >= len(actuators) {
		return registry.Actuator{}, fmt.Errorf("%w %d", ErrNoSuchActuator, i)
	}
	return actuators[i], nil
}

func (d *Dispatcher) send(addr protocol.Address, m protocol.Message) error {
	if !d.enabled.Load() {
		return ErrTransferDisabled
	}
	var buf [protocol.MaxMessageSize]byte
	n, err := protocol.EncodeTo(buf[:], m)
	if err != nil {
		return err
	}
	kind := m.Kind().String()
	if err := d.driver.Send(addr, buf[:n]); err != nil {
		d.metrics.SendRejected(kind)
		d.logger.Warn().Err(err).Stringer("addr", addr).Str("kind", kind).Msg("send rejected")
		return fmt.Errorf("send %s to %s: %w", kind, addr, err)
	}
	d.metrics.FrameSent(kind)
	return nil
}

// HandleReceive processes a frame from the radio in normal mode. Frames from
// unpaired addresses and frames failing validation are dropped silently.
func (d *Dispatcher) HandleReceive(addr protocol.Address, data []byte) {
	if !d.enabled.Load() {
		d.drop(addr, telemetry.DropGateClosed)
		return
	}
	if !d.registry.IsDevicePaired(addr) {
		d.drop(addr, telemetry.DropUnknownPeer)
		return
	}
	if len(data) == 0 {
		d.drop(addr, telemetry.DropInvalid)
		return
	}

	switch kind := protocol.Kind(data[0]); kind {
	case protocol.KindTemperatureHumidity:
		m, err := protocol.DecodeTemperatureHumidity(data)
		if err != nil {
			d.drop(addr, telemetry.DropInvalid)
			return
		}
		d.registry.UpdateSensorData(addr, protocol.VariableTemperature, registry.FloatValue(float64(m.Temperature)))
		d.registry.UpdateSensorData(addr, protocol.VariableHumidity, registry.FloatValue(float64(m.Humidity)))
		d.registry.UpdateDeviceLastSeen(addr)
		d.metrics.FrameReceived(kind.String())
		d.logger.Debug().Stringer("addr", addr).
			Float32("temp", m.Temperature).Float32("hum", m.Humidity).Msg("telemetry")
		d.publishSensors(addr)

	case protocol.KindActuatorState:
		m, err := protocol.DecodeActuatorState(data)
		if err != nil {
			d.drop(addr, telemetry.DropInvalid)
			return
		}
		d.registry.UpdateActuatorState(addr, m.State)
		d.registry.UpdateDeviceLastSeen(addr)
		d.metrics.FrameReceived(kind.String())
		d.logger.Debug().Stringer("addr", addr).Bool("state", m.State).Msg("actuator state")
		d.publishActuator(addr)

	default:
		d.drop(addr, telemetry.DropUnexpected)
	}
}

// HandleSendComplete marks the entries of addr disconnected when a delivery
// failed. The device stays paired so it can come back without re-pairing.
func (d *Dispatcher) HandleSendComplete(addr protocol.Address, ok bool) {
	if ok || addr.IsBroadcast() || !d.enabled.Load() {
		return
	}
	dev, found := d.registry.FindDevice(addr)
	if !found {
		// Removed while the frame was in flight.
		d.logger.Debug().Stringer("addr", addr).Msg("delivery failed for unknown device")
		return
	}
	d.metrics.DeliveryFailed()
	d.logger.Info().Stringer("addr", addr).Str("device", dev.Name).Msg("device unreachable")

	if dev.Type.IsSensor() {
		d.registry.DisconnectSensors(addr)
		d.publishSensors(addr)
	}
	if dev.Type.IsActuator() {
		d.registry.DisconnectActuator(addr)
		d.publishActuator(addr)
	}
}

func (d *Dispatcher) drop(addr protocol.Address, reason string) {
	d.metrics.FrameDropped(reason)
	d.logger.Debug().Stringer("addr", addr).Str("reason", reason).Msg("frame dropped")
}

func (d *Dispatcher) publishSensors(addr protocol.Address) {
	for _, s := range d.registry.Sensors() {
		if s.Address != addr {
			continue
		}
		if err := d.sink.PublishSensor(s); err != nil {
			d.logger.Warn().Err(err).Stringer("addr", addr).Str("variable", s.Variable).Msg("publish sensor")
		}
	}
}

func (d *Dispatcher) publishActuator(addr protocol.Address) {
	for _, a := range d.registry.Actuators() {
		if a.Address != addr {
			continue
		}
		if err := d.sink.PublishActuator(a); err != nil {
			d.logger.Warn().Err(err).Stringer("addr", addr).Msg("publish actuator")
		}
	}
}
