package nowhub

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/registry"
	"github.com/ystepanoff/nowhub/telemetry"
	"github.com/ystepanoff/nowhub/transport"
)

var ErrAlreadyRunning = errors.New("hub already running")

// Hub owns the registry. A single goroutine, started by Run, drains a
// bounded queue of events; radio callbacks, timers and user intents all post
// to it, so registry mutations never interleave.
type Hub struct {
	cfg        Config
	driver     transport.RadioDriver
	store      transport.NodeStore
	registry   *registry.Registry
	dispatcher *transport.Dispatcher
	pairing    *transport.Pairing

	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	sink      telemetry.Sink
	indicator transport.Indicator

	queue   chan func()
	fatal   chan error
	running atomic.Bool
}

type Option func(*Hub)

func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithSink(s telemetry.Sink) Option {
	return func(h *Hub) { h.sink = s }
}

func WithIndicator(i transport.Indicator) Option {
	return func(h *Hub) { h.indicator = i }
}

// New wires a hub around driver and store. The radio is not touched until Run.
func New(cfg Config, driver transport.RadioDriver, store transport.NodeStore, opts ...Option) *Hub {
	h := &Hub{
		cfg:       cfg,
		driver:    driver,
		store:     store,
		logger:    zerolog.Nop(),
		sink:      telemetry.NopSink{},
		indicator: transport.NopIndicator{},
		fatal:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	h.queue = make(chan func(), size)

	h.registry = registry.New(driver)
	h.dispatcher = transport.NewDispatcher(driver, h.registry,
		transport.WithSink(h.sink),
		transport.WithMetrics(h.metrics),
		transport.WithLogger(h.logger),
	)
	callbacks := transport.Callbacks{
		Receive: func(addr protocol.Address, data []byte) {
			frame := append([]byte(nil), data...)
			h.post(func() { h.dispatcher.HandleReceive(addr, frame) })
		},
		SendComplete: func(addr protocol.Address, ok bool) {
			h.post(func() { h.dispatcher.HandleSendComplete(addr, ok) })
		},
		SyncReceive: func(addr protocol.Address, data []byte) {
			frame := append([]byte(nil), data...)
			h.post(func() {
				if err := h.pairing.HandleReceive(addr, frame); err != nil {
					h.logger.Error().Err(err).Msg("leaving sync mode")
				}
			})
		},
	}
	h.pairing = transport.NewPairing(driver, h.registry, h.dispatcher, store, callbacks, transport.PairingOptions{
		Config:    cfg.Pairing(),
		Indicator: h.indicator,
		Executor:  transport.ExecutorFunc(h.post),
		Metrics:   h.metrics,
		Logger:    h.logger,
		Restart:   h.escalate,
	})
	h.logger = h.logger.With().Str("component", "hub").Logger()
	return h
}

// Run initialises the radio, restores the known nodes and processes events
// until ctx is done or the radio becomes unrecoverable, in which case the
// returned error wraps transport.ErrRadioUnrecoverable.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer h.running.Store(false)

	if err := h.driver.Init(); err != nil {
		return fmt.Errorf("init radio: %w", err)
	}
	if err := h.pairing.Resume(); err != nil {
		select {
		case <-h.fatal:
		default:
		}
		return err
	}
	h.logger.Info().Int("devices", h.registry.DeviceCount()).Msg("hub started")

	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case err := <-h.fatal:
			h.shutdown()
			return err
		case fn := <-h.queue:
			fn()
		case <-ping:
			h.pingAll()
		}
	}
}

func (h *Hub) pingAll() {
	if !h.dispatcher.TransferEnabled() {
		return
	}
	if err := h.dispatcher.PingAll(); err != nil {
		h.logger.Warn().Err(err).Msg("periodic ping")
	}
}

func (h *Hub) shutdown() {
	h.pairing.Abort()
	h.dispatcher.DisableTransfer()
	if err := h.driver.Reset(); err != nil {
		h.logger.Warn().Err(err).Msg("radio reset on shutdown")
	}
	h.indicator.Set(transport.StatusOff)
	h.logger.Info().Msg("hub stopped")
}

// post queues fn without blocking. Events arriving while the queue is full
// are dropped.
func (h *Hub) post(fn func()) bool {
	select {
	case h.queue <- fn:
		return true
	default:
		h.metrics.FrameDropped(telemetry.DropQueueFull)
		h.logger.Warn().Msg("event queue full, dropping event")
		return false
	}
}

func (h *Hub) escalate(err error) {
	select {
	case h.fatal <- err:
	default:
	}
}

// do runs fn on the hub goroutine and waits for its result.
func (h *Hub) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case h.queue <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnterSyncMode starts a pairing session. It does nothing when one is
// already running.
func (h *Hub) EnterSyncMode(ctx context.Context) error {
	return h.do(ctx, h.pairing.Enter)
}

// CancelSyncMode ends the running pairing session, if any.
func (h *Hub) CancelSyncMode(ctx context.Context) error {
	return h.do(ctx, h.pairing.Cancel)
}

func (h *Hub) SyncActive() bool { return h.pairing.Active() }

// ToggleActuatorAt asks the actuator at index i to switch state.
func (h *Hub) ToggleActuatorAt(ctx context.Context, i int) error {
	return h.do(ctx, func() error { return h.dispatcher.ToggleActuatorAt(i) })
}

// ScheduleActuatorAt asks the actuator at index i to switch on after offset
// and off after duration. Pass protocol.Never to keep it on.
func (h *Hub) ScheduleActuatorAt(ctx context.Context, i int, offset, duration time.Duration) error {
	return h.do(ctx, func() error { return h.dispatcher.ScheduleActuatorAt(i, offset, duration) })
}

// Ping pings every paired device now.
func (h *Hub) Ping(ctx context.Context) error {
	return h.do(ctx, h.dispatcher.PingAll)
}

func (h *Hub) Devices() []protocol.DeviceInfo { return h.registry.Devices() }
func (h *Hub) DeviceCount() int { return h.registry.DeviceCount() }
func (h *Hub) Sensors() []registry.Sensor { return h.registry.Sensors() }
func (h *Hub) SensorAt(i int) registry.Sensor { return h.registry.SensorAt(i) }
func (h *Hub) Actuators() []registry.Actuator { return h.registry.Actuators() }
func (h *Hub) ActuatorAt(i int) registry.Actuator { return h.registry.ActuatorAt(i) }
