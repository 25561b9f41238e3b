package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/registry"
	"github.com/ystepanoff/nowhub/telemetry"
)

// PairingConfig holds the sync-mode timings.
type PairingConfig struct {
	Timeout           time.Duration
	BroadcastInterval time.Duration
	BlinkInterval     time.Duration
}

func DefaultPairingConfig() PairingConfig {
	return PairingConfig{
		Timeout:           protocol.SyncModeTimeout,
		BroadcastInterval: protocol.SyncBroadcastInterval,
		BlinkInterval:     protocol.IndicatorBlinkInterval,
	}
}

// expiryRetry is how long a sync timeout waits before it is offered to the
// executor again after being refused.
const expiryRetry = 10 * time.Millisecond

// Callbacks are the radio callbacks registered in each mode. The owner
// supplies them so that frames are moved onto its task before any state is
// touched.
type Callbacks struct {
	Receive      ReceiveCallback
	SendComplete SendCallback
	SyncReceive  ReceiveCallback
}

type PairingOptions struct {
	Config    PairingConfig
	Indicator Indicator
	// Executor receives the timeout expiry. Defaults to Inline.
	Executor Executor
	Metrics  *telemetry.Metrics
	Logger   zerolog.Logger
	// Restart is called when the radio cannot be reset.
	Restart func(error)
}

// Pairing is the sync-mode state machine. Enter, Cancel, HandleReceive and
// Resume must all run on the owner task; Active and PairingCode may be read
// from anywhere.
type Pairing struct {
	driver     RadioDriver
	registry   *registry.Registry
	dispatcher *Dispatcher
	store      NodeStore
	callbacks  Callbacks
	cfg        PairingConfig
	indicator  Indicator
	exec       Executor
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
	restart    func(error)

	session *session
	active  atomic.Bool
	code    atomic.Uint32
}

type session struct {
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// disarm stops the timeout for good, including a pending retry.
func (s *session) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

func NewPairing(driver RadioDriver, reg *registry.Registry, d *Dispatcher, store NodeStore, cb Callbacks, opts PairingOptions) *Pairing {
	p := &Pairing{
		driver:     driver,
		registry:   reg,
		dispatcher: d,
		store:      store,
		callbacks:  cb,
		cfg:        opts.Config,
		indicator:  opts.Indicator,
		exec:       opts.Executor,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "pairing").Logger(),
		restart:    opts.Restart,
	}
	def := DefaultPairingConfig()
	if p.cfg.Timeout <= 0 {
		p.cfg.Timeout = def.Timeout
	}
	if p.cfg.BroadcastInterval <= 0 {
		p.cfg.BroadcastInterval = def.BroadcastInterval
	}
	if p.cfg.BlinkInterval <= 0 {
		p.cfg.BlinkInterval = def.BlinkInterval
	}
	if p.indicator == nil {
		p.indicator = NopIndicator{}
	}
	if p.exec == nil {
		p.exec = Inline
	}
	return p
}

// Active reports whether a sync-mode session is running.
func (p *Pairing) Active() bool { return p.active.Load() }

// PairingCode returns the code carried by the latest sync broadcast.
func (p *Pairing) PairingCode() uint32 { return p.code.Load() }

// Enter starts a sync-mode session: it unpairs every device, resets the
// radio, and starts broadcasting and blinking until a node registers, the
// session is cancelled or the timeout fires. Calling Enter while a session is
// active does nothing.
func (p *Pairing) Enter() error {
	if p.active.Load() {
		return nil
	}
	p.logger.Info().Dur("timeout", p.cfg.Timeout).Msg("entering sync mode")

	p.dispatcher.DisableTransfer()
	if err := p.registry.RemoveAll(); err != nil {
		p.logger.Warn().Err(err).Msg("unpairing incomplete")
	}
	if err := p.driver.Reset(); err != nil {
		return p.escalate(err)
	}
	p.registry.Clear()
	p.metrics.SetPaired(0)

	if err := p.driver.AddBroadcastPeer(); err != nil {
		p.logger.Error().Err(err).Msg("add broadcast peer")
		p.metrics.SessionEnded(telemetry.SessionFailed)
		if rerr := p.Resume(); rerr != nil {
			return rerr
		}
		return fmt.Errorf("enter sync mode: %w", err)
	}
	p.driver.OnReceive(p.callbacks.SyncReceive)
	p.driver.OnSendComplete(p.callbacks.SendComplete)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	s := &session{cancel: cancel, group: g}
	p.session = s
	p.active.Store(true)

	g.Go(func() error { return p.broadcastLoop(gctx) })
	g.Go(func() error { return p.blinkLoop(gctx) })
	p.arm(s, p.cfg.Timeout)
	return nil
}

// arm schedules the expiry of s. An expiry the executor refuses is retried
// until it is accepted or the session stops.
func (p *Pairing) arm(s *session, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timer = time.AfterFunc(d, func() {
		if p.exec.Post(func() { p.expire(s) }) {
			return
		}
		p.logger.Warn().Dur("retry", expiryRetry).Msg("sync timeout refused by executor")
		p.arm(s, expiryRetry)
	})
}

// Cancel ends the active session early. It does nothing when no session runs.
func (p *Pairing) Cancel() error {
	if !p.active.Load() {
		return nil
	}
	p.logger.Info().Msg("sync mode cancelled")
	return p.finish(telemetry.SessionCancelled)
}

// Abort stops the session's activities without returning the radio to
// normal mode. Used on shutdown.
func (p *Pairing) Abort() {
	if s := p.stop(); s != nil {
		p.metrics.SessionEnded(telemetry.SessionCancelled)
	}
}

// HandleReceive processes a frame received in sync mode. Only a valid
// Registration is acted on; the session ends after it whether or not the
// node could be stored.
func (p *Pairing) HandleReceive(addr protocol.Address, data []byte) error {
	if !p.active.Load() {
		return nil
	}
	reg, err := protocol.DecodeRegistration(data)
	if err != nil {
		p.metrics.FrameDropped(telemetry.DropInvalid)
		p.logger.Debug().Err(err).Stringer("addr", addr).Msg("ignoring frame in sync mode")
		return nil
	}
	p.metrics.FrameReceived(protocol.KindRegistration.String())

	outcome := telemetry.SessionRegistered
	if err := p.register(addr, reg); err != nil {
		p.logger.Warn().Err(err).Stringer("addr", addr).Msg("registration failed")
		p.metrics.Registration("failed")
		outcome = telemetry.SessionFailed
	} else {
		p.logger.Info().Stringer("addr", addr).Stringer("type", reg.NodeType).
			Stringer("firmware", reg.Firmware).Msg("node registered")
		p.metrics.Registration("ok")
	}
	return p.finish(outcome)
}

func (p *Pairing) register(addr protocol.Address, reg protocol.Registration) error {
	if addr.IsBroadcast() {
		return registry.ErrBroadcastAddress
	}
	if err := p.store.SaveNode(addr, reg.NodeType, reg.Firmware); err != nil {
		return fmt.Errorf("persist node: %w", err)
	}
	info := protocol.NodeInfo{
		Address:  addr,
		Type:     reg.NodeType,
		Name:     protocol.DefaultNodeName,
		Firmware: reg.Firmware,
	}
	if err := p.registry.AddDevice(info); err != nil {
		return fmt.Errorf("add device: %w", err)
	}
	var buf [protocol.ConfirmRegistrationSize]byte
	n, _ := protocol.EncodeTo(buf[:], protocol.ConfirmRegistration{})
	if err := p.driver.Send(addr, buf[:n]); err != nil {
		return fmt.Errorf("confirm registration: %w", err)
	}
	p.metrics.FrameSent(protocol.KindConfirmRegistration.String())
	return nil
}

// Resume puts the radio in normal mode. It resets the transport, registers
// the normal callbacks, opens the data-transfer gate, re-pairs every stored
// node, pings them and shows the hub online.
func (p *Pairing) Resume() error {
	if err := p.driver.Reset(); err != nil {
		return p.escalate(err)
	}
	p.driver.OnReceive(p.callbacks.Receive)
	p.driver.OnSendComplete(p.callbacks.SendComplete)
	p.dispatcher.EnableTransfer()
	p.restore()
	if err := p.dispatcher.PingAll(); err != nil {
		p.logger.Warn().Err(err).Msg("ping after resume")
	}
	p.indicator.Set(StatusOnline)
	return nil
}

func (p *Pairing) restore() {
	p.registry.Clear()
	nodes, err := p.store.LoadKnownNodes()
	if err != nil {
		p.logger.Error().Err(err).Msg("load known nodes")
	}
	for _, n := range nodes {
		if err := p.registry.AddDevice(n); err != nil {
			p.logger.Warn().Err(err).Stringer("addr", n.Address).Msg("restore node")
		}
	}
	p.metrics.SetPaired(p.registry.DeviceCount())
	p.logger.Info().Int("devices", p.registry.DeviceCount()).Msg("known nodes restored")
}

// expire runs on the owner task. A timer from an earlier session is ignored.
func (p *Pairing) expire(s *session) {
	if p.session != s {
		return
	}
	p.logger.Info().Msg("sync mode timed out")
	_ = p.finish(telemetry.SessionTimeout)
}

func (p *Pairing) finish(outcome string) error {
	if p.stop() == nil {
		return nil
	}
	err := p.Resume()
	p.metrics.SessionEnded(outcome)
	return err
}

// stop halts the timer and both activities and waits for them to return.
func (p *Pairing) stop() *session {
	s := p.session
	if s == nil {
		return nil
	}
	p.session = nil
	s.disarm()
	s.cancel()
	_ = s.group.Wait()
	p.code.Store(protocol.NoPairingCode)
	p.active.Store(false)
	return s
}

func (p *Pairing) escalate(err error) error {
	wrapped := fmt.Errorf("%w: %w", ErrRadioUnrecoverable, err)
	p.indicator.Set(StatusError)
	p.logger.Error().Err(err).Msg("radio reset failed")
	if p.restart != nil {
		p.restart(wrapped)
	}
	return wrapped
}

func (p *Pairing) broadcastLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.BroadcastInterval)
	defer ticker.Stop()
	for {
		p.broadcast()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Pairing) broadcast() {
	code := protocol.GeneratePairingCode()
	p.code.Store(code)
	var buf [protocol.SyncBroadcastSize]byte
	n, _ := protocol.EncodeTo(buf[:], protocol.SyncBroadcast{PairingCode: code})
	if err := p.driver.Send(protocol.BroadcastAddress, buf[:n]); err != nil {
		p.logger.Warn().Err(err).Msg("sync broadcast")
		return
	}
	p.metrics.FrameSent(protocol.KindSyncBroadcast.String())
}

func (p *Pairing) blinkLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.BlinkInterval)
	defer ticker.Stop()
	on := true
	for {
		if on {
			p.indicator.Set(StatusPending)
		} else {
			p.indicator.Set(StatusOff)
		}
		on = !on
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
