package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/registry"
	"github.com/ystepanoff/nowhub/telemetry"
)

var errInjected = errors.New("injected failure")

type sent struct {
	to   protocol.Address
	data []byte
}

// MockDriver implements the RadioDriver interface for testing
type MockDriver struct {
	mutex     sync.Mutex
	txLog     []sent
	peers     map[protocol.Address]bool
	onSend    SendCallback
	onReceive ReceiveCallback
	resets    int

	failReset  bool
	failAdd    bool
	failRemove bool
	rejectSend map[protocol.Address]bool
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		peers:      make(map[protocol.Address]bool),
		rejectSend: make(map[protocol.Address]bool),
	}
}

func (d *MockDriver) Init() error { return nil }

func (d *MockDriver) AddPeer(addr protocol.Address) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.failAdd {
		return errInjected
	}
	d.peers[addr] = true
	return nil
}

func (d *MockDriver) AddBroadcastPeer() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.failAdd {
		return errInjected
	}
	d.peers[protocol.BroadcastAddress] = true
	return nil
}

func (d *MockDriver) RemovePeer(addr protocol.Address) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.failRemove {
		return errInjected
	}
	delete(d.peers, addr)
	return nil
}

func (d *MockDriver) Send(addr protocol.Address, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.rejectSend[addr] {
		return errInjected
	}
	// Make a copy to avoid data races
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	d.txLog = append(d.txLog, sent{to: addr, data: dataCopy})
	return nil
}

func (d *MockDriver) OnSendComplete(cb SendCallback) {
	d.mutex.Lock()
	d.onSend = cb
	d.mutex.Unlock()
}

func (d *MockDriver) OnReceive(cb ReceiveCallback) {
	d.mutex.Lock()
	d.onReceive = cb
	d.mutex.Unlock()
}

func (d *MockDriver) Reset() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.failReset {
		return errInjected
	}
	d.resets++
	d.peers = make(map[protocol.Address]bool)
	d.onSend = nil
	d.onReceive = nil
	return nil
}

// Test helper methods

// deliver hands data to whichever receive callback is registered.
func (d *MockDriver) deliver(from protocol.Address, data []byte) bool {
	d.mutex.Lock()
	cb := d.onReceive
	d.mutex.Unlock()
	if cb == nil {
		return false
	}
	cb(from, data)
	return true
}

func (d *MockDriver) complete(to protocol.Address, ok bool) {
	d.mutex.Lock()
	cb := d.onSend
	d.mutex.Unlock()
	if cb != nil {
		cb(to, ok)
	}
}

// sentOf returns the frames of kind k in transmission order.
func (d *MockDriver) sentOf(k protocol.Kind) []sent {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var out []sent
	for _, s := range d.txLog {
		if len(s.data) > 0 && protocol.Kind(s.data[0]) == k {
			out = append(out, s)
		}
	}
	return out
}

func (d *MockDriver) clearTxLog() {
	d.mutex.Lock()
	d.txLog = nil
	d.mutex.Unlock()
}

func (d *MockDriver) hasPeer(addr protocol.Address) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.peers[addr]
}

func (d *MockDriver) resetCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.resets
}

type memStore struct {
	mu      sync.Mutex
	nodes   []protocol.NodeInfo
	failErr error
}

func (s *memStore) LoadKnownNodes() ([]protocol.NodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.NodeInfo(nil), s.nodes...), nil
}

func (s *memStore) SaveNode(addr protocol.Address, t protocol.NodeType, fw protocol.FirmwareVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	for i := range s.nodes {
		if s.nodes[i].Address == addr {
			s.nodes[i].Type = t
			s.nodes[i].Firmware = fw
			return nil
		}
	}
	s.nodes = append(s.nodes, protocol.NodeInfo{Address: addr, Type: t, Name: protocol.DefaultNodeName, Firmware: fw})
	return nil
}

type recordingIndicator struct {
	mu      sync.Mutex
	history []Status
}

func (r *recordingIndicator) Set(s Status) {
	r.mu.Lock()
	r.history = append(r.history, s)
	r.mu.Unlock()
}

func (r *recordingIndicator) last() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return StatusOff
	}
	return r.history[len(r.history)-1]
}

func (r *recordingIndicator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

func (r *recordingIndicator) seen(s Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.history {
		if h == s {
			return true
		}
	}
	return false
}

type recordingSink struct {
	mu        sync.Mutex
	sensors   []registry.Sensor
	actuators []registry.Actuator
}

func (s *recordingSink) PublishSensor(sn registry.Sensor) error {
	s.mu.Lock()
	s.sensors = append(s.sensors, sn)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) PublishActuator(a registry.Actuator) error {
	s.mu.Lock()
	s.actuators = append(s.actuators, a)
	s.mu.Unlock()
	return nil
}

var (
	thermoAddr = protocol.Address{0x24, 0x6F, 0x28, 0x00, 0x00, 0x01}
	relayAddr  = protocol.Address{0x24, 0x6F, 0x28, 0x00, 0x00, 0x02}
	strayAddr  = protocol.Address{0x24, 0x6F, 0x28, 0x00, 0x00, 0xFF}
	fw         = protocol.FirmwareVersion{1, 2, 3}
)

// harness wires a dispatcher and a pairing state machine the way the hub does,
// with expiry handed to the test through queue.
type harness struct {
	driver    *MockDriver
	reg       *registry.Registry
	disp      *Dispatcher
	pairing   *Pairing
	store     *memStore
	light     *recordingIndicator
	sink      *recordingSink
	promReg   *prometheus.Registry
	queue     chan func()
	refuse    atomic.Int32
	restarted chan error
}

func newHarness(t *testing.T, cfg PairingConfig) *harness {
	t.Helper()
	h := &harness{
		driver:    NewMockDriver(),
		store:     &memStore{},
		light:     &recordingIndicator{},
		sink:      &recordingSink{},
		promReg:   prometheus.NewRegistry(),
		queue:     make(chan func(), 4),
		restarted: make(chan error, 1),
	}
	metrics := telemetry.NewMetrics("test", h.promReg)
	h.reg = registry.New(h.driver)
	h.disp = NewDispatcher(h.driver, h.reg, WithSink(h.sink), WithMetrics(metrics))
	cb := Callbacks{
		Receive:      h.disp.HandleReceive,
		SendComplete: h.disp.HandleSendComplete,
		SyncReceive: func(addr protocol.Address, data []byte) {
			_ = h.pairing.HandleReceive(addr, data)
		},
	}
	h.pairing = NewPairing(h.driver, h.reg, h.disp, h.store, cb, PairingOptions{
		Config:    cfg,
		Indicator: h.light,
		Executor: ExecutorFunc(func(fn func()) bool {
			if h.refuse.Add(-1) >= 0 {
				return false
			}
			h.queue <- fn
			return true
		}),
		Metrics: metrics,
		Restart: func(err error) { h.restarted <- err },
	})
	t.Cleanup(h.pairing.Abort)
	return h
}

// boot brings the harness into normal mode with the given nodes stored.
func (h *harness) boot(t *testing.T, nodes ...protocol.NodeInfo) {
	t.Helper()
	h.store.nodes = append(h.store.nodes, nodes...)
	require.NoError(t, h.pairing.Resume())
	h.driver.clearTxLog()
}

// assertQuiet checks that the session activities have stopped: no further
// sync broadcasts and no indicator changes.
func (h *harness) assertQuiet(t *testing.T) {
	t.Helper()
	broadcasts := len(h.driver.sentOf(protocol.KindSyncBroadcast))
	changes := h.light.count()
	time.Sleep(25 * time.Millisecond)
	assert.Len(t, h.driver.sentOf(protocol.KindSyncBroadcast), broadcasts, "sync broadcasts after the session ended")
	assert.Equal(t, changes, h.light.count(), "indicator changes after the session ended")
}

// runQueued runs the next posted closure, failing after wait.
func (h *harness) runQueued(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case fn := <-h.queue:
		fn()
	case <-time.After(wait):
		t.Fatal("nothing posted to the executor")
	}
}

func fastConfig() PairingConfig {
	return PairingConfig{
		Timeout:           time.Hour,
		BroadcastInterval: 5 * time.Millisecond,
		BlinkInterval:     5 * time.Millisecond,
	}
}

func thermo() protocol.NodeInfo {
	return protocol.NodeInfo{Address: thermoAddr, Type: protocol.NodeTypeTemperatureHumidity, Name: "Living Room", Firmware: fw}
}

func relay() protocol.NodeInfo {
	return protocol.NodeInfo{Address: relayAddr, Type: protocol.NodeTypeRelay, Name: "Heater", Firmware: fw}
}
