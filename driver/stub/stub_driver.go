//go:build !tinygo && !baremetal

// Package stub is an in-memory radio driver for host-side testing and
// simulation. It keeps a peer table, a bounded log of transmitted frames and
// lets tests inject received frames and link failures.
package stub

import (
	"errors"
	"sync"

	"github.com/ystepanoff/nowhub/protocol"
	"github.com/ystepanoff/nowhub/transport"
)

// MaxFrameSize is the largest payload the link carries.
const MaxFrameSize = 250

var (
	ErrNotInitialised = errors.New("stub: driver not initialised")
	ErrPeerExists     = errors.New("stub: peer already registered")
	ErrPeerNotFound   = errors.New("stub: peer not registered")
	ErrFrameTooLarge  = errors.New("stub: frame too large")
	ErrSendRejected   = errors.New("stub: send rejected")
	ErrPeerRejected   = errors.New("stub: peer table rejected change")
	ErrResetFailed    = errors.New("stub: reset failed")
)

// Transmission is one frame accepted by Send.
type Transmission struct {
	To   protocol.Address
	Data []byte
}

// Driver implements transport.RadioDriver in memory. Send completes
// synchronously: the air hook sees the frame first and the send-completion
// callback runs before Send returns. Without an air hook every send to a
// reachable peer succeeds.
type Driver struct {
	mu          sync.Mutex
	initialised bool
	peers       map[protocol.Address]struct{}
	onSend      transport.SendCallback
	onReceive   transport.ReceiveCallback
	txBuf       ringBuffer
	air         func(to protocol.Address, data []byte) bool

	failAdd     map[protocol.Address]bool
	failRemove  map[protocol.Address]bool
	rejectSend  map[protocol.Address]bool
	unreachable map[protocol.Address]bool
	failReset   bool
}

var _ transport.RadioDriver = (*Driver)(nil)

func New() *Driver {
	return &Driver{
		peers:       make(map[protocol.Address]struct{}),
		failAdd:     make(map[protocol.Address]bool),
		failRemove:  make(map[protocol.Address]bool),
		rejectSend:  make(map[protocol.Address]bool),
		unreachable: make(map[protocol.Address]bool),
	}
}

func (d *Driver) Init() error {
	d.mu.Lock()
	d.initialised = true
	d.mu.Unlock()
	return nil
}

func (d *Driver) AddPeer(addr protocol.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAdd[addr] {
		return ErrPeerRejected
	}
	if _, ok := d.peers[addr]; ok {
		return ErrPeerExists
	}
	d.peers[addr] = struct{}{}
	return nil
}

func (d *Driver) AddBroadcastPeer() error {
	return d.AddPeer(protocol.BroadcastAddress)
}

func (d *Driver) RemovePeer(addr protocol.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failRemove[addr] {
		return ErrPeerRejected
	}
	if _, ok := d.peers[addr]; !ok {
		return ErrPeerNotFound
	}
	delete(d.peers, addr)
	return nil
}

func (d *Driver) Send(addr protocol.Address, data []byte) error {
	d.mu.Lock()
	switch {
	case !d.initialised:
		d.mu.Unlock()
		return ErrNotInitialised
	case len(data) > MaxFrameSize:
		d.mu.Unlock()
		return ErrFrameTooLarge
	case d.rejectSend[addr]:
		d.mu.Unlock()
		return ErrSendRejected
	}
	if _, ok := d.peers[addr]; !ok {
		d.mu.Unlock()
		return ErrPeerNotFound
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	d.txBuf.push(Transmission{To: addr, Data: frame})
	ok := !d.unreachable[addr]
	air, cb := d.air, d.onSend
	d.mu.Unlock()

	if ok && air != nil {
		ok = air(addr, frame)
	}
	if cb != nil {
		cb(addr, ok)
	}
	return nil
}

func (d *Driver) OnSendComplete(cb transport.SendCallback) {
	d.mu.Lock()
	d.onSend = cb
	d.mu.Unlock()
}

func (d *Driver) OnReceive(cb transport.ReceiveCallback) {
	d.mu.Lock()
	d.onReceive = cb
	d.mu.Unlock()
}

func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failReset {
		return ErrResetFailed
	}
	d.peers = make(map[protocol.Address]struct{})
	d.onSend = nil
	d.onReceive = nil
	return nil
}

// InjectRx delivers data from addr to the registered receive callback. It
// reports false when no callback is registered.
func (d *Driver) InjectRx(from protocol.Address, data []byte) bool {
	d.mu.Lock()
	cb := d.onReceive
	d.mu.Unlock()
	if cb == nil {
		return false
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	cb(from, frame)
	return true
}

// SetAir installs the hook that sees every frame sent over the link. It
// reports whether anyone received the frame.
func (d *Driver) SetAir(fn func(to protocol.Address, data []byte) bool) {
	d.mu.Lock()
	d.air = fn
	d.mu.Unlock()
}

// SetUnreachable makes sends to addr complete with failure.
func (d *Driver) SetUnreachable(addr protocol.Address, v bool) {
	d.mu.Lock()
	d.unreachable[addr] = v
	d.mu.Unlock()
}

func (d *Driver) SetRejectSend(addr protocol.Address, v bool) {
	d.mu.Lock()
	d.rejectSend[addr] = v
	d.mu.Unlock()
}

func (d *Driver) SetFailAddPeer(addr protocol.Address, v bool) {
	d.mu.Lock()
	d.failAdd[addr] = v
	d.mu.Unlock()
}

func (d *Driver) SetFailRemovePeer(addr protocol.Address, v bool) {
	d.mu.Lock()
	d.failRemove[addr] = v
	d.mu.Unlock()
}

func (d *Driver) SetFailReset(v bool) {
	d.mu.Lock()
	d.failReset = v
	d.mu.Unlock()
}

func (d *Driver) HasPeer(addr protocol.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.peers[addr]
	return ok
}

func (d *Driver) PeerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}

// GetTxLog returns copies of the most recent transmissions, oldest first.
func (d *Driver) GetTxLog() []Transmission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txBuf.snapshot()
}

func (d *Driver) ClearTxLog() {
	d.mu.Lock()
	d.txBuf = ringBuffer{}
	d.mu.Unlock()
}

const ringCapacity = 64

type ringBuffer struct {
	data       [ringCapacity]Transmission
	head, tail int // head = oldest, tail = next push
	count      int
}

func (rb *ringBuffer) push(t Transmission) {
	if rb.count == ringCapacity {
		// Overwrite the oldest when buffer is full to keep memory bounded
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = t
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) snapshot() []Transmission {
	out := make([]Transmission, 0, rb.count)
	for c, i := 0, rb.head; c < rb.count; c, i = c+1, (i+1)%ringCapacity {
		t := rb.data[i]
		out = append(out, Transmission{To: t.To, Data: append([]byte(nil), t.Data...)})
	}
	return out
}
