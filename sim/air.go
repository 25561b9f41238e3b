package sim

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/nowhub/driver/stub"
	"github.com/ystepanoff/nowhub/protocol"
)

// Air connects emulated nodes to a stub driver. Frames the hub sends reach
// the addressed node, or every node for broadcasts, and node replies are
// injected back as received frames.
type Air struct {
	driver *stub.Driver
	logger zerolog.Logger

	mu    sync.Mutex
	nodes map[protocol.Address]*Node
	order []protocol.Address
}

func NewAir(d *stub.Driver, logger zerolog.Logger) *Air {
	a := &Air{
		driver: d,
		logger: logger.With().Str("component", "sim").Logger(),
		nodes:  make(map[protocol.Address]*Node),
	}
	d.SetAir(a.deliver)
	return a
}

// Attach brings n into range.
func (a *Air) Attach(n *Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.nodes[n.Address]; !ok {
		a.order = append(a.order, n.Address)
	}
	a.nodes[n.Address] = n
}

// Detach takes the node at addr out of range; sends to it start failing.
func (a *Air) Detach(addr protocol.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.nodes[addr]; ok {
		n.Stop()
		delete(a.nodes, addr)
	}
	for i, o := range a.order {
		if o == addr {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func (a *Air) Nodes() []*Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Node, 0, len(a.order))
	for _, addr := range a.order {
		out = append(out, a.nodes[addr])
	}
	return out
}

func (a *Air) deliver(to protocol.Address, data []byte) bool {
	var targets []*Node
	if to.IsBroadcast() {
		targets = a.Nodes()
	} else {
		a.mu.Lock()
		n, ok := a.nodes[to]
		a.mu.Unlock()
		if !ok {
			return false
		}
		targets = []*Node{n}
	}

	for _, n := range targets {
		n := n
		report := func(m protocol.Message) { a.reply(n.Address, m) }
		for _, m := range n.handle(data, report) {
			a.reply(n.Address, m)
		}
	}
	return true
}

func (a *Air) reply(from protocol.Address, m protocol.Message) {
	if !a.driver.InjectRx(from, protocol.Encode(m)) {
		a.logger.Debug().Stringer("addr", from).Stringer("kind", m.Kind()).Msg("hub not listening")
	}
}

// Report makes every paired thermometer send a fresh reading.
func (a *Air) Report() {
	for _, n := range a.Nodes() {
		if n.Type != protocol.NodeTypeTemperatureHumidity || !n.Paired() {
			continue
		}
		a.reply(n.Address, n.drift())
	}
}

// Run reports readings every interval until ctx is done.
func (a *Air) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, n := range a.Nodes() {
				n.Stop()
			}
			return nil
		case <-ticker.C:
			a.Report()
		}
	}
}
