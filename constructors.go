//go:build !tinygo && !baremetal

package nowhub

import (
	"github.com/ystepanoff/nowhub/driver/stub"
	"github.com/ystepanoff/nowhub/store"
	"github.com/ystepanoff/nowhub/transport"
)

// NewSimulated returns a hub on an in-memory radio. Emulated nodes are
// attached to the returned driver with sim.NewAir.
func NewSimulated(cfg Config, st transport.NodeStore, opts ...Option) (*Hub, *stub.Driver) {
	d := stub.New()
	return New(cfg, d, st, opts...), d
}

// NewWithFileStore returns a hub that keeps its known nodes in the JSON
// document at cfg.StorePath.
func NewWithFileStore(cfg Config, driver transport.RadioDriver, opts ...Option) *Hub {
	return New(cfg, driver, store.NewFileStore(cfg.StorePath), opts...)
}
