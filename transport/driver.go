package transport

import (
	"errors"

	"github.com/ystepanoff/nowhub/protocol"
)

var (
	ErrTransferDisabled   = errors.New("data transfer disabled")
	ErrNoSuchActuator     = errors.New("no actuator at index")
	ErrRadioUnrecoverable = errors.New("radio driver unrecoverable")
)

// SendCallback reports whether a frame accepted by Send reached addr.
type SendCallback func(addr protocol.Address, ok bool)

// ReceiveCallback delivers a frame received from addr. data is only valid for
// the duration of the call.
type ReceiveCallback func(addr protocol.Address, data []byte)

// RadioDriver is the interface that wraps the connectionless radio link.
// No operation blocks: Send returns once the frame is accepted for
// transmission and delivery is reported later through the send-completion
// callback. Callbacks may run on any goroutine. Send must not retain data.
type RadioDriver interface {
	Init() error
	AddPeer(addr protocol.Address) error
	AddBroadcastPeer() error
	RemovePeer(addr protocol.Address) error
	Send(addr protocol.Address, data []byte) error
	OnSendComplete(cb SendCallback)
	OnReceive(cb ReceiveCallback)
	// Reset removes every peer and unregisters both callbacks.
	Reset() error
}

// NodeStore is the durable list of known nodes.
type NodeStore interface {
	LoadKnownNodes() ([]protocol.NodeInfo, error)
	// SaveNode upserts a node by address.
	SaveNode(addr protocol.Address, nodeType protocol.NodeType, fw protocol.FirmwareVersion) error
}

// Executor runs fn on the task that owns the registry. Post must not block;
// it reports false when fn was dropped.
type Executor interface {
	Post(fn func()) bool
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func()) bool

func (f ExecutorFunc) Post(fn func()) bool { return f(fn) }

// Inline runs fn on the calling goroutine.
var Inline Executor = ExecutorFunc(func(fn func()) bool {
	fn()
	return true
})
