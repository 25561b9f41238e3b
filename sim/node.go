// Package sim emulates battery nodes on top of the in-memory radio driver.
package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ystepanoff/nowhub/protocol"
)

// Node is an emulated temperature/humidity sensor or relay.
type Node struct {
	Address  protocol.Address
	Type     protocol.NodeType
	Firmware protocol.FirmwareVersion

	mu      sync.Mutex
	seeking bool
	paired  bool
	state   bool
	temp    float32
	hum     float32
	timers  []*time.Timer
}

func NewThermometer(addr protocol.Address, fw protocol.FirmwareVersion) *Node {
	return &Node{Address: addr, Type: protocol.NodeTypeTemperatureHumidity, Firmware: fw, temp: 21, hum: 45}
}

func NewRelay(addr protocol.Address, fw protocol.FirmwareVersion) *Node {
	return &Node{Address: addr, Type: protocol.NodeTypeRelay, Firmware: fw}
}

// StartPairing is the node's pairing button: the node answers the next sync
// broadcast with a Registration.
func (n *Node) StartPairing() {
	n.mu.Lock()
	n.seeking = true
	n.mu.Unlock()
}

// MarkPaired makes the node behave as if it paired earlier.
func (n *Node) MarkPaired() {
	n.mu.Lock()
	n.paired = true
	n.mu.Unlock()
}

func (n *Node) Paired() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.paired
}

// State returns the relay output.
func (n *Node) State() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) SetReading(temp, hum float32) {
	n.mu.Lock()
	n.temp, n.hum = temp, hum
	n.mu.Unlock()
}

func (n *Node) Reading() (temp, hum float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.temp, n.hum
}

// drift moves the reading by a small random step.
func (n *Node) drift() protocol.TemperatureHumidity {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.temp += float32(rand.Float64()-0.5) * 0.2
	n.hum += float32(rand.Float64()-0.5) * 0.5
	if n.hum < 0 {
		n.hum = 0
	} else if n.hum > 100 {
		n.hum = 100
	}
	return protocol.TemperatureHumidity{Temperature: n.temp, Humidity: n.hum}
}

// handle reacts to a frame addressed to the node and returns the replies.
// report is used for replies that happen later.
func (n *Node) handle(data []byte, report func(protocol.Message)) []protocol.Message {
	m, err := protocol.Decode(data)
	if err != nil {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	switch m := m.(type) {
	case protocol.SyncBroadcast:
		if n.seeking {
			return []protocol.Message{protocol.Registration{NodeType: n.Type, Firmware: n.Firmware}}
		}
	case protocol.ConfirmRegistration:
		if n.seeking {
			n.seeking = false
			n.paired = true
		}
	case protocol.Ping:
		if !n.paired {
			return nil
		}
		if n.Type == protocol.NodeTypeRelay {
			return []protocol.Message{protocol.ActuatorState{State: n.state}}
		}
		return []protocol.Message{protocol.TemperatureHumidity{Temperature: n.temp, Humidity: n.hum}}
	case protocol.SetActuator:
		if !n.paired || n.Type != protocol.NodeTypeRelay {
			return nil
		}
		n.stopTimersLocked()
		n.state = m.State
		return []protocol.Message{protocol.ActuatorState{State: n.state}}
	case protocol.ScheduleActuator:
		if !n.paired || n.Type != protocol.NodeTypeRelay {
			return nil
		}
		n.scheduleLocked(m, report)
		return []protocol.Message{protocol.ActuatorState{State: n.state}}
	}
	return nil
}

func (n *Node) scheduleLocked(m protocol.ScheduleActuator, report func(protocol.Message)) {
	n.stopTimersLocked()
	set := func(on bool) func() {
		return func() {
			n.mu.Lock()
			n.state = on
			n.mu.Unlock()
			report(protocol.ActuatorState{State: on})
		}
	}
	n.timers = append(n.timers, time.AfterFunc(m.OffsetDuration(), set(true)))
	if off := m.OnDuration(); off != protocol.Never {
		n.timers = append(n.timers, time.AfterFunc(m.OffsetDuration()+off, set(false)))
	}
}

func (n *Node) stopTimersLocked() {
	for _, t := range n.timers {
		t.Stop()
	}
	n.timers = nil
}

// Stop cancels any pending schedule.
func (n *Node) Stop() {
	n.mu.Lock()
	n.stopTimersLocked()
	n.mu.Unlock()
}
