// Package store persists the list of known nodes.
package store

import (
	"errors"
	"fmt"

	"github.com/ystepanoff/nowhub/protocol"
)

var (
	ErrStoreFull     = errors.New("store: node list is full")
	ErrCorrupt       = errors.New("store: document is not valid JSON")
	ErrInvalidRecord = errors.New("store: invalid node record")
)

// nodeRecord is one element of the "nodes" array.
type nodeRecord struct {
	MAC             string `json:"mac"`
	NodeType        uint8  `json:"node_type"`
	DeviceName      string `json:"device_name"`
	FirmwareVersion string `json:"firmware_version"`
}

func (r nodeRecord) info() (protocol.NodeInfo, error) {
	addr, err := protocol.ParseAddress(r.MAC)
	if err != nil {
		return protocol.NodeInfo{}, fmt.Errorf("%w %q: %w", ErrInvalidRecord, r.MAC, err)
	}
	// A malformed version reads as 0.0.0.
	fw, _ := protocol.ParseFirmwareVersion(r.FirmwareVersion)
	return protocol.NodeInfo{
		Address:  addr,
		Type:     protocol.NodeType(r.NodeType),
		Name:     r.DeviceName,
		Firmware: fw,
	}, nil
}

func toInfos(records []nodeRecord) ([]protocol.NodeInfo, error) {
	nodes := make([]protocol.NodeInfo, 0, len(records))
	var errs []error
	for _, r := range records {
		info, err := r.info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		nodes = append(nodes, info)
	}
	return nodes, errors.Join(errs...)
}

// upsert refreshes type and firmware of an existing record or appends a new
// one under the default name.
func upsert(records []nodeRecord, capacity int, addr protocol.Address, t protocol.NodeType, fw protocol.FirmwareVersion) ([]nodeRecord, error) {
	mac := addr.String()
	for i := range records {
		existing, err := protocol.ParseAddress(records[i].MAC)
		if err == nil && existing == addr {
			records[i].NodeType = uint8(t)
			records[i].FirmwareVersion = fw.String()
			return records, nil
		}
	}
	if len(records) >= capacity {
		return records, ErrStoreFull
	}
	return append(records, nodeRecord{
		MAC:             mac,
		NodeType:        uint8(t),
		DeviceName:      protocol.DefaultNodeName,
		FirmwareVersion: fw.String(),
	}), nil
}

// Option configures a store.
type Option func(*options)

type options struct {
	capacity int
}

// WithCapacity overrides the maximum number of stored nodes.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

func buildOptions(opts []Option) options {
	o := options{capacity: protocol.MaxDevices}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
