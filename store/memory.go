package store

import (
	"sync"

	"github.com/ystepanoff/nowhub/protocol"
)

// MemoryStore is a FileStore without the file.
type MemoryStore struct {
	mu       sync.Mutex
	records  []nodeRecord
	capacity int
}

// NewMemoryStore returns a store seeded with nodes.
func NewMemoryStore(nodes []protocol.NodeInfo, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	s := &MemoryStore{capacity: o.capacity}
	for _, n := range nodes {
		s.records = append(s.records, nodeRecord{
			MAC:             n.Address.String(),
			NodeType:        uint8(n.Type),
			DeviceName:      n.Name,
			FirmwareVersion: n.Firmware.String(),
		})
	}
	return s
}

func (s *MemoryStore) LoadKnownNodes() ([]protocol.NodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return toInfos(s.records)
}

func (s *MemoryStore) SaveNode(addr protocol.Address, t protocol.NodeType, fw protocol.FirmwareVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := upsert(s.records, s.capacity, addr, t, fw)
	if err != nil {
		return err
	}
	s.records = records
	return nil
}
