package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ystepanoff/nowhub/protocol"
)

const nodesKey = "nodes"

// FileStore keeps the node list in the "nodes" array of a JSON document.
// Other top-level keys are preserved on every write.
type FileStore struct {
	mu       sync.Mutex
	path     string
	capacity int
}

func NewFileStore(path string, opts ...Option) *FileStore {
	o := buildOptions(opts)
	return &FileStore{path: path, capacity: o.capacity}
}

func (s *FileStore) Path() string { return s.path }

// LoadKnownNodes returns every stored node. A missing file is an empty list.
// Records with an unparseable address are skipped and reported in the error
// next to the nodes that did load.
func (s *FileStore) LoadKnownNodes() ([]protocol.NodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, records, err := s.read()
	if err != nil {
		return nil, err
	}
	return toInfos(records)
}

func (s *FileStore) SaveNode(addr protocol.Address, t protocol.NodeType, fw protocol.FirmwareVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, records, err := s.read()
	if err != nil {
		return err
	}
	records, err = upsert(records, s.capacity, addr, t, fw)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("store: encode nodes: %w", err)
	}
	doc[nodesKey] = raw
	return s.write(doc)
}

func (s *FileStore) read() (map[string]json.RawMessage, []nodeRecord, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.path, err)
	}
	var records []nodeRecord
	if raw, ok := doc[nodesKey]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, nodesKey, err)
		}
	}
	return doc, records, nil
}

// write replaces the file through a temporary file in the same directory.
func (s *FileStore) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode document: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
