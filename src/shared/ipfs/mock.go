package ipfs

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// Mock is an in-memory content store for development and tests, optionally
// persisted to a JSON file so addresses survive restarts the way the real
// store does. Addresses are CIDv0-shaped so the codec treats them exactly
// like production ones.
type Mock struct {
	mu   sync.Mutex
	data map[string]*ProposalMetadata
	path string
}

func NewMock() *Mock {
	return &Mock{data: make(map[string]*ProposalMetadata)}
}

// NewMockFile loads (or creates) a file-backed mock store.
func NewMockFile(path string) (*Mock, error) {
	m := &Mock{data: make(map[string]*ProposalMetadata), path: path}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &m.data); err != nil {
		return nil, fmt.Errorf("load mock store %s: %w", path, err)
	}
	return m, nil
}

func (m *Mock) Put(_ context.Context, metadata *ProposalMetadata) (string, error) {
	address, err := mockAddress(metadata)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *metadata
	m.data[address] = &clone
	if err := m.persist(); err != nil {
		return "", err
	}
	return address, nil
}

func (m *Mock) Get(_ context.Context, address string) (*ProposalMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metadata, ok := m.data[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	clone := *metadata
	return &clone, nil
}

func (m *Mock) Delete(_ context.Context, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[address]; !ok {
		return false, nil
	}
	delete(m.data, address)
	if err := m.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// persist writes the store file if one is configured. Caller holds the lock.
func (m *Mock) persist() error {
	if m.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, raw, 0o600)
}

// mockAddress derives a 46-character "Qm..." address from the content plus a
// random salt, so repeated uploads of the same metadata get distinct
// addresses like they would from a pinning service.
func mockAddress(metadata *ProposalMetadata) (string, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append(raw, uuid.NewString()...))
	encoded := base58.Encode(sum[:])
	for len(encoded) < 44 {
		encoded += "1"
	}
	return "Qm" + encoded[:44], nil
}
