package storage

import (
	"context"
	"sync"

	"github.com/opuscart/basket/internal/basket"
)

// Memory keeps serialized baskets in process memory, keyed by session id.
// It backs tests and single-node setups; nothing survives a restart.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string][]byte),
	}
}

func (m *Memory) Load(_ context.Context, sub basket.Subject) ([]*basket.Item, error) {
	m.mu.RLock()
	data, ok := m.blobs[sub.SessionID()]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return basket.DecodeItems(data)
}

func (m *Memory) Save(_ context.Context, sub basket.Subject, items []*basket.Item) error {
	data, err := basket.EncodeItems(items)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[sub.SessionID()] = data
	m.mu.Unlock()
	return nil
}
