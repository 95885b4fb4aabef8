package storage

import (
	"context"
	"sync"
)

type memoryBackend struct {
	mu     sync.RWMutex
	m      map[string][]byte
	closed bool
}

// NewMemory returns a process-local backend.
func NewMemory() Backend {
	return &memoryBackend{m: map[string][]byte{}}
}

func (b *memoryBackend) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := b.m[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (b *memoryBackend) Batch(_ context.Context, ops []Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	applyOps(b.m, ops)
	return nil
}

func (b *memoryBackend) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.m = map[string][]byte{}
	return nil
}

func (b *memoryBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func applyOps(m map[string][]byte, ops []Op) {
	for _, op := range ops {
		if op.Value == nil {
			delete(m, op.Key)
			continue
		}
		m[op.Key] = append([]byte(nil), op.Value...)
	}
}
