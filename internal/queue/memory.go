package queue

import (
	"context"
	"sync"
)

// MemoryStore keeps queues in process memory. State is lost on restart and
// not shared between instances.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string][]Entry
	active map[string]bool
	locks  map[string]chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: map[string][]Entry{},
		active: map[string]bool{},
		locks:  map[string]chan struct{}{},
	}
}

func (m *MemoryStore) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	m.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MemoryStore) Enqueue(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[key] = append(m.queues[key], e)
	return nil
}

func (m *MemoryStore) Head(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[key]
	if len(q) == 0 {
		return Entry{}, false, nil
	}
	return q[0], true, nil
}

func (m *MemoryStore) ReplaceHead(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queues[key]) == 0 {
		return nil
	}
	m.queues[key][0] = e
	return nil
}

func (m *MemoryStore) Shift(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[key]
	if len(q) == 0 {
		return Entry{}, false, nil
	}
	head := q[0]
	if len(q) == 1 {
		delete(m.queues, key)
	} else {
		m.queues[key] = append([]Entry(nil), q[1:]...)
	}
	return head, true, nil
}

func (m *MemoryStore) Entries(_ context.Context, key string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.queues[key]...), nil
}

func (m *MemoryStore) IsActive(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[key], nil
}

func (m *MemoryStore) SetActive(_ context.Context, key string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		m.active[key] = true
	} else {
		delete(m.active, key)
	}
	return nil
}
