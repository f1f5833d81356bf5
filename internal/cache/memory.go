package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process LRU with per-entry expiry.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[string]*list.Element
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an in-process cache holding at most maxEntries values.
// A non-positive maxEntries means unbounded.
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get retrieves a value by key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	e := el.Value.(*memoryEntry)
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.removeElement(el)
		return nil, ErrNotFound
	}
	m.ll.MoveToFront(el)
	return e.value, nil
}

// Set stores a value, expiring it after ttl when ttl is positive.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	if el, ok := m.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expiresAt = buf, expiresAt
		m.ll.MoveToFront(el)
		return nil
	}

	m.items[key] = m.ll.PushFront(&memoryEntry{key: key, value: buf, expiresAt: expiresAt})
	if m.maxEntries > 0 && m.ll.Len() > m.maxEntries {
		m.removeElement(m.ll.Back())
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not
// yet evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

// Close is a no-op.
func (m *Memory) Close() {}

func (m *Memory) removeElement(el *list.Element) {
	m.ll.Remove(el)
	delete(m.items, el.Value.(*memoryEntry).key)
}
