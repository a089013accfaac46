package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process KV used in tests and dev mode. TTLs are enforced
// lazily on read.
type Memory struct {
	mu     sync.Mutex
	values map[string]memEntry
	lists  map[string][]string

	// clock is swappable in tests to drive expiry.
	clock func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]memEntry),
		lists:  make(map[string][]string),
		clock:  time.Now,
	}
}

func (m *Memory) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && m.clock().After(e.expiresAt)
}

// Get implements KV.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.values[key]
	if !ok || m.expired(e) {
		delete(m.values, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

// Set implements KV.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.clock().Add(ttl)
	}
	m.values[key] = e
	return nil
}

// Incr implements KV.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.values[key]
	if !ok || m.expired(e) {
		m.values[key] = memEntry{value: "1"}
		return 1, nil
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: incr on non-integer value at %q", key)
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.values[key] = e
	return n, nil
}

// Expire implements KV.
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.values[key]
	if !ok || m.expired(e) {
		return ErrNotFound
	}
	e.expiresAt = m.clock().Add(ttl)
	m.values[key] = e
	return nil
}

// LPush implements KV.
func (m *Memory) LPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	m.lists[key] = list
	return nil
}

// LRange implements KV.
func (m *Memory) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	n := int64(len(list))
	if stop == -1 || stop >= n {
		stop = n - 1
	}
	if start < 0 {
		start = 0
	}
	if start > stop {
		return nil, nil
	}

	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

// Delete implements KV.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	delete(m.lists, key)
	return nil
}

// Close implements KV.
func (m *Memory) Close() error { return nil }
