package quota

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// MemoryCounter is a process-local CounterStore. Counters from earlier days
// are dropped as soon as a later day is seen.
type MemoryCounter struct {
	mu       sync.RWMutex
	date     string
	counters map[Key]*atomic.Int64
}

// NewMemoryCounter creates an empty MemoryCounter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counters: make(map[Key]*atomic.Int64)}
}

func (m *MemoryCounter) Increment(_ context.Context, key Key) (int64, error) {
	m.mu.RLock()
	c, ok := m.counters[key]
	m.mu.RUnlock()
	if ok {
		return c.Inc(), nil
	}

	m.mu.Lock()
	if key.Date > m.date {
		m.date = key.Date
		for k := range m.counters {
			if k.Date < key.Date {
				delete(m.counters, k)
			}
		}
	}
	c, ok = m.counters[key]
	if !ok {
		c = atomic.NewInt64(0)
		m.counters[key] = c
	}
	m.mu.Unlock()

	return c.Inc(), nil
}

func (m *MemoryCounter) Usage(_ context.Context, date, provider string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for k, c := range m.counters {
		if k.Date == date && k.Provider == provider {
			total += c.Load()
		}
	}
	return total, nil
}
