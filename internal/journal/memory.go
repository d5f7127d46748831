package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DefaultMemoryCapacity is the ring size used by [NewMemory] for capacity <= 0.
const DefaultMemoryCapacity = 100

var _ Store = (*Memory)(nil)

// Memory is an in-process [Store] that keeps the most recent episodes in a
// fixed-size ring. The oldest episode is evicted when the ring is full.
type Memory struct {
	mu       sync.Mutex
	episodes []Episode
	capacity int
}

// NewMemory returns a ring holding at most capacity episodes.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

// Open implements [Store].
func (m *Memory) Open(_ context.Context, ep Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.episodes) == m.capacity {
		copy(m.episodes, m.episodes[1:])
		m.episodes = m.episodes[:len(m.episodes)-1]
	}
	m.episodes = append(m.episodes, ep)
	return nil
}

// Close implements [Store].
func (m *Memory) Close(_ context.Context, id uuid.UUID, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.episodes) - 1; i >= 0; i-- {
		ep := &m.episodes[i]
		if ep.ID != id {
			continue
		}
		ep.EndedAt = s.EndedAt
		ep.Peak = s.Peak
		ep.PeakMax = s.PeakMax
		ep.Clips = s.Clips
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Recent implements [Store].
func (m *Memory) Recent(_ context.Context, limit int) ([]Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.episodes)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Episode, 0, n)
	for i := len(m.episodes) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.episodes[i])
	}
	return out, nil
}

// Ping implements [Store]. It always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the number of episodes held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.episodes)
}
