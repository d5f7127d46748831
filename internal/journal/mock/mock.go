// Package mock provides a recording test double for [journal.Store].
//
// Typical usage:
//
//	store := &mock.Store{OpenErr: errors.New("db down")}
//	// inject store into the system under test …
//	if got := store.CallCount("Open"); got != 1 {
//	    t.Errorf("expected 1 Open call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/vigil/internal/journal"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [journal.Store]. All *Err fields
// default to nil (success).
type Store struct {
	mu sync.Mutex

	calls []Call

	OpenErr   error
	CloseErr  error
	RecentErr error
	PingErr   error

	// RecentResult is returned by Recent. When nil, an empty slice is returned.
	RecentResult []journal.Episode
}

var _ journal.Store = (*Store)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Opened returns the episodes passed to Open, in order.
func (m *Store) Opened() []journal.Episode {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []journal.Episode
	for _, c := range m.calls {
		if c.Method == "Open" {
			out = append(out, c.Args[0].(journal.Episode))
		}
	}
	return out
}

// Open implements [journal.Store].
func (m *Store) Open(_ context.Context, ep journal.Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Open", Args: []any{ep}})
	return m.OpenErr
}

// Close implements [journal.Store].
func (m *Store) Close(_ context.Context, id uuid.UUID, s journal.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Close", Args: []any{id, s}})
	return m.CloseErr
}

// Recent implements [journal.Store].
func (m *Store) Recent(_ context.Context, limit int) ([]journal.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Recent", Args: []any{limit}})
	if m.RecentResult == nil {
		return []journal.Episode{}, m.RecentErr
	}
	out := make([]journal.Episode, len(m.RecentResult))
	copy(out, m.RecentResult)
	return out, m.RecentErr
}

// Ping implements [journal.Store].
func (m *Store) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Ping"})
	return m.PingErr
}
