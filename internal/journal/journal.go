// Package journal records alarm episodes: one row per Idle→Active→Idle
// cycle of a detection channel, with its peak score, the number of evidence
// files written and whether an alert went out.
//
// Two stores are provided: [Postgres] for durable storage and [Memory], a
// bounded in-process ring used when no database is configured. Journal
// failures are reported to the caller but never stop detection.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by [Store.Close] when no open episode has the
// given id.
var ErrNotFound = errors.New("journal: episode not found")

// Episode is one alarm episode on a channel.
type Episode struct {
	ID        uuid.UUID `json:"id"`
	Channel   string    `json:"channel"`
	StartedAt time.Time `json:"started_at"`

	// EndedAt is zero while the episode is still open.
	EndedAt time.Time `json:"ended_at,omitzero"`

	// Peak is the highest score observed: audio energy or mean video
	// deviation.
	Peak float64 `json:"peak"`

	// PeakMax is the largest single-pixel deviation observed. Video only.
	PeakMax float64 `json:"peak_max,omitempty"`

	// Clips counts the evidence files written during the episode.
	Clips int `json:"clips"`

	// Alerted reports whether external alerters were notified.
	Alerted bool `json:"alerted"`
}

// NewEpisode returns an open episode with a fresh random id.
func NewEpisode(channel string, startedAt time.Time) Episode {
	return Episode{
		ID:        uuid.New(),
		Channel:   channel,
		StartedAt: startedAt,
	}
}

// Open reports whether the episode has not been closed yet.
func (e Episode) Open() bool { return e.EndedAt.IsZero() }

// Duration returns the wall-clock length of a closed episode, or zero.
func (e Episode) Duration() time.Duration {
	if e.Open() {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// Summary is what an episode accumulated by the time it ended.
type Summary struct {
	EndedAt time.Time
	Peak    float64
	PeakMax float64
	Clips   int
}

// Store persists episodes. Implementations must be safe for concurrent use.
type Store interface {
	// Open records the start of an episode.
	Open(ctx context.Context, ep Episode) error

	// Close finalises the episode with the given id.
	Close(ctx context.Context, id uuid.UUID, s Summary) error

	// Recent returns up to limit episodes, newest first.
	Recent(ctx context.Context, limit int) ([]Episode, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
