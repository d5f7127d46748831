// Package alert delivers one-shot notifications when an alarm episode starts.
//
// An [Alerter] is anything that can be told about an [Event]: the structured
// log ([Log]), a Discord webhook ([Discord]) or a local chime played through
// a speaker ([Chime]). [Fanout] sends an event to every configured alerter,
// each behind its own circuit breaker, and can do so asynchronously so the
// detection loop never waits on the network.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event describes the start of an alarm episode.
type Event struct {
	// Channel is "video" or "audio".
	Channel string

	// At is when the edge was detected.
	At time.Time

	// Score is the value that crossed the threshold: audio energy or mean
	// video deviation.
	Score float64

	// MaxDeviation is the largest single-pixel deviation of the triggering
	// frame. Video only.
	MaxDeviation float64

	// EpisodeID links the alert to the journal entry.
	EpisodeID uuid.UUID

	// Snapshot is an optional JPEG of the triggering frame.
	Snapshot []byte
}

// Alerter delivers an [Event]. Implementations must be safe for concurrent
// use.
type Alerter interface {
	Alert(ctx context.Context, ev Event) error
}

// Func adapts a plain function to [Alerter].
type Func func(ctx context.Context, ev Event) error

// Alert implements [Alerter].
func (f Func) Alert(ctx context.Context, ev Event) error { return f(ctx, ev) }
