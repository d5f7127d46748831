package alert

import (
	"context"
	"log/slog"
)

// Log writes alerts to a structured logger at warn level.
type Log struct {
	logger *slog.Logger
}

var _ Alerter = (*Log)(nil)

// NewLog returns a [Log] alerter. A nil logger means [slog.Default].
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Alert implements [Alerter]. It never fails.
func (l *Log) Alert(ctx context.Context, ev Event) error {
	l.logger.WarnContext(ctx, "intruder alert",
		"channel", ev.Channel,
		"score", ev.Score,
		"max_deviation", ev.MaxDeviation,
		"episode_id", ev.EpisodeID.String(),
		"at", ev.At,
		"snapshot_bytes", len(ev.Snapshot),
	)
	return nil
}
