package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the alarm_episodes table. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS alarm_episodes (
    id          UUID         PRIMARY KEY,
    channel     TEXT         NOT NULL,
    started_at  TIMESTAMPTZ  NOT NULL,
    ended_at    TIMESTAMPTZ,
    peak        DOUBLE PRECISION NOT NULL DEFAULT 0,
    peak_max    DOUBLE PRECISION NOT NULL DEFAULT 0,
    clips       INTEGER      NOT NULL DEFAULT 0,
    alerted     BOOLEAN      NOT NULL DEFAULT false
);

ALTER TABLE alarm_episodes
    ADD COLUMN IF NOT EXISTS peak_max DOUBLE PRECISION NOT NULL DEFAULT 0;

CREATE INDEX IF NOT EXISTS idx_alarm_episodes_started_at
    ON alarm_episodes (started_at DESC);

CREATE INDEX IF NOT EXISTS idx_alarm_episodes_channel
    ON alarm_episodes (channel, started_at DESC);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Store = (*Postgres)(nil)

// Postgres is a [Store] backed by the alarm_episodes table.
type Postgres struct {
	db   DB
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection or pool. The caller owns db and
// is responsible for calling [Postgres.Migrate].
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Connect opens a connection pool to dsn, pings it and runs [Postgres.Migrate].
// The returned store owns the pool; release it with [Postgres.Shutdown].
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}

	p := &Postgres{db: pool, pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate executes [Schema], creating the table and indexes if needed.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Open implements [Store].
func (p *Postgres) Open(ctx context.Context, ep Episode) error {
	const q = `
		INSERT INTO alarm_episodes (id, channel, started_at, peak, peak_max, clips, alerted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.db.Exec(ctx, q, ep.ID, ep.Channel, ep.StartedAt, ep.Peak, ep.PeakMax, ep.Clips, ep.Alerted)
	if err != nil {
		return fmt.Errorf("journal: open episode: %w", err)
	}
	return nil
}

// Close implements [Store].
func (p *Postgres) Close(ctx context.Context, id uuid.UUID, s Summary) error {
	const q = `
		UPDATE alarm_episodes
		SET    ended_at = $2, peak = $3, peak_max = $4, clips = $5
		WHERE  id = $1`

	tag, err := p.db.Exec(ctx, q, id, s.EndedAt, s.Peak, s.PeakMax, s.Clips)
	if err != nil {
		return fmt.Errorf("journal: close episode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Recent implements [Store].
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Episode, error) {
	const q = `
		SELECT id, channel, started_at, ended_at, peak, peak_max, clips, alerted
		FROM   alarm_episodes
		ORDER  BY started_at DESC
		LIMIT  $1`

	if limit <= 0 {
		limit = DefaultMemoryCapacity
	}
	rows, err := p.db.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var (
			ep    Episode
			ended *time.Time
		)
		if err := rows.Scan(&ep.ID, &ep.Channel, &ep.StartedAt, &ended, &ep.Peak, &ep.PeakMax, &ep.Clips, &ep.Alerted); err != nil {
			return nil, fmt.Errorf("journal: scan episode: %w", err)
		}
		if ended != nil {
			ep.EndedAt = *ended
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return out, nil
}

// Ping implements [Store]. Stores built with [NewPostgres] run a trivial query.
func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool != nil {
		return p.pool.Ping(ctx)
	}
	var one int
	return p.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Shutdown releases the pool opened by [Connect]. It is a no-op for stores
// built with [NewPostgres].
func (p *Postgres) Shutdown() {
	if p.pool != nil {
		p.pool.Close()
	}
}
