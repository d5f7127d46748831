package journal_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/vigil/internal/journal"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VIGIL_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VIGIL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VIGIL_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore drops the table and returns a freshly migrated store.
func newTestStore(t *testing.T) *journal.Postgres {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS alarm_episodes CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	store, err := journal.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(store.Shutdown)
	return store
}

func TestPostgres_OpenCloseRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep := journal.NewEpisode("audio", t0)
	ep.Alerted = true
	if err := store.Open(ctx, ep); err != nil {
		t.Fatalf("Open: %v", err)
	}
	later := journal.NewEpisode("video", t0.Add(time.Minute))
	if err := store.Open(ctx, later); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Close(ctx, ep.ID, journal.Summary{EndedAt: t0.Add(3 * time.Second), Peak: 7.25, PeakMax: 210, Clips: 1}); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != later.ID || !got[0].Open() {
		t.Errorf("newest = %+v, want open video episode", got[0])
	}
	if got[1].ID != ep.ID || got[1].Peak != 7.25 || got[1].PeakMax != 210 || got[1].Clips != 1 || !got[1].Alerted {
		t.Errorf("closed = %+v", got[1])
	}
	if got[1].Duration() != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", got[1].Duration())
	}
}

func TestPostgres_CloseUnknown(t *testing.T) {
	store := newTestStore(t)
	err := store.Close(context.Background(), uuid.New(), journal.Summary{EndedAt: t0})
	if !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPostgres_Ping(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestPostgres_NewPostgresOverPool(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	store := journal.NewPostgres(pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	store.Shutdown()
	if err := pool.Ping(ctx); err != nil {
		t.Errorf("Shutdown closed a pool it does not own: %v", err)
	}
}
