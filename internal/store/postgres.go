package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"incident-detector/internal/model"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS incident_cooldown (
	entity_id  TEXT PRIMARY KEY,
	last_alert TIMESTAMPTZ NOT NULL
)`

// The conflict branch only updates when the stored alert is old enough;
// RETURNING yields no row when the update was skipped.
const postgresReserve = `INSERT INTO incident_cooldown (entity_id, last_alert)
VALUES ($1, $2)
ON CONFLICT (entity_id) DO UPDATE SET last_alert = EXCLUDED.last_alert
WHERE incident_cooldown.last_alert <= $3
RETURNING entity_id`

const postgresLast = `SELECT last_alert FROM incident_cooldown WHERE entity_id = $1`

// pgQuerier is the subset of *pgxpool.Pool used by Postgres.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres keeps one row per entity in the incident_cooldown table.
type Postgres struct {
	db     pgQuerier
	logger zerolog.Logger
}

// OpenPostgres connects to dsn and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	p := newPostgres(pool, logger)
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func newPostgres(db pgQuerier, logger zerolog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: logger.With().Str("component", "postgres-cooldown").Logger(),
	}
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create incident_cooldown table: %w", err)
	}
	return nil
}

// Reserve implements Store.
func (p *Postgres) Reserve(ctx context.Context, entityID string, now time.Time, cooldown time.Duration) (bool, error) {
	var id string
	err := p.db.QueryRow(ctx, postgresReserve, entityID, now.UTC(), now.Add(-cooldown).UTC()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve cooldown for %s: %w", entityID, err)
	}
	return true, nil
}

// Last implements Store.
func (p *Postgres) Last(ctx context.Context, entityID string) (*model.CooldownRecord, error) {
	var last time.Time
	err := p.db.QueryRow(ctx, postgresLast, entityID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cooldown for %s: %w", entityID, err)
	}
	return &model.CooldownRecord{EntityID: entityID, LastAlert: last}, nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
