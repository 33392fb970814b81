package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
	"github.com/EarthNatchanon/Topgun2/internal/logging"
	"github.com/EarthNatchanon/Topgun2/internal/metrics"
	"github.com/EarthNatchanon/Topgun2/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// rollbackTimeout bounds a rollback issued after the caller's context has
// already been cancelled.
const rollbackTimeout = 5 * time.Second

// DB is the subset of *pgxpool.Pool the store uses. Every call acquires a
// pooled connection and releases it when the call (or transaction) ends.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore is the durable persistence layer for machine readings and
// the only component that talks to the database. Callers never see a
// connection; each method runs as one acquire-use-release unit, so the
// ingestion client and concurrent HTTP handlers cannot interleave
// statements on the same session.
type PostgresStore struct {
	db      DB
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string, maxConns int32, m *metrics.Metrics) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, &apperrors.SchemaError{Op: "parse config", Err: err}
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &apperrors.SchemaError{Op: "connect", Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &apperrors.SchemaError{Op: "ping", Err: err}
	}

	return New(pool, m), nil
}

// New wraps an existing pool.
func New(db DB, m *metrics.Metrics) *PostgresStore {
	return &PostgresStore{db: db, metrics: m, log: logging.Component("store")}
}

// Initialize applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) Initialize(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return &apperrors.SchemaError{Op: "initialize schema", Err: err}
	}
	return nil
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// Close shuts down the connection pool. Outstanding transactions must have
// finished; the supervisor only calls Close after both units have returned.
func (p *PostgresStore) Close() {
	p.db.Close()
}

const insertSQL = `
	INSERT INTO machine_data
		(timestamp, power, voltage_l1_gnd, voltage_l2_gnd, voltage_l3_gnd,
		 pressure, force, cycle_count, position_of_punch)
	VALUES (COALESCE($1::timestamptz, NOW()), $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id`

// Insert persists rec (its ID is ignored) and returns the assigned id.
// A zero Timestamp lets the database stamp the row with the write time.
func (p *PostgresStore) Insert(ctx context.Context, rec models.Record) (int64, error) {
	var id int64
	err := p.withTx(ctx, "insert", func(tx pgx.Tx) error {
		args := append([]any{timestampArg(rec.Timestamp)}, measurementArgs(rec.Measurements)...)
		return tx.QueryRow(ctx, insertSQL, args...).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

const selectColumns = `id, timestamp, power, voltage_l1_gnd, voltage_l2_gnd, voltage_l3_gnd,
	pressure, force, cycle_count, position_of_punch`

// List returns every record, newest first. An empty table yields an empty,
// non-nil slice.
func (p *PostgresStore) List(ctx context.Context) (_ []models.Record, err error) {
	start := time.Now()
	defer func() { p.metrics.ObserveStore("list", start, err) }()

	rows, err := p.db.Query(ctx, `SELECT `+selectColumns+` FROM machine_data ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, &apperrors.PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	out := make([]models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &apperrors.PersistenceError{Op: "list", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.PersistenceError{Op: "list", Err: err}
	}
	return out, nil
}

// Get returns the record with the given id. found is false when no such
// record exists; that is not an error.
func (p *PostgresStore) Get(ctx context.Context, id int64) (rec models.Record, found bool, err error) {
	start := time.Now()
	defer func() { p.metrics.ObserveStore("get", start, err) }()

	row := p.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM machine_data WHERE id = $1`, id)
	rec, err = scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Record{}, false, nil
	}
	if err != nil {
		return models.Record{}, false, &apperrors.PersistenceError{Op: "get", Err: err}
	}
	return rec, true, nil
}

const updateSQL = `
	UPDATE machine_data SET
		power = $1, voltage_l1_gnd = $2, voltage_l2_gnd = $3, voltage_l3_gnd = $4,
		pressure = $5, force = $6, cycle_count = $7, position_of_punch = $8,
		timestamp = COALESCE($9::timestamptz, timestamp)
	WHERE id = $10`

// Update replaces all measurements of record id. The stored timestamp is
// kept unless rec carries one. found is false when id does not exist.
func (p *PostgresStore) Update(ctx context.Context, id int64, rec models.Record) (bool, error) {
	err := p.withTx(ctx, "update", func(tx pgx.Tx) error {
		args := append(measurementArgs(rec.Measurements), timestampArg(rec.Timestamp), id)
		tag, err := tx.Exec(ctx, updateSQL, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
	return found(err)
}

// Delete removes record id. found is false when id does not exist.
func (p *PostgresStore) Delete(ctx context.Context, id int64) (bool, error) {
	err := p.withTx(ctx, "delete", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM machine_data WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
	return found(err)
}

// Count returns the number of stored records.
func (p *PostgresStore) Count(ctx context.Context) (int64, error) {
	return p.CountRange(ctx, time.Time{}, time.Time{})
}

// CountRange returns the number of records stamped in [from, to).
// A zero bound leaves that side of the window open.
func (p *PostgresStore) CountRange(ctx context.Context, from, to time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { p.metrics.ObserveStore("count", start, err) }()

	err = p.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM machine_data
		WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
		  AND ($2::timestamptz IS NULL OR timestamp <  $2)
	`, timestampArg(from), timestampArg(to)).Scan(&n)
	if err != nil {
		return 0, &apperrors.PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// withTx runs fn in its own transaction. When fn fails the transaction is
// rolled back explicitly before withTx returns, leaving the database in
// its pre-call state. ErrNotFound from fn is returned as is; every other
// failure becomes a PersistenceError.
func (p *PostgresStore) withTx(ctx context.Context, op string, fn func(pgx.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		if apperrors.IsNotFound(err) {
			p.metrics.ObserveStore(op, start, nil)
			return
		}
		p.metrics.ObserveStore(op, start, err)
	}()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return &apperrors.PersistenceError{Op: op, Err: fmt.Errorf("begin: %w", err)}
	}

	if err := fn(tx); err != nil {
		p.rollback(ctx, tx, op)
		if apperrors.IsNotFound(err) {
			return err
		}
		return &apperrors.PersistenceError{Op: op, Err: err}
	}

	// A failed commit closes the transaction inside pgx; nothing is left
	// to roll back.
	if err := tx.Commit(ctx); err != nil {
		return &apperrors.PersistenceError{Op: op, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func (p *PostgresStore) rollback(ctx context.Context, tx pgx.Tx, op string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := tx.Rollback(rctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		p.log.Error("rollback failed", "op", op, "error", err)
	}
}

func found(err error) (bool, error) {
	if apperrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func timestampArg(ts time.Time) any {
	if ts.IsZero() {
		return nil
	}
	return ts
}

func measurementArgs(m models.Measurements) []any {
	return []any{
		m.Power,
		m.VoltageL1,
		m.VoltageL2,
		m.VoltageL3,
		m.Pressure,
		m.Force,
		m.CycleCount,
		m.PositionOfPunch,
	}
}

func scanRecord(row pgx.Row) (models.Record, error) {
	var rec models.Record
	err := row.Scan(
		&rec.ID,
		&rec.Timestamp,
		&rec.Power,
		&rec.VoltageL1,
		&rec.VoltageL2,
		&rec.VoltageL3,
		&rec.Pressure,
		&rec.Force,
		&rec.CycleCount,
		&rec.PositionOfPunch,
	)
	return rec, err
}
