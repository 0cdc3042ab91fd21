package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

const sampleColumns = "id, ts, voltaje, corriente, temperatura, bateria, potencia"

// TimescaleSampleStore keeps samples in a TimescaleDB hypertable partitioned
// on ts. Plain PostgreSQL works too; EnsureSchema only converts the table
// when the extension is installed.
type TimescaleSampleStore struct {
	db    *sql.DB
	table string
}

func NewTimescaleSampleStore(db *sql.DB, table string) *TimescaleSampleStore {
	return &TimescaleSampleStore{db: db, table: pq.QuoteIdentifier(table)}
}

func (t *TimescaleSampleStore) Name() string { return "timescaledb" }

func (t *TimescaleSampleStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + t.table + ` (
	id          BIGSERIAL,
	ts          TIMESTAMPTZ NOT NULL,
	voltaje     DOUBLE PRECISION,
	corriente   DOUBLE PRECISION,
	temperatura DOUBLE PRECISION,
	bateria     DOUBLE PRECISION,
	potencia    DOUBLE PRECISION,
	PRIMARY KEY (id, ts)
)`,
		"CREATE INDEX IF NOT EXISTS " + indexName(t.table, "ts_id") + " ON " + t.table + " (ts DESC, id DESC)",
	}
	for _, stmt := range stmts {
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: timescale schema: %w", ports.ErrStorage, err)
		}
	}

	var hasTimescale bool
	if err := t.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')").Scan(&hasTimescale); err != nil {
		return fmt.Errorf("%w: timescale extension probe: %w", ports.ErrStorage, err)
	}
	if !hasTimescale {
		return nil
	}
	// granularity of the source device is seconds; one-day chunks keep the
	// chunk count small for years of history
	if _, err := t.db.ExecContext(ctx,
		"SELECT create_hypertable($1, 'ts', chunk_time_interval => INTERVAL '1 day', if_not_exists => TRUE, migrate_data => TRUE)",
		strings.Trim(t.table, `"`)); err != nil {
		return fmt.Errorf("%w: create hypertable: %w", ports.ErrStorage, err)
	}
	return nil
}

func (t *TimescaleSampleStore) Insert(ctx context.Context, s domain.Sample) (domain.StoredSample, error) {
	if s.Timestamp.IsZero() {
		return t.insertServerStamped(ctx, s)
	}
	s = s.Normalize()

	query := "INSERT INTO " + t.table +
		" (ts, voltaje, corriente, temperatura, bateria, potencia) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id"

	var id int64
	err := t.db.QueryRowContext(ctx, query,
		s.Timestamp,
		s.Voltage,
		s.Current,
		s.Temperature,
		s.Battery,
		s.Power,
	).Scan(&id)
	if err != nil {
		return domain.StoredSample{}, fmt.Errorf("%w: timescale insert: %w", ports.ErrStorage, err)
	}
	return domain.StoredSample{ID: id, Sample: s}, nil
}

// insertServerStamped lets the database stamp the row while holding a
// per-table advisory lock, so server time follows id order across replicas.
func (t *TimescaleSampleStore) insertServerStamped(ctx context.Context, s domain.Sample) (rec domain.StoredSample, err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoredSample{}, fmt.Errorf("%w: timescale begin: %w", ports.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", t.table); err != nil {
		return domain.StoredSample{}, fmt.Errorf("%w: timescale insert lock: %w", ports.ErrStorage, err)
	}

	query := "INSERT INTO " + t.table +
		" (ts, voltaje, corriente, temperatura, bateria, potencia) VALUES (clock_timestamp(),$1,$2,$3,$4,$5) RETURNING id, ts"
	rec.Sample = s
	if err = tx.QueryRowContext(ctx, query,
		s.Voltage,
		s.Current,
		s.Temperature,
		s.Battery,
		s.Power,
	).Scan(&rec.ID, &rec.Timestamp); err != nil {
		return domain.StoredSample{}, fmt.Errorf("%w: timescale insert: %w", ports.ErrStorage, err)
	}
	if err = tx.Commit(); err != nil {
		return domain.StoredSample{}, fmt.Errorf("%w: timescale commit: %w", ports.ErrStorage, err)
	}
	rec.Sample = rec.Sample.Normalize()
	return rec, nil
}

func (t *TimescaleSampleStore) QueryRecent(ctx context.Context, limit int) ([]domain.StoredSample, error) {
	if limit <= 0 {
		return []domain.StoredSample{}, nil
	}
	query := "SELECT " + sampleColumns + " FROM " + t.table + " ORDER BY ts DESC, id DESC LIMIT $1"
	return t.query(ctx, query, limit)
}

func (t *TimescaleSampleStore) QueryRange(ctx context.Context, from, to time.Time, limit int) ([]domain.StoredSample, error) {
	query := "SELECT " + sampleColumns + " FROM " + t.table + " WHERE ts >= $1 AND ts <= $2 ORDER BY ts DESC, id DESC"
	args := []any{time.UnixMicro(ceilMicro(from)).UTC(), to.UTC().Truncate(domain.TimestampPrecision)}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	return t.query(ctx, query, args...)
}

func (t *TimescaleSampleStore) query(ctx context.Context, query string, args ...any) ([]domain.StoredSample, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: timescale query: %w", ports.ErrStorage, err)
	}
	defer rows.Close()

	out := make([]domain.StoredSample, 0)
	for rows.Next() {
		var (
			rec                                           domain.StoredSample
			voltage, current, temperature, battery, power sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &voltage, &current, &temperature, &battery, &power); err != nil {
			return nil, fmt.Errorf("%w: timescale scan: %w", ports.ErrStorage, err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		rec.Voltage = fromNull(voltage)
		rec.Current = fromNull(current)
		rec.Temperature = fromNull(temperature)
		rec.Battery = fromNull(battery)
		rec.Power = fromNull(power)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: timescale rows: %w", ports.ErrStorage, err)
	}
	return out, nil
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func indexName(quotedTable, suffix string) string {
	return pq.QuoteIdentifier(strings.Trim(quotedTable, `"`) + "_" + suffix + "_idx")
}

var _ ports.SampleStore = (*TimescaleSampleStore)(nil)
