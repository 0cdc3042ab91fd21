package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// SQLiteStore keeps samples and accounts in one SQLite file. Timestamps are
// stored as unix microseconds so ordering and range scans stay on the
// integer index.
type SQLiteStore struct {
	pool *sqlitex.Pool
	now  func() time.Time

	stampMu   sync.Mutex
	lastStamp time.Time
}

func OpenSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	pool, err := openSQLitePool(cfg)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{pool: pool, now: time.Now}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Close blocks until every borrowed connection is returned.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, sample domain.Sample) (rec domain.StoredSample, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return domain.StoredSample{}, fmt.Errorf("%w: sqlite take: %w", ports.ErrStorage, err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return domain.StoredSample{}, fmt.Errorf("%w: sqlite begin: %w", ports.ErrStorage, err)
	}
	defer endTransaction(&err)

	// Stamped while holding the write lock, so server time follows id order.
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.stamp()
	}
	sample = sample.Normalize()

	err = sqlitex.Execute(conn,
		"INSERT INTO mediciones (ts, voltaje, corriente, temperatura, bateria, potencia) VALUES (?, ?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{
				sample.Timestamp.UnixMicro(),
				nullableFloat(sample.Voltage),
				nullableFloat(sample.Current),
				nullableFloat(sample.Temperature),
				nullableFloat(sample.Battery),
				nullableFloat(sample.Power),
			},
		})
	if err != nil {
		return domain.StoredSample{}, fmt.Errorf("%w: sqlite insert: %w", ports.ErrStorage, err)
	}
	return domain.StoredSample{ID: conn.LastInsertRowID(), Sample: sample}, nil
}

// stamp returns the server arrival time, never earlier than the previous
// stamp even if the wall clock steps back.
func (s *SQLiteStore) stamp() time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	t := s.now().UTC().Truncate(domain.TimestampPrecision)
	if t.Before(s.lastStamp) {
		t = s.lastStamp
	}
	s.lastStamp = t
	return t
}

func (s *SQLiteStore) QueryRecent(ctx context.Context, limit int) ([]domain.StoredSample, error) {
	if limit <= 0 {
		return []domain.StoredSample{}, nil
	}
	return s.query(ctx,
		"SELECT "+sampleColumns+" FROM mediciones ORDER BY ts DESC, id DESC LIMIT ?",
		int64(limit))
}

func (s *SQLiteStore) QueryRange(ctx context.Context, from, to time.Time, limit int) ([]domain.StoredSample, error) {
	query := "SELECT " + sampleColumns + " FROM mediciones WHERE ts >= ? AND ts <= ? ORDER BY ts DESC, id DESC"
	// sub-microsecond bounds must not widen the window
	args := []any{ceilMicro(from), to.UnixMicro()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, int64(limit))
	}
	return s.query(ctx, query, args...)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.StoredSample, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite take: %w", ports.ErrStorage, err)
	}
	defer s.pool.Put(conn)

	out := make([]domain.StoredSample, 0)
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rec := domain.StoredSample{ID: stmt.ColumnInt64(0)}
			rec.Timestamp = time.UnixMicro(stmt.ColumnInt64(1)).UTC()
			rec.Voltage = columnFloat(stmt, 2)
			rec.Current = columnFloat(stmt, 3)
			rec.Temperature = columnFloat(stmt, 4)
			rec.Battery = columnFloat(stmt, 5)
			rec.Power = columnFloat(stmt, 6)
			out = append(out, rec)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite query: %w", ports.ErrStorage, err)
	}
	return out, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func columnFloat(stmt *sqlite.Stmt, col int) *float64 {
	if stmt.ColumnIsNull(col) {
		return nil
	}
	v := stmt.ColumnFloat(col)
	return &v
}

func ceilMicro(t time.Time) int64 {
	us := t.UnixMicro()
	if t.Truncate(time.Microsecond).Before(t) {
		us++
	}
	return us
}

var _ ports.SampleStore = (*SQLiteStore)(nil)
