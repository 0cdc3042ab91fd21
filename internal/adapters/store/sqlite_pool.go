package store

import (
	"context"
	"fmt"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteConfig configures the embedded single-node store.
type SQLiteConfig struct {
	// Path of the database file; its directory must exist.
	Path string
	// PoolSize defaults to max(NumCPU, 4). SQLite serializes writers
	// regardless; extra connections serve concurrent range reads.
	PoolSize int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mediciones (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          INTEGER NOT NULL,
	voltaje     REAL,
	corriente   REAL,
	temperatura REAL,
	bateria     REAL,
	potencia    REAL
);
CREATE INDEX IF NOT EXISTS mediciones_ts_id_idx ON mediciones (ts DESC, id DESC);

CREATE TABLE IF NOT EXISTS usuarios (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	password_hash BLOB NOT NULL,
	created_at    INTEGER NOT NULL
);
`

func openSQLitePool(cfg SQLiteConfig) (*sqlitex.Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareSQLiteConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", cfg.Path, err)
	}

	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: take: %w", err)
	}
	err = sqlitex.ExecuteScript(conn, sqliteSchema, nil)
	// Close waits for every borrowed connection, so put before closing.
	pool.Put(conn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return pool, nil
}

func prepareSQLiteConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}
