package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

var timescaleColumns = []string{"id", "ts", "voltaje", "corriente", "temperatura", "bateria", "potencia"}

func newSQLMock(t *testing.T) (*TimescaleSampleStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewTimescaleSampleStore(db, "mediciones"), mock
}

func TestTimescaleInsertReturnsPersistedRecord(t *testing.T) {
	st, mock := newSQLMock(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	want := ts.Truncate(time.Microsecond)

	expectedQuery := regexp.QuoteMeta(`INSERT INTO "mediciones" (ts, voltaje, corriente, temperatura, bateria, potencia) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`)
	mock.ExpectQuery(expectedQuery).
		WithArgs(want, 3.7, 120.0, 25.1, 3.9, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	rec, err := st.Insert(context.Background(), domain.Sample{
		Voltage:     domain.Float(3.7),
		Current:     domain.Float(120),
		Temperature: domain.Float(25.1),
		Battery:     domain.Float(3.9),
		Timestamp:   ts,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.ID)
	assert.True(t, rec.Timestamp.Equal(want), "expected %s, got %s", want, rec.Timestamp)
	assert.Nil(t, rec.Power, "absent power must stay nil")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleInsertAssignsServerTimestamp(t *testing.T) {
	st, mock := newSQLMock(t)
	stamped := time.Date(2025, 3, 1, 12, 0, 0, 123456000, time.FixedZone("ART", -3*3600))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(`"mediciones"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "mediciones" (ts, voltaje, corriente, temperatura, bateria, potencia) VALUES (clock_timestamp(),$1,$2,$3,$4,$5) RETURNING id, ts`)).
		WithArgs(1.0, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(7), stamped))
	mock.ExpectCommit()

	rec, err := st.Insert(context.Background(), domain.Sample{Voltage: domain.Float(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
	assert.True(t, rec.Timestamp.Equal(stamped))
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleServerStampedInsertRollsBackOnFailure(t *testing.T) {
	st, mock := newSQLMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := st.Insert(context.Background(), domain.Sample{Voltage: domain.Float(1)})
	assert.ErrorIs(t, err, ports.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleInsertFailureIsStorageError(t *testing.T) {
	st, mock := newSQLMock(t)
	mock.ExpectQuery("INSERT INTO").WillReturnError(errors.New("connection reset"))

	_, err := st.Insert(context.Background(), domain.Sample{Timestamp: time.Now()})
	assert.ErrorIs(t, err, ports.ErrStorage)
}

func TestTimescaleQueryRecentScansNulls(t *testing.T) {
	st, mock := newSQLMock(t)

	newer := time.Date(2025, 3, 1, 12, 0, 10, 0, time.UTC)
	older := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(timescaleColumns).
		AddRow(int64(2), newer, 3.7, 120.0, 25.1, nil, 444.0).
		AddRow(int64(1), older, 3.6, 110.0, 24.9, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, ts, voltaje, corriente, temperatura, bateria, potencia FROM "mediciones" ORDER BY ts DESC, id DESC LIMIT $1`)).
		WithArgs(50).
		WillReturnRows(rows)

	got, err := st.QueryRecent(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
	assert.Nil(t, got[0].Battery)
	require.NotNil(t, got[0].Power)
	assert.Equal(t, 444.0, *got[0].Power)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleQueryRangeBoundsAndLimit(t *testing.T) {
	st, mock := newSQLMock(t)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "mediciones" WHERE ts >= $1 AND ts <= $2 ORDER BY ts DESC, id DESC LIMIT $3`)).
		WithArgs(from, to, 10).
		WillReturnRows(sqlmock.NewRows(timescaleColumns))

	got, err := st.QueryRange(context.Background(), from, to, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleEnsureSchemaWithoutExtension(t *testing.T) {
	st, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "mediciones"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS "mediciones_ts_id_idx" ON "mediciones" (ts DESC, id DESC)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("pg_extension").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	require.NoError(t, st.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleEnsureSchemaCreatesHypertable(t *testing.T) {
	st, mock := newSQLMock(t)

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("pg_extension").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("create_hypertable").WithArgs("mediciones").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, st.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleSampleStoreName(t *testing.T) {
	st, _ := newSQLMock(t)
	assert.Equal(t, "timescaledb", st.Name())
}
