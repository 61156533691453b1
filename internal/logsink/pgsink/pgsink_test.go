package pgsink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderhub/internal/logbuf"
)

type call struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls      []call
	missing    bool
	insertErrs []error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	if strings.HasPrefix(sql, "CREATE TABLE") {
		f.missing = false
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	}
	if f.missing {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
	}
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func newTestWriter(db *fakeDB) *Writer {
	return &Writer{db: db, table: `"render_logs"`}
}

func TestWriteInsertsEntry(t *testing.T) {
	db := &fakeDB{}
	w := newTestWriter(db)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := w.Write(context.Background(), logbuf.Entry{
		Time: ts, Level: logbuf.LevelError, Message: "boom", Line: "[2024-01-01T00:00:00.000Z] ERROR: boom",
	})
	require.NoError(t, err)

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, `INSERT INTO "render_logs"`)
	assert.Equal(t, []any{ts, "error", "boom", "[2024-01-01T00:00:00.000Z] ERROR: boom"}, db.calls[0].args)
}

func TestWriteRecreatesMissingTable(t *testing.T) {
	db := &fakeDB{missing: true}
	w := newTestWriter(db)

	require.NoError(t, w.Write(context.Background(), logbuf.Entry{Message: "x"}))

	require.Len(t, db.calls, 3)
	assert.True(t, strings.HasPrefix(db.calls[1].sql, `CREATE TABLE IF NOT EXISTS "render_logs"`))
	assert.True(t, strings.HasPrefix(db.calls[2].sql, "INSERT"))
}

func TestWriteWrapsOtherErrors(t *testing.T) {
	db := &fakeDB{insertErrs: []error{errors.New("conn reset")}}
	w := newTestWriter(db)

	err := w.Write(context.Background(), logbuf.Entry{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn reset")
	assert.Len(t, db.calls, 1)
}

func TestNewSanitizesTable(t *testing.T) {
	w := New(nil, `logs"; DROP TABLE x; --`)
	assert.Equal(t, `"logs""; DROP TABLE x; --"`, w.table)
	assert.Equal(t, `"render_logs"`, New(nil, "").table)
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, isUndefinedTable(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, isUndefinedTable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUndefinedTable(errors.New("42P01")))
	assert.False(t, isUndefinedTable(nil))
}
