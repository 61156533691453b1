// Package pgsink archives log entries in a PostgreSQL table.
package pgsink

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"renderhub/internal/logbuf"
)

const schema = `CREATE TABLE IF NOT EXISTS %s (
	id         BIGSERIAL PRIMARY KEY,
	logged_at  TIMESTAMPTZ NOT NULL,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	line       TEXT NOT NULL
)`

// DefaultTable receives the entries unless another table is named.
const DefaultTable = "render_logs"

// execer is the part of *pgxpool.Pool the writer uses.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Writer implements logsink.Writer on top of a pgx pool.
type Writer struct {
	db    execer
	pool  *pgxpool.Pool
	table string
}

// Dial connects to databaseURL and makes sure the table exists.
func Dial(ctx context.Context, databaseURL string) (*Writer, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgsink: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgsink: ping: %w", err)
	}
	w := New(pool, DefaultTable)
	if err := w.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

func New(pool *pgxpool.Pool, table string) *Writer {
	if table == "" {
		table = DefaultTable
	}
	return &Writer{db: pool, pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

func (w *Writer) Name() string { return "postgres" }

func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, fmt.Sprintf(schema, w.table)); err != nil {
		return fmt.Errorf("pgsink: create table: %w", err)
	}
	return nil
}

// Write inserts e. A missing table is recreated once.
func (w *Writer) Write(ctx context.Context, e logbuf.Entry) error {
	err := w.insert(ctx, e)
	if isUndefinedTable(err) {
		if err := w.EnsureSchema(ctx); err != nil {
			return err
		}
		err = w.insert(ctx, e)
	}
	if err != nil {
		return fmt.Errorf("pgsink: insert: %w", err)
	}
	return nil
}

func (w *Writer) insert(ctx context.Context, e logbuf.Entry) error {
	_, err := w.db.Exec(ctx,
		"INSERT INTO "+w.table+" (logged_at, level, message, line) VALUES ($1, $2, $3, $4)",
		e.Time, string(e.Level), e.Message, e.Line)
	return err
}

// Ping reports whether the database answers.
func (w *Writer) Ping(ctx context.Context) error {
	if w.pool == nil {
		return nil
	}
	return w.pool.Ping(ctx)
}

func (w *Writer) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42P01 = undefined_table
		return pgErr.Code == "42P01"
	}
	return false
}
